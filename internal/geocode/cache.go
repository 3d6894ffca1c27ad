package geocode

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/openlews/ews/internal/models"
)

// CachedResolver wraps a Resolver with an in-memory LRU cache keyed on a
// rounded lat/lon pair, since repeated readings from the same sensor or
// cluster centroid resolve to the same place.
type CachedResolver struct {
	inner Resolver
	cache *lruCache
}

func NewCachedResolver(inner Resolver, maxEntries int) *CachedResolver {
	return &CachedResolver{inner: inner, cache: newLRUCache(maxEntries)}
}

func (c *CachedResolver) Resolve(ctx context.Context, lat, lon float64) models.ResolvedLocation {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if result, ok := c.cache.get(key); ok {
		return result
	}
	result := c.inner.Resolve(ctx, lat, lon)
	if result.ResolvedBy == "geocoder" {
		c.cache.put(key, result)
	}
	return result
}

// cacheEntry is the payload stored in each container/list.Element; the
// list itself tracks recency order (front = most recently used) so
// eviction is always a pop from the back.
type cacheEntry struct {
	key   string
	value models.ResolvedLocation
}

// lruCache is a fixed-capacity cache: container/list.List keeps recency
// order, and a map gives O(1) lookup from key to its list element.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List
	index      map[string]*list.Element
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		order:      list.New(),
		index:      make(map[string]*list.Element),
	}
}

func (c *lruCache) get(key string) (models.ResolvedLocation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return models.ResolvedLocation{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *lruCache) put(key string, value models.ResolvedLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, value: value})
	c.index[key] = el

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).key)
	}
}
