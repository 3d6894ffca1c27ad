// Package geocode reverse-geocodes sensor and cluster centroids into the
// ResolvedLocation shape an alert carries, via a Mapbox-shaped HTTP
// endpoint with a deterministic coordinates-only fallback.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/openlews/ews/internal/models"
)

type Resolver interface {
	Resolve(ctx context.Context, lat, lon float64) models.ResolvedLocation
}

func fmtCoordLabel(lat, lon float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}

func googleMapsSearchURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%.6f,%.6f", lat, lon)
}

func googleMapsDirectionsURL(lat, lon float64) string {
	return fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%.6f,%.6f", lat, lon)
}

func coordinatesOnly(lat, lon float64) models.ResolvedLocation {
	return models.ResolvedLocation{
		Label:                   fmtCoordLabel(lat, lon),
		GoogleMapsURL:           googleMapsSearchURL(lat, lon),
		GoogleMapsDirectionsURL: googleMapsDirectionsURL(lat, lon),
		ResolvedBy:              "coordinates_only",
		Address:                 map[string]string{},
	}
}

// Client is a Resolver backed by a Mapbox-style reverse-geocoding endpoint.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.mapbox.com/geocoding/v5/mapbox.places",
		logger:     logger,
	}
}

type mapboxResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	PlaceName string            `json:"place_name"`
	Text      string            `json:"text"`
	Context   []mapboxContext   `json:"context"`
	Relevance float64           `json:"relevance"`
}

type mapboxContext struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Resolve reverse-geocodes lat/lon, falling back to coordinates-only on any
// transport or decode error rather than failing the caller's alert flow.
func (c *Client) Resolve(ctx context.Context, lat, lon float64) models.ResolvedLocation {
	fallback := coordinatesOnly(lat, lon)
	if c.token == "" {
		return fallback
	}

	coord := fmt.Sprintf("%.6f,%.6f", lon, lat) // Mapbox order: lon,lat
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{"access_token": {c.token}, "limit": {"1"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		c.logger.Warn("geocode request build failed", "error", err)
		fallback.ResolvedBy = "geocoder_error"
		return fallback
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("geocode request failed", "error", err)
		fallback.ResolvedBy = "geocoder_error"
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("geocode endpoint returned error", "status", resp.StatusCode, "body", string(body))
		fallback.ResolvedBy = "geocoder_error"
		return fallback
	}

	var parsed mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.logger.Warn("geocode decode failed", "error", err)
		fallback.ResolvedBy = "geocoder_error"
		return fallback
	}
	if len(parsed.Features) == 0 {
		return fallback
	}

	f := parsed.Features[0]
	address := make(map[string]string)
	for _, ctxEntry := range f.Context {
		address[ctxEntry.ID] = ctxEntry.Text
	}

	label := f.PlaceName
	if label == "" {
		label = fallback.Label
	}
	return models.ResolvedLocation{
		Label:                   label,
		GoogleMapsURL:           fallback.GoogleMapsURL,
		GoogleMapsDirectionsURL: fallback.GoogleMapsDirectionsURL,
		ResolvedBy:              "geocoder",
		Address:                 address,
	}
}
