// Package worker provides RunBatch, a bounded-concurrency fan-out-then-wait
// pass over a finite item set: the shape the detection orchestrator needs
// to analyze every sensor/cluster in a run with a capped number of
// concurrent LLM calls, then collect every result before moving on to
// alert persistence.
package worker

import (
	"context"
	"sync"
)

// RunBatch runs fn over every item with at most concurrency goroutines in
// flight, waits for all of them, and returns results and errors aligned by
// index. A cancelled ctx stops launching new work but still waits for
// in-flight goroutines to return so partial results stay consistent.
func RunBatch[T any, R any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) (R, error)) ([]R, []error) {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = fn(ctx, item)
		}(i, item)
	}

	wg.Wait()
	return results, errs
}
