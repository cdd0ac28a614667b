// Package worker fans per-file work out to a bounded set of goroutines and
// gathers the results in input order. The guard hashes critical files
// through it.
package worker

import (
	"context"
	"runtime"
	"sync"
)

// Result is the outcome for one input item.
type Result[T any] struct {
	Item  string
	Value T
	Err   error
}

// Pool runs a function over string items with bounded concurrency.
type Pool[T any] struct {
	size int
}

// NewPool returns a pool of size workers, or runtime.NumCPU() when size <= 0.
func NewPool[T any](size int) *Pool[T] {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool[T]{size: size}
}

// Size returns the worker count.
func (p *Pool[T]) Size() int { return p.size }

// Map applies fn to every item and returns results aligned with items.
// Per-item errors are kept in the result. Items not started before ctx is
// done get ctx.Err().
func (p *Pool[T]) Map(ctx context.Context, items []string, fn func(context.Context, string) (T, error)) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]Result[T], len(items))
	sem := make(chan struct{}, min(p.size, len(items)))
	var wg sync.WaitGroup

	for i, item := range items {
		results[i].Item = item
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		select {
		case <-ctx.Done():
			results[i].Err = ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, item string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i].Value, results[i].Err = fn(ctx, item)
		}(i, item)
	}

	wg.Wait()
	return results
}

// Errors returns the non-nil errors in results.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
