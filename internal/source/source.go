// Package source defines the marketplace adapter contract, the registry that
// discovers adapters, and the paging loop adapters share.
package source

import (
	"context"
	"fmt"
	"time"

	"price_tracker/internal/model"
)

// FetchOptions is the budget a single fetch must respect.
type FetchOptions struct {
	// Timeout bounds the whole fetch; it is checked before every page.
	Timeout time.Duration
	// Delay is slept between two page requests.
	Delay time.Duration
	// MaxItems caps the number of observations; zero means the adapter default.
	MaxItems int
}

// Adapter fetches the listings a marketplace returns for a search term.
type Adapter interface {
	Fetch(ctx context.Context, term string, opts FetchOptions) (*model.FetchResult, error)
}

// Readiness is implemented by adapters that can be switched off.
// Adapters reporting false are skipped at discovery.
type Readiness interface {
	Ready() bool
}

// AdapterFunc turns a function into an Adapter.
type AdapterFunc func(ctx context.Context, term string, opts FetchOptions) (*model.FetchResult, error)

// Fetch calls f.
func (f AdapterFunc) Fetch(ctx context.Context, term string, opts FetchOptions) (*model.FetchResult, error) {
	return f(ctx, term, opts)
}

// Page is what a PageFunc returns for one request.
type Page struct {
	Items []model.Observation
	// Last marks the final page even if it is not empty.
	Last bool
}

// PageFunc fetches page number n (zero-based); adapters translate n into an
// offset or a page number.
type PageFunc func(ctx context.Context, n int) (Page, error)

// Paginate drives fetch until a page comes back empty or marked last, until
// maxItems observations are collected, or until opts.Timeout elapses, in which
// case it fails with ErrTimeout instead of returning a truncated batch.
// The delay between pages is a plain sleep.
func Paginate(ctx context.Context, opts FetchOptions, maxItems int, fetch PageFunc) ([]model.Observation, error) {
	if opts.MaxItems > 0 {
		maxItems = opts.MaxItems
	}

	start := time.Now()
	var items []model.Observation

	for n := 0; ; n++ {
		if opts.Timeout > 0 && time.Since(start) >= opts.Timeout {
			return nil, fmt.Errorf("%w after %d pages", ErrTimeout, n)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		if len(page.Items) == 0 {
			return items, nil
		}

		for _, item := range page.Items {
			if maxItems > 0 && len(items) >= maxItems {
				return items, nil
			}
			items = append(items, item)
		}
		if page.Last || (maxItems > 0 && len(items) >= maxItems) {
			return items, nil
		}

		time.Sleep(opts.Delay)
	}
}
