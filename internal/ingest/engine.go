// Package ingest runs update cycles: it fans out one task per source over the
// active tracked queries and merges what the sources report into storage.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"price_tracker/internal/model"
	"price_tracker/internal/source"
	"price_tracker/internal/storage"
)

// ErrMalformed marks an observation that cannot be merged.
var ErrMalformed = errors.New("malformed observation")

// Options tunes an Engine.
type Options struct {
	Fetch   source.FetchOptions
	Sources []string
	// DumpDir, when set, receives every raw fetch result as JSON.
	DumpDir string
	// RediscoverEachCycle rebuilds the adapter set on every cycle instead of
	// caching the first discovery for the life of the process.
	RediscoverEachCycle bool
}

// Engine executes update cycles. It keeps no state between cycles apart from
// the discovered adapter set.
type Engine struct {
	store    storage.Storage
	registry *source.Registry
	opts     Options
	log      *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	sources []source.Entry
}

// New creates an Engine that reads and writes through store and takes its
// adapters from registry.
func New(store storage.Storage, registry *source.Registry, opts Options, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// MergeStats counts what one merge wrote.
type MergeStats struct {
	Observed int
	Created  int
	Prices   int
	Stocks   int
	Failed   int

	// BadPrices counts negative or non-finite prices that were dropped
	// while the rest of the observation was merged.
	BadPrices int
}

func (m *MergeStats) add(o MergeStats) {
	m.Observed += o.Observed
	m.Created += o.Created
	m.Prices += o.Prices
	m.Stocks += o.Stocks
	m.Failed += o.Failed
	m.BadPrices += o.BadPrices
}

// SourceReport summarizes one source's task within a cycle.
type SourceReport struct {
	Source string
	MergeStats
	Queries       int
	FailedQueries int
	Errors        []string
}

// Report summarizes a cycle. It is informational: cycles never fail as a whole.
type Report struct {
	Started  time.Time
	Finished time.Time
	Queries  int
	Sources  []SourceReport
}

// RunCycle performs one full pass over all active queries and all sources.
func (e *Engine) RunCycle(ctx context.Context) (report Report) {
	report.Started = e.now()
	defer func() { report.Finished = e.now() }()

	queries, err := e.store.ListActiveTrackedQueries(ctx)
	if err != nil {
		e.log.Warn("list active queries", "error", err)
	}
	if len(queries) == 0 {
		e.log.Info("no active queries, skipping cycle")
		return report
	}
	sort.Slice(queries, func(i, j int) bool { return queries[i].ID < queries[j].ID })
	report.Queries = len(queries)

	sources := e.discover()
	if len(sources) == 0 {
		return report
	}

	e.log.Info("cycle started", "queries", len(queries), "sources", len(sources))

	report.Sources = make([]SourceReport, len(sources))
	var wg sync.WaitGroup
	for i, entry := range sources {
		wg.Add(1)
		go func(i int, entry source.Entry) {
			defer wg.Done()
			report.Sources[i] = e.runSource(ctx, entry, queries)
		}(i, entry)
	}
	wg.Wait()

	for _, sr := range report.Sources {
		e.log.Info("source done",
			"source", sr.Source,
			"queries", sr.Queries,
			"failed_queries", sr.FailedQueries,
			"observed", sr.Observed,
			"created", sr.Created,
			"failed", sr.Failed,
		)
	}
	return report
}

// discover returns the adapter set. A non-empty set is cached for the life
// of the Engine; an empty one is retried on the next cycle.
func (e *Engine) discover() []source.Entry {
	if e.opts.RediscoverEachCycle {
		return e.registry.Discover(e.opts.Sources, e.log)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sources) > 0 {
		return e.sources
	}

	e.sources = e.registry.Discover(e.opts.Sources, e.log)
	names := make([]string, 0, len(e.sources))
	for _, s := range e.sources {
		names = append(names, s.Name)
	}
	if len(names) == 0 {
		e.log.Warn("no sources discovered, retrying next cycle")
	} else {
		e.log.Info("sources discovered", "sources", names)
	}
	return e.sources
}

// runSource processes every query serially for one adapter. Failures stay
// inside the task.
func (e *Engine) runSource(ctx context.Context, entry source.Entry, queries []model.TrackedQuery) (sr SourceReport) {
	sr.Source = entry.Name
	log := e.log.With("source", entry.Name)

	defer func() {
		if r := recover(); r != nil {
			log.Error("source task panicked", "panic", r)
			sr.Errors = append(sr.Errors, fmt.Sprintf("panic: %v", r))
		}
	}()

	for _, q := range queries {
		sr.Queries++

		res, err := fetch(ctx, entry.Adapter, q.Text, e.opts.Fetch)
		if err != nil {
			log.Error("fetch failed", "query_id", q.ID, "query", q.Text, "error", err)
			sr.FailedQueries++
			sr.Errors = append(sr.Errors, fmt.Sprintf("query %d: %v", q.ID, err))
			continue
		}

		e.dump(entry.Name, q, res)

		stats := e.Merge(ctx, entry.Name, q.ID, res)
		sr.add(stats)
		log.Debug("query merged", "query_id", q.ID, "observed", stats.Observed, "created", stats.Created)
	}
	return sr
}

func fetch(ctx context.Context, a source.Adapter, term string, opts source.FetchOptions) (res *model.FetchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panicked: %v", r)
		}
	}()

	res, err = a.Fetch(ctx, term, opts)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("adapter returned no result")
	}
	return res, nil
}

// Merge writes every observation of res for the given source and query.
// Each observation is merged independently: a failing one is logged,
// counted and skipped. An invalid price only drops the price row; the stock
// row and last-confirmed time are still written.
func (e *Engine) Merge(ctx context.Context, sourceName string, queryID int64, res *model.FetchResult) MergeStats {
	var stats MergeStats
	at := res.FetchedAt
	if at.IsZero() {
		at = e.now()
	}

	for _, o := range res.Observations {
		stats.Observed++
		one, err := e.mergeOne(ctx, sourceName, queryID, at, o)
		stats.add(one)
		if err != nil {
			stats.Failed++
			e.log.Warn("merge observation",
				"source", sourceName, "query_id", queryID, "item_id", o.SourceItemID, "error", err)
		}
	}
	return stats
}

func (e *Engine) mergeOne(ctx context.Context, sourceName string, queryID int64, at time.Time, o model.Observation) (stats MergeStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrMalformed, r)
		}
	}()

	if err := validate(o); err != nil {
		return stats, err
	}

	l := model.Listing{
		Source:        sourceName,
		SourceItemID:  o.SourceItemID,
		QueryID:       queryID,
		Name:          o.Name,
		Href:          o.Href,
		ImageHref:     o.ImageHref,
		Brand:         o.Brand,
		LastConfirmed: &at,
	}
	created, err := e.store.EnsureListing(ctx, &l)
	if err != nil {
		return stats, err
	}
	if created {
		stats.Created++
	}

	switch {
	case o.Price == nil:
	case !validPrice(*o.Price):
		stats.BadPrices++
		e.log.Warn("drop invalid price",
			"source", sourceName, "query_id", queryID, "item_id", o.SourceItemID, "price", *o.Price)
	default:
		if err := e.store.InsertPriceObservation(ctx, l.ID, *o.Price, at); err != nil {
			return stats, err
		}
		stats.Prices++
	}

	if err := e.store.InsertStockObservation(ctx, l.ID, o.InStock, at); err != nil {
		return stats, err
	}
	stats.Stocks++

	if err := e.store.TouchLastConfirmed(ctx, l.ID, at); err != nil {
		return stats, err
	}
	return stats, nil
}

func validate(o model.Observation) error {
	if o.SourceItemID == "" {
		return fmt.Errorf("%w: missing item id", ErrMalformed)
	}
	return nil
}

// validPrice reports whether p can be stored as a price observation.
func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}
