package scheduler

import (
	"context"
	"log/slog"
	"time"

	"price_tracker/internal/ingest"
)

// Cycler runs one update cycle.
type Cycler interface {
	RunCycle(ctx context.Context) ingest.Report
}

// Scheduler triggers update cycles at a fixed interval.
type Scheduler struct {
	cycler Cycler
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler that runs c every interval.
func New(c Cycler, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		cycler: c,
		log:    log,
		tick:   interval,
	}
}

// SetTickInterval overrides the cycle interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run runs a cycle immediately and then once per tick, blocking until ctx is
// cancelled. Cycles run inline, so a slow cycle delays the next one instead
// of overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	s.runCycle(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	report := s.cycler.RunCycle(ctx)

	failed := 0
	observed := 0
	for _, sr := range report.Sources {
		failed += sr.FailedQueries
		observed += sr.Observed
	}
	s.log.Info("cycle finished",
		"queries", report.Queries,
		"sources", len(report.Sources),
		"observed", observed,
		"failed_queries", failed,
		"duration", report.Finished.Sub(report.Started).Round(time.Millisecond),
		"next_in", s.tick,
	)
}
