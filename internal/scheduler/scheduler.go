// Package scheduler runs the periodic maintenance of the box office: the
// fallback sweep for holds and offers whose timers were missed, admission
// passes, and pruning of settled records.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// HoldSweeper is implemented by service.ReservationManager.
type HoldSweeper interface {
	SweepExpired(ctx context.Context) int
	Prune(before time.Time) int
}

// Admitter is implemented by service.AdmissionQueue.
type Admitter interface {
	AdmitAll(ctx context.Context) int
	Prune(before time.Time) int
}

// OfferResolver is implemented by service.ResaleMarket.
type OfferResolver interface {
	ResolveDue(ctx context.Context) int
	Prune(before time.Time) int
}

// Purger is implemented by idempotency.Store.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Jobs are the targets of the periodic tasks.  Nil targets are skipped.
type Jobs struct {
	Holds       HoldSweeper
	Queue       Admitter
	Offers      OfferResolver
	Idempotency Purger

	// Retention is how long settled holds, queue entries and offers are
	// kept for status lookups.
	Retention time.Duration
}

// Report counts what one round of maintenance did.
type Report struct {
	ExpiredHolds   int
	Admitted       int
	ResolvedOffers int
	PurgedKeys     int
	PrunedHolds    int
	PrunedEntries  int
	PrunedOffers   int
}

// Scheduler owns a gocron scheduler running Jobs.
type Scheduler struct {
	jobs   Jobs
	clock  clockwork.Clock
	logger *slog.Logger
	cron   gocron.Scheduler

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers the maintenance jobs.  Sweeps run every interval; purge
// and prune run every ten intervals.  Nothing runs until Start.
func New(jobs Jobs, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	cron, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLogger(logger),
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{jobs: jobs, clock: clock, logger: logger, cron: cron, ctx: ctx, cancel: cancel}

	tasks := []struct {
		name  string
		every time.Duration
		run   func(context.Context, *Report)
	}{
		{"sweep-holds", interval, s.sweep},
		{"admit-waiting", interval, s.admit},
		{"resolve-offers", interval, s.resolve},
		{"housekeeping", 10 * interval, s.housekeep},
	}
	for _, t := range tasks {
		run := t.run
		if _, err := cron.NewJob(
			gocron.DurationJob(t.every),
			gocron.NewTask(func() { run(s.ctx, &Report{}) }),
			gocron.WithName(t.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			cancel()
			_ = cron.Shutdown()
			return nil, fmt.Errorf("scheduler: register %s: %w", t.name, err)
		}
	}
	return s, nil
}

// Start begins running the jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Jobs()))
}

// Shutdown stops the jobs and waits for running ones to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}

// RunOnce performs one full maintenance round synchronously, in the same
// order a running scheduler converges to.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	var r Report
	s.sweep(ctx, &r)
	s.resolve(ctx, &r)
	s.admit(ctx, &r)
	s.housekeep(ctx, &r)
	return r
}

func (s *Scheduler) sweep(ctx context.Context, r *Report) {
	if s.jobs.Holds == nil {
		return
	}
	if r.ExpiredHolds = s.jobs.Holds.SweepExpired(ctx); r.ExpiredHolds > 0 {
		s.logger.Info("expired overdue holds", "count", r.ExpiredHolds)
	}
}

func (s *Scheduler) admit(ctx context.Context, r *Report) {
	if s.jobs.Queue == nil {
		return
	}
	if r.Admitted = s.jobs.Queue.AdmitAll(ctx); r.Admitted > 0 {
		s.logger.Info("admitted waiting entries", "count", r.Admitted)
	}
}

func (s *Scheduler) resolve(ctx context.Context, r *Report) {
	if s.jobs.Offers == nil {
		return
	}
	if r.ResolvedOffers = s.jobs.Offers.ResolveDue(ctx); r.ResolvedOffers > 0 {
		s.logger.Info("resolved due offers", "count", r.ResolvedOffers)
	}
}

func (s *Scheduler) housekeep(ctx context.Context, r *Report) {
	if s.jobs.Idempotency != nil {
		n, err := s.jobs.Idempotency.Purge(ctx)
		if err != nil {
			s.logger.Warn("idempotency purge failed", "error", err)
		}
		r.PurgedKeys = n
	}
	if s.jobs.Retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-s.jobs.Retention)
	if s.jobs.Holds != nil {
		r.PrunedHolds = s.jobs.Holds.Prune(cutoff)
	}
	if s.jobs.Queue != nil {
		r.PrunedEntries = s.jobs.Queue.Prune(cutoff)
	}
	if s.jobs.Offers != nil {
		r.PrunedOffers = s.jobs.Offers.Prune(cutoff)
	}
	if r.PurgedKeys > 0 || r.PrunedHolds > 0 || r.PrunedEntries > 0 || r.PrunedOffers > 0 {
		s.logger.Debug("housekeeping", "purged_keys", r.PurgedKeys, "pruned_holds", r.PrunedHolds,
			"pruned_entries", r.PrunedEntries, "pruned_offers", r.PrunedOffers)
	}
}
