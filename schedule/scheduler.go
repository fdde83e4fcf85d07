package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	bundles "github.com/jhosm/ProductBundles-sub000"
	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/fanout"
	"github.com/jhosm/ProductBundles-sub000/queue"
)

// Runner executes a recurring job across a bundle's instances.
// fanout.Engine is the production implementation.
type Runner interface {
	ExecuteRecurringJob(ctx context.Context, bundleID, jobName string, params map[string]any) (fanout.Result, error)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// cronParser supports standard 5-field cron and descriptors like
// "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Scheduler fires due schedule entries on a tick loop, running each
// through the Runner after claiming a queue slot. An entry that cannot
// get a slot stays due and is retried on the next tick.
type Scheduler struct {
	store  Store
	runner Runner
	queues *queue.Manager
	logger *slog.Logger

	tickInterval time.Duration

	// parsed caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(store Store, runner Runner, queues *queue.Manager, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		runner:       runner,
		queues:       queues,
		logger:       logger,
		tickInterval: 1 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterBundle persists one schedule entry per recurring job the
// descriptor declares. Already-registered (bundle, job) pairs are left
// as they are, so repeated registration is safe; a job with an
// unparseable cron expression is skipped with an error in the log.
func (s *Scheduler) RegisterBundle(ctx context.Context, desc bundle.Descriptor) error {
	var firstErr error
	for _, job := range desc.RecurringJobs {
		sched, err := s.getOrParseSchedule(job.Schedule)
		if err != nil {
			s.logger.Error("invalid recurring job schedule",
				slog.String("bundle_id", desc.ID),
				slog.String("job_name", job.Name),
				slog.String("schedule", job.Schedule),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("schedule: parse %q for %s.%s: %w", job.Schedule, desc.ID, job.Name, err)
			}
			continue
		}

		entry := NewEntry(desc.ID, job)
		next := sched.Next(time.Now().UTC())
		entry.NextRunAt = &next
		entry.Queue = bundles.QueueRecurring

		if err := s.store.RegisterSchedule(ctx, entry); err != nil {
			if errors.Is(err, bundles.ErrDuplicateSchedule) {
				s.logger.Debug("schedule already registered",
					slog.String("job_key", entry.JobKey()),
				)
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("schedule: register %s: %w", entry.JobKey(), err)
			}
			continue
		}

		s.logger.Info("recurring job scheduled",
			slog.String("job_key", entry.JobKey()),
			slog.String("schedule", entry.Schedule),
			slog.Time("next_run_at", next),
		)
	}
	return firstErr
}

// Start launches the tick loop.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started", slog.Duration("tick_interval", s.tickInterval))
	return nil
}

// Stop signals the scheduler to stop and waits for the tick loop and
// any in-flight job runs to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Tick runs one scheduling pass immediately. Exposed so callers that
// manage their own timing (and tests) can drive the scheduler without
// the tick loop.
func (s *Scheduler) Tick(ctx context.Context) {
	s.tickAt(ctx, time.Now().UTC())
}

func (s *Scheduler) tick() {
	s.tickAt(context.Background(), time.Now().UTC())
}

func (s *Scheduler) tickAt(ctx context.Context, now time.Time) {
	entries, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}

	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	queueName := entry.Queue
	if queueName == "" {
		queueName = bundles.QueueRecurring
	}
	if !s.queues.Acquire(queueName) {
		// Still due; the next tick retries.
		return
	}

	// Advance the entry before running so a slow job cannot double-fire.
	entry.LastRunAt = &now
	if sched, err := s.getOrParseSchedule(entry.Schedule); err != nil {
		s.logger.Error("parse schedule error",
			slog.String("job_key", entry.JobKey()),
			slog.String("schedule", entry.Schedule),
			slog.String("error", err.Error()),
		)
	} else {
		next := sched.Next(now)
		entry.NextRunAt = &next
	}
	entry.Touch()
	if err := s.store.UpdateSchedule(ctx, entry); err != nil {
		s.logger.Error("update schedule error",
			slog.String("job_key", entry.JobKey()),
			slog.String("error", err.Error()),
		)
		s.queues.Release(queueName)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.queues.Release(queueName)

		res, err := s.runner.ExecuteRecurringJob(ctx, entry.BundleID, entry.JobName, entry.Params)
		if err != nil {
			s.logger.Error("recurring job run failed",
				slog.String("job_key", entry.JobKey()),
				slog.String("error", err.Error()),
			)
			return
		}
		s.logger.Info("recurring job fired",
			slog.String("job_key", entry.JobKey()),
			slog.Int("attempted", res.Attempted),
			slog.Int("succeeded", res.Succeeded),
		)
	}()
}

func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
