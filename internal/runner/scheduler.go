package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/config"
)

var (
	// ErrUnknownCheck is returned when triggering a check that is not configured.
	ErrUnknownCheck = errors.New("unknown check")
	// ErrCheckRunning is returned when triggering a check that is in flight.
	ErrCheckRunning = errors.New("check is already running")
	// ErrNotRunning is returned when triggering before the scheduler started.
	ErrNotRunning = errors.New("scheduler is not running")
)

// RunFunc executes one run of a check.
type RunFunc func(ctx context.Context, check *config.CheckConfig)

// entry is the scheduling state of one check.
type entry struct {
	check    *config.CheckConfig
	interval time.Duration
	running  atomic.Bool
	timer    *time.Timer
}

// Scheduler fires every check on its own interval, starting immediately.
// A check never runs concurrently with itself: a firing that finds the
// previous run still in flight is skipped.
type Scheduler struct {
	run    RunFunc
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
	order   []string
}

// NewScheduler creates a Scheduler for the given checks.
func NewScheduler(checks []config.CheckConfig, run RunFunc, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		run:     run,
		logger:  logger,
		entries: make(map[string]*entry, len(checks)),
	}
	for i := range checks {
		check := &checks[i]
		s.entries[check.Name] = &entry{
			check:    check,
			interval: check.IntervalDuration(),
		}
		s.order = append(s.order, check.Name)
	}
	return s
}

// Run schedules all checks and blocks until ctx is cancelled. Runs still in
// flight at that point are cancelled through ctx and not awaited.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	now := time.Now()
	for _, name := range s.order {
		e := s.entries[name]
		s.scheduleLocked(ctx, e, now)
		s.logger.Info("scheduled check",
			zap.String("check", name),
			zap.Duration("interval", e.interval),
		)
	}
	s.mu.Unlock()

	<-ctx.Done()
	s.stopAllTimers()
	s.logger.Info("scheduler stopped")
}

// Trigger runs a check immediately and waits for it to finish. It honors
// the same no-overlap rule as scheduled runs.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	ctx := s.ctx
	s.mu.Unlock()

	if !ok {
		return ErrUnknownCheck
	}
	if ctx == nil || ctx.Err() != nil {
		return ErrNotRunning
	}
	if !s.fire(ctx, e) {
		return ErrCheckRunning
	}
	return nil
}

// Running reports whether a run of name is in flight.
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	return ok && e.running.Load()
}

// scheduleLocked arms the timer for the run due at due. The next run is
// armed before the current one executes so a slow probe does not shift the
// cadence of later runs.
func (s *Scheduler) scheduleLocked(ctx context.Context, e *entry, due time.Time) {
	if ctx.Err() != nil {
		return
	}
	e.timer = time.AfterFunc(time.Until(due), func() {
		next := due.Add(e.interval)
		now := time.Now()
		for !next.After(now) {
			next = next.Add(e.interval)
		}

		s.mu.Lock()
		s.scheduleLocked(ctx, e, next)
		s.mu.Unlock()

		if !s.fire(ctx, e) {
			s.logger.Warn("check still running, skipping", zap.String("check", e.check.Name))
		}
	})
}

// fire runs the check unless a run is already in flight. It reports
// whether the check ran.
func (s *Scheduler) fire(ctx context.Context, e *entry) bool {
	if !e.running.CompareAndSwap(false, true) {
		return false
	}
	defer e.running.Store(false)
	s.run(ctx, e.check)
	return true
}

func (s *Scheduler) stopAllTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}
