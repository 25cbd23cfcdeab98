// Package runner schedules checks, executes their probes and routes results
// to alerting, publishing and history.
package runner

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/config"
	"github.com/jandubois/healthagent/internal/probe"
)

// Notifier delivers an alert for a degraded result. It reports whether the
// delivery was confirmed.
type Notifier interface {
	Notify(ctx context.Context, check string, result *probe.Result) bool
}

// alertToggle is implemented by notifiers that can be switched off
// entirely, such as a webhook without a URL.
type alertToggle interface {
	Enabled() bool
}

// Publisher receives the full result set after every run.
type Publisher interface {
	Publish(results map[string]*probe.Result)
}

// Runner ties the scheduler to the processing pipeline of a run.
type Runner struct {
	cfg       *config.Config
	executor  *Executor
	results   *ResultSet
	gate      *AlertGate
	notifier  Notifier
	publisher Publisher
	recorders []Recorder
	scheduler *Scheduler
	logger    *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithRecorder adds a recorder that observes every completed run.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) {
		r.recorders = append(r.recorders, rec)
	}
}

// New creates a Runner for cfg.
func New(cfg *config.Config, notifier Notifier, publisher Publisher, logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		executor:  NewExecutor(cfg.Service.BaseDir, logger),
		results:   NewResultSet(),
		gate:      NewAlertGate(),
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.scheduler = NewScheduler(cfg.Checks, r.runCheck, logger)
	return r
}

// Run schedules all checks and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting checks",
		zap.Int("count", len(r.cfg.Checks)),
		zap.Duration("alert_cooldown", r.cfg.Notifications.Cooldown()),
	)
	r.scheduler.Run(ctx)
	return nil
}

// Trigger runs the named check now, outside its schedule.
func (r *Runner) Trigger(name string) error {
	return r.scheduler.Trigger(name)
}

// Results returns the latest result of every check that has run.
func (r *Runner) Results() map[string]*probe.Result {
	return r.results.Snapshot()
}

// Result returns the latest result of one check.
func (r *Runner) Result(name string) (*probe.Result, bool) {
	return r.results.Get(name)
}

// Configured reports whether name is a configured check.
func (r *Runner) Configured(name string) bool {
	_, ok := r.cfg.Check(name)
	return ok
}

// Hostname returns the host identity reported in snapshots and alerts.
func (r *Runner) Hostname() string {
	return r.cfg.Hostname()
}

// runCheck executes one check and feeds the result through the pipeline.
// A panic anywhere in the pipeline is contained to this run.
func (r *Runner) runCheck(ctx context.Context, check *config.CheckConfig) {
	rec := &RunRecord{
		ID:        uuid.NewString(),
		Check:     check.Name,
		StartedAt: time.Now(),
	}
	log := r.logger.With(zap.String("check", check.Name), zap.String("run_id", rec.ID))

	defer func() {
		if p := recover(); p != nil {
			log.Error("check run panicked",
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			if rec.Result == nil {
				rec.Result = probe.Unknown("internal error: %v", p)
				rec.Result.Timestamp = time.Now()
				r.results.Store(check.Name, rec.Result)
			}
		}
	}()

	res := r.executor.Execute(ctx, check)
	if ctx.Err() != nil {
		// Shutdown interrupted the run; keep the last real result.
		log.Debug("check run cancelled, result discarded")
		return
	}
	rec.Result = res
	rec.Duration = time.Since(rec.StartedAt)
	r.results.Store(check.Name, rec.Result)

	if r.alertsEnabled() && r.gate.ShouldAlert(check.Name, rec.Result, r.cfg.Notifications.Cooldown()) {
		rec.AlertAttempted = true
		if r.notifier.Notify(ctx, check.Name, rec.Result) {
			rec.AlertDelivered = true
			r.gate.RecordDelivery(check.Name)
			log.Info("alert sent", zap.String("status", string(rec.Result.Status)))
		} else {
			log.Warn("alert delivery failed, will retry on next run")
		}
	}

	r.publisher.Publish(r.results.Snapshot())

	for _, recorder := range r.recorders {
		if err := recorder.RecordRun(ctx, rec); err != nil {
			log.Error("failed to record run", zap.Error(err))
		}
	}

	log.Debug("check run finished",
		zap.String("status", string(rec.Result.Status)),
		zap.Duration("duration", rec.Duration),
	)
}

func (r *Runner) alertsEnabled() bool {
	if t, ok := r.notifier.(alertToggle); ok {
		return t.Enabled()
	}
	return r.notifier != nil
}

// RunOnce executes every configured check once, in order, without alerting
// or publishing.
func (r *Runner) RunOnce(ctx context.Context) map[string]*probe.Result {
	out := make(map[string]*probe.Result, len(r.cfg.Checks))
	for i := range r.cfg.Checks {
		check := &r.cfg.Checks[i]
		out[check.Name] = r.executor.Execute(ctx, check)
	}
	return out
}
