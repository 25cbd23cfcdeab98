package db

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Retention periodically prunes history older than a fixed age.
type Retention struct {
	history *History
	keep    time.Duration
	cron    *cron.Cron
	logger  *zap.Logger
	now     func() time.Time
}

// NewRetention schedules pruning on a six-field cron spec (seconds first).
func NewRetention(history *History, schedule string, keep time.Duration, logger *zap.Logger) (*Retention, error) {
	r := &Retention{
		history: history,
		keep:    keep,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		now:     time.Now,
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.PruneOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run starts the cron scheduler and blocks until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) {
	r.logger.Info("history retention enabled", zap.Duration("keep", r.keep))
	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
}

// PruneOnce deletes runs older than the retention window.
func (r *Retention) PruneOnce(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.keep)
	n, err := r.history.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error("history prune failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		r.logger.Info("pruned check history", zap.Int64("rows", n), zap.Time("before", cutoff))
	}
	return n
}
