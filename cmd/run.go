package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/api"
	"github.com/jandubois/healthagent/internal/db"
	"github.com/jandubois/healthagent/internal/metrics"
	"github.com/jandubois/healthagent/internal/notify"
	"github.com/jandubois/healthagent/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent until interrupted",
	Long: `Run schedules every configured check, sends webhook alerts for degraded
results and rewrites the metrics snapshot after each run.

When service.history_db is set, every run is also stored in SQLite. When
service.listen_addr is set, a local API serves the latest results,
history and Prometheus metrics.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	hostname := cfg.Hostname()
	notifier := notify.NewWebhook(cfg.Notifications.WebhookURL, hostname, logger)
	if cfg.Notifications.WebhookURL == "" {
		logger.Warn("no webhook_url configured, alerts are disabled")
	}
	publisher := metrics.NewPublisher(cfg.Service.MetricsFile, hostname, logger)
	exporter := metrics.NewExporter()

	opts := []runner.Option{runner.WithRecorder(exporter)}
	var history *db.History
	var retention *db.Retention
	if cfg.Service.HistoryDB != "" {
		database, err := db.Connect(ctx, cfg.Service.HistoryDB)
		if err != nil {
			return fmt.Errorf("open history database: %w", err)
		}
		defer database.Close()

		history = db.NewHistory(database)
		opts = append(opts, runner.WithRecorder(history))

		if keep := cfg.Service.Retention(); keep > 0 {
			retention, err = db.NewRetention(history, cfg.Service.RetentionSchedule, keep, logger)
			if err != nil {
				return err
			}
		}
	}

	r := runner.New(cfg, notifier, publisher, logger, opts...)

	logger.Info("starting healthagent",
		zap.String("version", Version),
		zap.String("hostname", hostname),
		zap.String("metrics_file", cfg.Service.MetricsFile),
		zap.String("history_db", cfg.Service.HistoryDB),
	)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	start("runner", r.Run)
	if retention != nil {
		start("retention", func(ctx context.Context) error {
			retention.Run(ctx)
			return nil
		})
	}
	if cfg.Service.ListenAddr != "" {
		apiOpts := api.Options{
			Metrics:     exporter.Handler(),
			CORSOrigins: cfg.Service.CORSOrigins,
		}
		if history != nil {
			apiOpts.History = history
		}
		srv := api.NewServer(cfg.Service.ListenAddr, r, apiOpts, logger)
		start("api", srv.Run)
	}

	wg.Wait()
	logger.Info("healthagent stopped")
	return errs
}
