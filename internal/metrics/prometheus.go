package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jandubois/healthagent/internal/probe"
	"github.com/jandubois/healthagent/internal/runner"
)

const namespace = "healthagent"

// StatusValue maps a status onto the healthagent_check_status gauge.
func StatusValue(s probe.Status) float64 {
	switch s {
	case probe.StatusOK:
		return 0
	case probe.StatusWarning:
		return 1
	case probe.StatusCritical:
		return 2
	default:
		return 3
	}
}

// Exporter keeps Prometheus collectors for every check run in its own
// registry.
type Exporter struct {
	registry *prometheus.Registry

	status  *prometheus.GaugeVec
	value   *prometheus.GaugeVec
	lastRun *prometheus.GaugeVec
	runs    *prometheus.CounterVec
	alerts  *prometheus.CounterVec
}

// NewExporter creates and registers the check collectors.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "check_status",
				Help:      "Latest check status (0=ok, 1=warning, 2=critical, 3=unknown)",
			},
			[]string{"check"},
		),
		value: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "check_value",
				Help:      "Latest numeric value reported by a check",
			},
			[]string{"check", "unit"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "check_last_run_timestamp_seconds",
				Help:      "Unix time of the latest completed run",
			},
			[]string{"check"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_runs_total",
				Help:      "Completed check runs by resulting status",
			},
			[]string{"check", "status"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alert delivery attempts by outcome",
			},
			[]string{"check", "outcome"},
		),
	}
	e.registry.MustRegister(e.status, e.value, e.lastRun, e.runs, e.alerts)
	return e
}

// RecordRun updates the collectors for a completed run.
func (e *Exporter) RecordRun(_ context.Context, rec *runner.RunRecord) error {
	res := rec.Result
	e.status.WithLabelValues(rec.Check).Set(StatusValue(res.Status))
	if res.Value != nil {
		e.value.WithLabelValues(rec.Check, res.Unit).Set(*res.Value)
	}
	e.lastRun.WithLabelValues(rec.Check).Set(float64(res.Timestamp.Unix()))
	e.runs.WithLabelValues(rec.Check, string(res.Status)).Inc()

	if rec.AlertAttempted {
		outcome := "failed"
		if rec.AlertDelivered {
			outcome = "delivered"
		}
		e.alerts.WithLabelValues(rec.Check, outcome).Inc()
	}
	return nil
}

// Registry returns the registry holding the check collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
