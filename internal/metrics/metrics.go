package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serviceLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackwatch",
			Subsystem: "service",
			Name:      "launches_total",
			Help:      "Number of service launch attempts.",
		}, []string{"service", "outcome"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stackwatch",
			Subsystem: "service",
			Name:      "up",
			Help:      "Whether a supervised service is currently running (1 = running).",
		}, []string{"service"},
	)
	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackwatch",
			Subsystem: "service",
			Name:      "health_checks_total",
			Help:      "Number of health checks performed per service.",
		}, []string{"service"},
	)
	findings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackwatch",
			Subsystem: "diagnostics",
			Name:      "findings_total",
			Help:      "Number of findings detected, by source and category.",
		}, []string{"source", "category"},
	)
	advisorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackwatch",
			Subsystem: "diagnostics",
			Name:      "advisor_failures_total",
			Help:      "Number of advisor invocations that failed.",
		}, []string{"source"},
	)
	reportsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stackwatch",
			Subsystem: "diagnostics",
			Name:      "reports_written_total",
			Help:      "Number of diagnostics reports written to disk.",
		},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stackwatch",
			Subsystem: "diagnostics",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full diagnostics run.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceLaunches, serviceUp, healthChecks, findings, advisorFailures, reportsWritten, runDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncLaunch(service string, ok bool) {
	if regOK.Load() {
		outcome := "failure"
		if ok {
			outcome = "success"
		}
		serviceLaunches.WithLabelValues(service, outcome).Inc()
	}
}

func SetServiceUp(service string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}

func IncHealthCheck(service string) {
	if regOK.Load() {
		healthChecks.WithLabelValues(service).Inc()
	}
}

func IncFinding(source, category string) {
	if regOK.Load() {
		findings.WithLabelValues(source, category).Inc()
	}
}

func IncAdvisorFailure(source string) {
	if regOK.Load() {
		advisorFailures.WithLabelValues(source).Inc()
	}
}

func IncReportWritten() {
	if regOK.Load() {
		reportsWritten.Inc()
	}
}

func ObserveRunDuration(seconds float64) {
	if regOK.Load() {
		runDuration.Observe(seconds)
	}
}
