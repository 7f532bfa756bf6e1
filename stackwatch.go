package stackwatch

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stackwatch/stackwatch/internal/advisor"
	cfg "github.com/stackwatch/stackwatch/internal/config"
	"github.com/stackwatch/stackwatch/internal/coordinator"
	"github.com/stackwatch/stackwatch/internal/history"
	"github.com/stackwatch/stackwatch/internal/history/factory"
	"github.com/stackwatch/stackwatch/internal/metrics"
	"github.com/stackwatch/stackwatch/internal/process"
	"github.com/stackwatch/stackwatch/internal/report"
	"github.com/stackwatch/stackwatch/internal/scanner"
	iapi "github.com/stackwatch/stackwatch/internal/server"
	"github.com/stackwatch/stackwatch/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Status = process.Status

type Source = scanner.Source

type Finding = scanner.Finding

type Suggestion = advisor.Suggestion

type Report = report.Report

type Supervisor = supervisor.Supervisor

type Coordinator = coordinator.Coordinator

type Option = coordinator.Option

type Advisor = advisor.Advisor

type HistorySink = history.Sink

type FileConfig = cfg.FileConfig

const (
	SourceFrontend = scanner.SourceFrontend
	SourceBackend  = scanner.SourceBackend
)

// NewFrontend builds a supervisor for a Node dev server with conventional defaults.
func NewFrontend(path string) *Supervisor { return supervisor.Frontend(path) }

// NewBackend builds a supervisor for a Python dev server with conventional defaults.
func NewBackend(path string) *Supervisor { return supervisor.Backend(path) }

// NewSupervisor builds a supervisor for an arbitrary service spec.
func NewSupervisor(source Source, spec Spec, warmup time.Duration) *Supervisor {
	return supervisor.New(source, spec, warmup)
}

// New builds a diagnostics coordinator over the given supervisors, in launch order.
func New(sups []*Supervisor, opts ...Option) (*Coordinator, error) {
	return coordinator.New(sups, opts...)
}

// Coordinator options.

func WithAdvisor(a Advisor) Option         { return coordinator.WithAdvisor(a) }
func WithHistorySink(s HistorySink) Option { return coordinator.WithHistorySink(s) }
func WithReportDir(dir string) Option {
	return coordinator.WithReportWriter(report.Writer{Dir: dir})
}
func WithPollInterval(d time.Duration) Option { return coordinator.WithPollInterval(d) }

// NewCommandAdvisor builds an advisor that shells out to an external triage command.
func NewCommandAdvisor(command string, timeout time.Duration, args ...string) Advisor {
	return advisor.CommandAdvisor{Command: command, Args: args, Timeout: timeout}
}

// NewHistorySink builds a history sink from a DSN (sqlite, postgres, clickhouse, opensearch).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// LoadConfig parses a TOML config file.
func LoadConfig(path string) (*FileConfig, error) { return cfg.Load(path) }

// ScanOutput classifies one snapshot of service output.
func ScanOutput(stdout, stderr string, source Source) []Finding {
	return scanner.Scan(stdout, stderr, source)
}

// ScanTree statically checks every matching source file under root with the
// given per-file check command, python -m py_compile style.
func ScanTree(sc scanner.StaticConfig) []Finding {
	return scanner.StaticScan(sc)
}

type StaticConfig = scanner.StaticConfig

// PyCompileCheck is the conventional per-file syntax check for Python trees.
func PyCompileCheck(interpreter string) scanner.CheckFunc {
	return scanner.PyCompileCheck(interpreter)
}

// Router is the embeddable status API router.
type Router = iapi.Router

// NewRouter builds the status API router for a coordinator so it can be
// mounted in any HTTP framework.
func NewRouter(c *Coordinator, basePath string) *Router {
	return iapi.NewRouter(c, basePath)
}

// NewHTTPServer starts an HTTP server exposing the status API for the coordinator.
func NewHTTPServer(addr, basePath string, c *Coordinator) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, c)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
