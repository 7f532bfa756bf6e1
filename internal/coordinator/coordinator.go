package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stackwatch/stackwatch/internal/advisor"
	"github.com/stackwatch/stackwatch/internal/history"
	"github.com/stackwatch/stackwatch/internal/metrics"
	"github.com/stackwatch/stackwatch/internal/report"
	"github.com/stackwatch/stackwatch/internal/scanner"
	"github.com/stackwatch/stackwatch/internal/supervisor"
)

// DefaultPollInterval is the liveness poll cadence during residency.
const DefaultPollInterval = time.Second

// ErrNoServices is returned when a coordinator is built without any
// supervised service.
var ErrNoServices = errors.New("no services to supervise")

// Coordinator drives a full diagnostics run over the configured services:
// launch, warm-up, health classification, advisor consultation, report.
type Coordinator struct {
	supervisors []*supervisor.Supervisor
	advisor     advisor.Advisor
	writer      report.Writer
	sink        history.Sink
	poll        time.Duration
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithAdvisor sets the analysis collaborator consulted per finding.
func WithAdvisor(a advisor.Advisor) Option {
	return func(c *Coordinator) { c.advisor = a }
}

// WithReportWriter sets the report output directory.
func WithReportWriter(w report.Writer) Option {
	return func(c *Coordinator) { c.writer = w }
}

// WithHistorySink adds a destination for per-run history events.
func WithHistorySink(s history.Sink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithPollInterval overrides the residency liveness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.poll = d }
}

// New builds a coordinator over the given supervisors, in launch order.
// Nil entries are dropped; at least one service is required.
func New(sups []*supervisor.Supervisor, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		advisor: advisor.Nop{},
		poll:    DefaultPollInterval,
	}
	for _, s := range sups {
		if s != nil {
			c.supervisors = append(c.supervisors, s)
		}
	}
	if len(c.supervisors) == 0 {
		return nil, ErrNoServices
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Run performs one diagnostics pass and returns the resulting report.
// Re-running is idempotent for healthy services: they are health checked
// but not relaunched. Run fails only on context cancellation; individual
// service failures become findings.
func (c *Coordinator) Run(ctx context.Context) (*report.Report, error) {
	start := time.Now()

	// Launch in declared order, then ride out the warm-up windows
	// concurrently so total wait is the slowest service, not the sum.
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range c.supervisors {
		if s.State() == supervisor.StateHealthy {
			s.CheckHealth()
			continue
		}
		if s.State() == supervisor.StateIdle {
			_ = s.Launch() // spawn failure already recorded as a finding
		}
		g.Go(func() error {
			s.WaitReady(gctx)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := report.New()
	for _, s := range c.supervisors {
		healthy := s.State() == supervisor.StateHealthy
		switch s.Source() {
		case scanner.SourceFrontend:
			r.FrontendRunning = healthy
		case scanner.SourceBackend:
			r.BackendRunning = healthy
		}
		r.Findings = append(r.Findings, s.Findings()...)
	}
	sort.SliceStable(r.Findings, func(i, j int) bool {
		return r.Findings[i].DetectedAt.Before(r.Findings[j].DetectedAt)
	})

	r.Suggestions = c.consult(ctx, r.Findings)

	path, err := c.writer.Write(r)
	if err != nil {
		return nil, err
	}
	if path != "" {
		r.LogPath = path
		metrics.IncReportWritten()
		slog.Info("report written", "path", path, "findings", len(r.Findings))
	}

	c.record(ctx, r, path)
	metrics.ObserveRunDuration(time.Since(start).Seconds())
	return r, nil
}

// consult asks the advisor for one suggestion per finding, in order. A
// failed consultation yields the placeholder and the loop continues; one
// bad finding must not starve the rest of advice.
func (c *Coordinator) consult(ctx context.Context, findings []scanner.Finding) []advisor.Suggestion {
	if len(findings) == 0 {
		return nil
	}
	out := make([]advisor.Suggestion, 0, len(findings))
	for _, f := range findings {
		s, err := c.advisor.Suggest(ctx, f)
		if err != nil {
			slog.Warn("advisor consultation failed", "source", f.Source, "category", f.Category, "err", err)
			metrics.IncAdvisorFailure(string(f.Source))
			s = advisor.Placeholder(f)
		}
		out = append(out, s)
	}
	return out
}

func (c *Coordinator) record(ctx context.Context, r *report.Report, path string) {
	if c.sink == nil {
		return
	}
	ev := history.Event{
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			RunID:           r.RunID,
			StartedAt:       r.Timestamp,
			FrontendRunning: r.FrontendRunning,
			BackendRunning:  r.BackendRunning,
			Findings:        len(r.Findings),
			Suggestions:     len(r.Suggestions),
			ReportPath:      path,
		},
	}
	if err := c.sink.Send(ctx, ev); err != nil {
		slog.Warn("history event not recorded", "run_id", r.RunID, "err", err)
	}
}

// Supervise keeps the launched services resident, polling liveness until
// ctx is cancelled, then shuts them down in reverse launch order.
func (c *Coordinator) Supervise(ctx context.Context) {
	defer c.Shutdown()

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range c.supervisors {
				s.CheckHealth()
			}
		}
	}
}

// Shutdown stops all services in reverse launch order.
func (c *Coordinator) Shutdown() {
	for i := len(c.supervisors) - 1; i >= 0; i-- {
		c.supervisors[i].Shutdown()
	}
}

// Supervisors exposes the managed supervisors in launch order.
func (c *Coordinator) Supervisors() []*supervisor.Supervisor {
	return c.supervisors
}

// AnySpawned reports whether at least one service has a live or previously
// live process. It distinguishes a diagnosable run from an infrastructure
// failure where nothing could be spawned.
func (c *Coordinator) AnySpawned() bool {
	for _, s := range c.supervisors {
		if s.Snapshot().PID > 0 {
			return true
		}
	}
	return false
}
