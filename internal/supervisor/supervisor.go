package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stackwatch/stackwatch/internal/detector"
	"github.com/stackwatch/stackwatch/internal/env"
	"github.com/stackwatch/stackwatch/internal/metrics"
	"github.com/stackwatch/stackwatch/internal/process"
	"github.com/stackwatch/stackwatch/internal/scanner"
)

// Default service parameters for the conventional dev-stack layout.
const (
	DefaultFrontendWarmup = 30 * time.Second
	DefaultBackendWarmup  = 10 * time.Second
	DefaultFrontendPort   = 3000
	DefaultBackendPort    = 5000
)

// State is the supervision lifecycle of one service.
type State int32

const (
	StateIdle State = iota
	StateLaunching
	StateHealthy
	StateUnhealthy
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Supervisor launches one dev server, waits out its warm-up window, and
// classifies captured output when the service is down. Stopped is terminal;
// a stopped supervisor is never relaunched.
type Supervisor struct {
	source scanner.Source
	spec   process.Spec
	warmup time.Duration

	mu       sync.Mutex
	state    State
	proc     *process.Process
	findings []scanner.Finding
}

// New builds a supervisor for an arbitrary service spec.
func New(source scanner.Source, spec process.Spec, warmup time.Duration) *Supervisor {
	return &Supervisor{source: source, spec: spec, warmup: warmup}
}

// Frontend builds a supervisor for a Node dev server rooted at path,
// with the conventional npm start command, port and warm-up window.
func Frontend(path string) *Supervisor {
	return New(scanner.SourceFrontend, process.Spec{
		Name:    string(scanner.SourceFrontend),
		Command: "npm start",
		WorkDir: path,
		Detectors: []detector.Detector{
			detector.PortDetector{Port: DefaultFrontendPort},
		},
	}, DefaultFrontendWarmup)
}

// Backend builds a supervisor for a Python dev server rooted at path.
// The interpreter is resolved against the project's virtualenv when present.
func Backend(path string) *Supervisor {
	return New(scanner.SourceBackend, process.Spec{
		Name:    string(scanner.SourceBackend),
		Command: env.PythonInterpreter(path) + " app.py",
		WorkDir: path,
		Detectors: []detector.Detector{
			detector.PortDetector{Port: DefaultBackendPort},
		},
	}, DefaultBackendWarmup)
}

func (s *Supervisor) Source() scanner.Source { return s.source }

func (s *Supervisor) Spec() process.Spec { return s.spec }

func (s *Supervisor) Warmup() time.Duration { return s.warmup }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Findings returns a copy of the findings accumulated so far.
func (s *Supervisor) Findings() []scanner.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scanner.Finding, len(s.findings))
	copy(out, s.findings)
	return out
}

// Launch spawns the service. A spawn failure is not fatal to the run: it is
// recorded as a finding and the supervisor moves to Unhealthy so diagnosis
// can proceed for the rest of the stack.
func (s *Supervisor) Launch() error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		slog.Debug("launch skipped", "service", s.source, "state", st)
		return nil
	}
	s.state = StateLaunching
	proc := process.New(s.spec)
	s.proc = proc
	s.mu.Unlock()

	if err := proc.Start(); err != nil {
		slog.Error("service failed to launch", "service", s.source, "err", err)
		metrics.IncLaunch(string(s.source), false)
		s.mu.Lock()
		s.state = StateUnhealthy
		s.findings = append(s.findings, scanner.Finding{
			Source:     s.source,
			Category:   scanner.CategoryUnknown,
			Excerpt:    scanner.Clip(err.Error(), scanner.ExcerptLimit),
			DetectedAt: time.Now().UTC(),
		})
		s.mu.Unlock()
		metrics.IncFinding(string(s.source), string(scanner.CategoryUnknown))
		return err
	}

	slog.Info("service launched", "service", s.source, "pid", proc.Snapshot().PID, "warmup", s.warmup)
	metrics.IncLaunch(string(s.source), true)
	return nil
}

// WaitReady blocks for the warm-up window (or until the process exits early
// or ctx is cancelled), then performs the first health check.
func (s *Supervisor) WaitReady(ctx context.Context) State {
	s.mu.Lock()
	state := s.state
	proc := s.proc
	s.mu.Unlock()

	if state != StateLaunching || proc == nil {
		return state
	}

	timer := time.NewTimer(s.warmup)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-proc.WaitDone():
		// Early exit: no point waiting out the rest of the window.
	}
	return s.CheckHealth()
}

// CheckHealth polls liveness and classifies captured output when the service
// is down. Healthy/Unhealthy may alternate across checks; Stopped is final.
func (s *Supervisor) CheckHealth() State {
	s.mu.Lock()
	proc := s.proc
	state := s.state
	s.mu.Unlock()

	if state == StateStopped || state == StateIdle || proc == nil {
		return state
	}

	metrics.IncHealthCheck(string(s.source))
	alive, detectedBy := proc.Alive()
	if alive {
		s.mu.Lock()
		s.state = StateHealthy
		s.mu.Unlock()
		metrics.SetServiceUp(string(s.source), true)
		slog.Debug("service healthy", "service", s.source, "detected_by", detectedBy)
		return StateHealthy
	}

	stdout, stderr := proc.CaptureSnapshot()
	found := scanner.Scan(stdout, stderr, s.source)

	s.mu.Lock()
	s.state = StateUnhealthy
	s.findings = appendNewFindings(s.findings, found)
	s.mu.Unlock()

	metrics.SetServiceUp(string(s.source), false)
	for _, f := range found {
		metrics.IncFinding(string(f.Source), string(f.Category))
	}
	st := proc.Snapshot()
	slog.Warn("service down", "service", s.source, "state", st.State, "exit_code", st.ExitCode, "findings", len(found))
	return StateUnhealthy
}

// Shutdown stops the service and moves to the terminal Stopped state.
// Safe to call from any state and more than once.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	proc := s.proc
	already := s.state == StateStopped
	s.state = StateStopped
	s.mu.Unlock()

	if already {
		return
	}
	metrics.SetServiceUp(string(s.source), false)
	if proc != nil {
		proc.Stop()
	}
	slog.Info("service stopped", "service", s.source)
}

// Snapshot exposes the underlying process status for reporting.
func (s *Supervisor) Snapshot() process.Status {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return process.Status{Name: s.spec.Name, State: process.StateNotStarted.String()}
	}
	return proc.Snapshot()
}

// appendNewFindings drops findings that duplicate an already recorded
// source and category pair, keeping the earliest occurrence.
func appendNewFindings(have, add []scanner.Finding) []scanner.Finding {
	seen := make(map[string]bool, len(have))
	for _, f := range have {
		seen[string(f.Source)+"/"+string(f.Category)] = true
	}
	for _, f := range add {
		key := string(f.Source) + "/" + string(f.Category)
		if seen[key] {
			continue
		}
		seen[key] = true
		have = append(have, f)
	}
	return have
}
