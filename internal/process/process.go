package process

import (
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/stackwatch/stackwatch/internal/detector"
)

// LivenessState tracks the monotonic lifecycle of a supervised process:
// NotStarted -> Starting -> Running -> Exited. There are no backward
// transitions; a restarted service gets a fresh Process.
type LivenessState int32

const (
	StateNotStarted LivenessState = iota
	StateStarting
	StateRunning
	StateExited
)

func (s LivenessState) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Process owns one spawned dev server: its OS process, the bounded capture
// buffers for stdout/stderr, and the liveness state. A Process is owned
// exclusively by one supervisor; methods are nevertheless safe for
// concurrent use because health polls and stops may race with exit.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	state     LivenessState
	startedAt time.Time
	stoppedAt time.Time
	exitErr   error
	exitCode  int
	stopOnce  sync.Once
	waitDone  chan struct{} // closed by the monitor once cmd.Wait returns

	stdout *captureBuffer
	stderr *captureBuffer
}

func New(spec Spec) *Process {
	return &Process{
		spec:   spec,
		stdout: newCaptureBuffer(spec.captureBytes()),
		stderr: newCaptureBuffer(spec.captureBytes()),
	}
}

func (p *Process) Spec() Spec { return p.spec }

// Start spawns the process with stdout/stderr redirected into the capture
// buffers and attaches the exit monitor. A failure to spawn is reported as
// *SpawnError; the state stays NotStarted so a caller may retry with a
// corrected spec.
func (p *Process) Start() error {
	if err := p.spec.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.state != StateNotStarted {
		st := p.state
		p.mu.Unlock()
		return errors.New("process already " + st.String())
	}
	p.state = StateStarting
	p.mu.Unlock()

	cmd := p.spec.BuildCommand()
	if p.spec.WorkDir != "" {
		cmd.Dir = p.spec.WorkDir
	}
	if len(p.spec.Env) > 0 {
		cmd.Env = p.spec.Env
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		p.mu.Lock()
		p.state = StateNotStarted
		p.mu.Unlock()
		return &SpawnError{Command: p.spec.Command, Err: err}
	}

	p.mu.Lock()
	p.cmd = cmd
	p.state = StateRunning
	p.startedAt = time.Now()
	p.waitDone = make(chan struct{})
	p.mu.Unlock()

	go p.monitor(cmd)
	return nil
}

// monitor is the single waiter on cmd.Wait; it finalizes state on exit.
func (p *Process) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()

	p.mu.Lock()
	p.state = StateExited
	p.stoppedAt = time.Now()
	p.exitErr = err
	p.exitCode = cmd.ProcessState.ExitCode()
	done := p.waitDone
	p.mu.Unlock()

	close(done)
}

// Alive is a non-blocking liveness poll. It consults the monitor state and
// the OS first, then any configured fallback detectors.
func (p *Process) Alive() (bool, string) {
	p.mu.Lock()
	state := p.state
	cmd := p.cmd
	p.mu.Unlock()

	if state == StateRunning && cmd != nil && cmd.Process != nil {
		d := detector.PIDDetector{PID: cmd.Process.Pid}
		if ok, _ := d.Alive(); ok {
			return true, d.Describe()
		}
	}
	if state == StateExited || state == StateNotStarted {
		return false, ""
	}
	for _, d := range p.spec.Detectors {
		if ok, _ := d.Alive(); ok {
			return true, d.Describe()
		}
	}
	return false, ""
}

// CaptureSnapshot returns the current buffered stdout and stderr without
// consuming them; repeated calls see the same (possibly grown) content.
func (p *Process) CaptureSnapshot() (string, string) {
	return p.stdout.String(), p.stderr.String()
}

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:      p.spec.Name,
		State:     p.state.String(),
		StartedAt: p.startedAt,
		StoppedAt: p.stoppedAt,
		ExitCode:  p.exitCode,
		ExitErr:   p.exitErr,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		st.PID = p.cmd.Process.Pid
	}
	return st
}

func (p *Process) State() LivenessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop terminates the process: graceful signal to the process group, wait up
// to the grace period, then kill. Best-effort and idempotent; calling it on
// a process that never started or already exited is a no-op.
func (p *Process) Stop() {
	p.stopOnce.Do(p.stop)
}

func (p *Process) stop() {
	p.mu.Lock()
	cmd := p.cmd
	state := p.state
	done := p.waitDone
	p.mu.Unlock()

	if cmd == nil || cmd.Process == nil || state != StateRunning {
		return
	}
	pid := cmd.Process.Pid
	grace := p.spec.gracePeriod()

	terminateGroup(pid)
	select {
	case <-done:
		return
	case <-time.After(grace):
	}

	slog.Warn("graceful stop timed out, killing", "name", p.spec.Name, "pid", pid, "grace", grace)
	killGroup(pid)
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		// Reaping is the monitor's job; nothing more to do here.
	}
}

// WaitDone returns a channel closed when the process has exited and been
// reaped, or nil if the process never started.
func (p *Process) WaitDone() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitDone
}
