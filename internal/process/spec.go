package process

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/stackwatch/stackwatch/internal/detector"
)

// Default capture and shutdown parameters.
const (
	// DefaultCaptureBytes bounds each captured stream. Long-running dev
	// servers emit unbounded output; only the tail is useful for triage.
	DefaultCaptureBytes = 64 * 1024
	// DefaultGracePeriod is how long Stop waits after the graceful signal
	// before escalating to a kill.
	DefaultGracePeriod = 5 * time.Second
)

// Spec describes one supervised dev server process.
type Spec struct {
	Name         string              `json:"name"`
	Command      string              `json:"command"`       // command line to start the process
	WorkDir      string              `json:"work_dir"`      // working directory, must exist
	Env          []string            `json:"env"`           // fully merged environment ("K=V")
	GracePeriod  time.Duration       `json:"grace_period"`  // graceful-stop window before kill
	CaptureBytes int                 `json:"capture_bytes"` // per-stream capture cap
	Detectors    []detector.Detector `json:"-"`             // extra liveness strategies
}

// SpawnError reports that a process could not be started at all: the
// executable was not found or the working directory does not exist.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Validate checks the parts of the spec that must hold before spawning.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return &SpawnError{Command: s.Command, Err: fmt.Errorf("empty command")}
	}
	if s.WorkDir != "" {
		fi, err := os.Stat(s.WorkDir)
		if err != nil {
			return &SpawnError{Command: s.Command, Err: fmt.Errorf("working directory %s: %w", s.WorkDir, err)}
		}
		if !fi.IsDir() {
			return &SpawnError{Command: s.Command, Err: fmt.Errorf("working directory %s is not a directory", s.WorkDir)}
		}
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's command line. A shell
// is involved only when the command already names one explicitly or contains
// shell metacharacters; plain commands exec directly.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return trueCommand()
	}
	// An explicit "sh -c ..." prefix is honored without double-wrapping.
	if after, ok := parseExplicitShell(cmdStr); ok {
		return shellCommand(after)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return shellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// parseExplicitShell detects "sh -c <ARG>" style prefixes, returning the
// argument after -c with one layer of surrounding quotes stripped.
func parseExplicitShell(cmdStr string) (string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	for _, p := range []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "} {
		if !strings.HasPrefix(trim, p) {
			continue
		}
		after := trim[len(p):]
		if n := len(after); n >= 2 {
			if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
				after = after[1 : n-1]
			}
		}
		return after, true
	}
	return "", false
}

func (s *Spec) gracePeriod() time.Duration {
	if s.GracePeriod > 0 {
		return s.GracePeriod
	}
	return DefaultGracePeriod
}

func (s *Spec) captureBytes() int {
	if s.CaptureBytes > 0 {
		return s.CaptureBytes
	}
	return DefaultCaptureBytes
}
