//go:build !windows

package process

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func waitForState(t *testing.T, p *Process, want LivenessState, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if p.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", p.State(), want)
}

func TestStartCaptureAndStop(t *testing.T) {
	p := New(Spec{
		Name:        "web",
		Command:     "sh -c 'echo booted; sleep 30'",
		GracePeriod: 200 * time.Millisecond,
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, p, StateRunning, time.Second)

	// Output lands in the capture buffer shortly after spawn.
	deadline := time.Now().Add(2 * time.Second)
	for {
		out, _ := p.CaptureSnapshot()
		if strings.Contains(out, "booted") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stdout never captured, got %q", out)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Snapshot reads are idempotent.
	out1, _ := p.CaptureSnapshot()
	out2, _ := p.CaptureSnapshot()
	if out1 != out2 {
		t.Errorf("snapshot not repeatable: %q vs %q", out1, out2)
	}

	if alive, by := p.Alive(); !alive || by == "" {
		t.Errorf("Alive = %v (%q), want true", alive, by)
	}

	p.Stop()
	waitForState(t, p, StateExited, 2*time.Second)
	if alive, _ := p.Alive(); alive {
		t.Error("Alive after exit, want false")
	}
}

func TestStopIdempotent(t *testing.T) {
	p := New(Spec{Name: "short", Command: "sleep 30", GracePeriod: 100 * time.Millisecond})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()
	p.Stop() // second call must not panic or block
	waitForState(t, p, StateExited, 2*time.Second)
	p.Stop() // and neither must a call after exit
}

func TestStopNeverStarted(t *testing.T) {
	p := New(Spec{Name: "idle", Command: "sleep 1"})
	p.Stop() // no-op
	if p.State() != StateNotStarted {
		t.Errorf("state = %v, want not_started", p.State())
	}
}

func TestExitedProcessNotAlive(t *testing.T) {
	p := New(Spec{Name: "oneshot", Command: "/bin/true"})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, p, StateExited, 2*time.Second)
	if alive, _ := p.Alive(); alive {
		t.Error("exited process reported alive")
	}
	st := p.Snapshot()
	if st.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", st.ExitCode)
	}
}

func TestStderrCaptured(t *testing.T) {
	p := New(Spec{Name: "crasher", Command: "sh -c 'echo boom >&2; exit 3'"})
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForState(t, p, StateExited, 2*time.Second)
	_, errOut := p.CaptureSnapshot()
	if !strings.Contains(errOut, "boom") {
		t.Errorf("stderr = %q, want boom", errOut)
	}
	if st := p.Snapshot(); st.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", st.ExitCode)
	}
}

func TestSpawnErrorMissingExecutable(t *testing.T) {
	p := New(Spec{Name: "ghost", Command: "definitely-not-a-real-binary-xyz"})
	err := p.Start()
	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
	if p.State() != StateNotStarted {
		t.Errorf("state = %v after failed spawn", p.State())
	}
}

func TestSpawnErrorMissingWorkDir(t *testing.T) {
	p := New(Spec{Name: "lost", Command: "sleep 1", WorkDir: "/nonexistent/stackwatch"})
	var se *SpawnError
	if err := p.Start(); !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
}

func TestCaptureBufferBounded(t *testing.T) {
	b := newCaptureBuffer(16)
	for i := 0; i < 10; i++ {
		if _, err := b.Write([]byte("0123456789")); err != nil {
			t.Fatal(err)
		}
	}
	if b.Len() > 16 {
		t.Errorf("buffer grew to %d, cap 16", b.Len())
	}
	if got := b.String(); !strings.HasSuffix(got, "0123456789") {
		t.Errorf("tail lost: %q", got)
	}
}

func TestCaptureBufferOversizeWrite(t *testing.T) {
	b := newCaptureBuffer(8)
	if _, err := b.Write([]byte("abcdefghijklmnop")); err != nil {
		t.Fatal(err)
	}
	if got := b.String(); got != "ijklmnop" {
		t.Errorf("got %q, want trailing 8 bytes", got)
	}
}

func TestBuildCommandShellHandling(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string // args[0]
	}{
		{"plain exec", "npm start", "npm"},
		{"metacharacters use shell", "python app.py > log 2>&1", "/bin/sh"},
		{"explicit shell honored", "sh -c 'python app.py'", "/bin/sh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Spec{Command: tt.command}
			cmd := s.BuildCommand()
			if cmd.Args[0] != tt.want {
				t.Errorf("args[0] = %q, want %q (args %v)", cmd.Args[0], tt.want, cmd.Args)
			}
		})
	}
}

func TestParseExplicitShellQuoteStripping(t *testing.T) {
	after, ok := parseExplicitShell(`sh -c "echo hi; sleep 1"`)
	if !ok || after != "echo hi; sleep 1" {
		t.Errorf("parseExplicitShell = %q, %v", after, ok)
	}
}
