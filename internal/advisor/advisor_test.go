//go:build !windows

package advisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stackwatch/stackwatch/internal/scanner"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "advisor.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func sampleFinding() scanner.Finding {
	return scanner.Finding{
		Source:   scanner.SourceBackend,
		Category: scanner.CategoryRuntimeCrash,
		File:     "app.py",
		Line:     12,
		Excerpt:  "Traceback (most recent call last):\nKeyError: 'user'",
	}
}

func TestCommandAdvisorSplitsParagraphs(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
printf 'KeyError means the dict lacks that key.\n\nGuard the lookup with .get("user").\n'`)

	a := CommandAdvisor{Command: script, Timeout: 5 * time.Second}
	s, err := a.Suggest(context.Background(), sampleFinding())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if s.Explanation != "KeyError means the dict lacks that key." {
		t.Fatalf("unexpected explanation: %q", s.Explanation)
	}
	if s.ProposedFix != `Guard the lookup with .get("user").` {
		t.Fatalf("unexpected fix: %q", s.ProposedFix)
	}
	if s.Placeholder {
		t.Fatal("expected non-placeholder suggestion")
	}
	if s.Source != scanner.SourceBackend || s.Category != scanner.CategoryRuntimeCrash {
		t.Fatalf("finding labels not carried: %+v", s)
	}
}

func TestCommandAdvisorSingleParagraph(t *testing.T) {
	script := writeScript(t, `cat > /dev/null
printf 'Only an explanation here.\n'`)

	a := CommandAdvisor{Command: script}
	s, err := a.Suggest(context.Background(), sampleFinding())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if s.Explanation != "Only an explanation here." || s.ProposedFix != "" {
		t.Fatalf("unexpected suggestion: %+v", s)
	}
}

func TestCommandAdvisorReceivesFindingOnStdin(t *testing.T) {
	out := filepath.Join(t.TempDir(), "stdin.txt")
	script := writeScript(t, `cat > `+out+`
printf 'ok\n'`)

	a := CommandAdvisor{Command: script}
	if _, err := a.Suggest(context.Background(), sampleFinding()); err != nil {
		t.Fatalf("suggest: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read stdin capture: %v", err)
	}
	for _, want := range []string{"source: backend", "category: runtime_crash", "file: app.py", "line: 12", "KeyError: 'user'"} {
		if !strings.Contains(string(got), want) {
			t.Fatalf("stdin missing %q:\n%s", want, got)
		}
	}
}

func TestCommandAdvisorFailure(t *testing.T) {
	script := writeScript(t, `echo 'model unavailable' >&2
exit 1`)

	a := CommandAdvisor{Command: script}
	_, err := a.Suggest(context.Background(), sampleFinding())
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CollaboratorError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CollaboratorError, got %T", err)
	}
	if !strings.Contains(ce.Error(), "model unavailable") {
		t.Fatalf("stderr not surfaced: %v", ce)
	}
}

func TestCommandAdvisorTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)

	a := CommandAdvisor{Command: script, Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := a.Suggest(context.Background(), sampleFinding())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestCommandAdvisorTimeoutWithForkedChild(t *testing.T) {
	// The grandchild inherits the stdout/stderr pipes and outlives the
	// killed direct child; Suggest must still return near the deadline.
	script := writeScript(t, `sleep 30 &
sleep 30`)

	a := CommandAdvisor{Command: script, Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := a.Suggest(context.Background(), sampleFinding())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var ce *CollaboratorError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CollaboratorError, got %T", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout not enforced with forked child, took %s", elapsed)
	}
}

func TestCommandAdvisorEmptyOutput(t *testing.T) {
	script := writeScript(t, `cat > /dev/null`)

	a := CommandAdvisor{Command: script}
	if _, err := a.Suggest(context.Background(), sampleFinding()); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestNopReturnsPlaceholder(t *testing.T) {
	s, err := Nop{}.Suggest(context.Background(), sampleFinding())
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !s.Placeholder || s.Explanation != PlaceholderText {
		t.Fatalf("unexpected suggestion: %+v", s)
	}
}
