package report

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stackwatch/stackwatch/internal/advisor"
	"github.com/stackwatch/stackwatch/internal/scanner"
)

func sampleReport() *Report {
	r := New()
	r.BackendRunning = true
	r.Findings = []scanner.Finding{
		{
			Source:   scanner.SourceBackend,
			Category: scanner.CategoryRuntimeCrash,
			File:     "app.py",
			Line:     42,
			Excerpt:  "Traceback (most recent call last):\nKeyError: 'user'",
		},
	}
	r.Suggestions = []advisor.Suggestion{
		{
			Source:      scanner.SourceBackend,
			Category:    scanner.CategoryRuntimeCrash,
			Explanation: "The dict lacks the key.",
			ProposedFix: "Use .get with a default.",
		},
	}
	return r
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := Writer{Dir: dir}
	r := sampleReport()

	path, err := w.Write(r)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path == "" {
		t.Fatal("expected non-empty path")
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "report_") || !strings.HasSuffix(base, ".json") {
		t.Fatalf("unexpected file name %s", base)
	}
	if _, err := time.Parse(FilenameLayout, strings.TrimSuffix(strings.TrimPrefix(base, "report_"), ".json")); err != nil {
		t.Fatalf("file name timestamp not parseable: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RunID != r.RunID || !got.BackendRunning || got.FrontendRunning {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Findings) != 1 || got.Findings[0].Line != 42 {
		t.Fatalf("findings mismatch: %+v", got.Findings)
	}
	if len(got.Suggestions) != 1 || got.Suggestions[0].ProposedFix != "Use .get with a default." {
		t.Fatalf("suggestions mismatch: %+v", got.Suggestions)
	}
}

func TestWriteUnwritableDirReturnsEmptyPath(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits not enforced")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(dir, 0o500); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w := Writer{Dir: filepath.Join(dir, "reports")}
	path, err := w.Write(sampleReport())
	if err != nil {
		t.Fatalf("write should not fail hard: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path, got %s", path)
	}
}

func TestWriteNoDirConfigured(t *testing.T) {
	path, err := Writer{}.Write(sampleReport())
	if err != nil || path != "" {
		t.Fatalf("expected no-op, got path=%q err=%v", path, err)
	}
}

func TestSummary(t *testing.T) {
	r := sampleReport()
	s := r.Summary()
	for _, want := range []string{"backend running: true", "findings: 1", "backend/runtime_crash app.py:42", "The dict lacks the key."} {
		if !strings.Contains(s, want) {
			t.Fatalf("summary missing %q:\n%s", want, s)
		}
	}

	empty := New()
	if !strings.Contains(empty.Summary(), "no findings") {
		t.Fatalf("empty summary missing marker:\n%s", empty.Summary())
	}
}
