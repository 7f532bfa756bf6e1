package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackwatch/stackwatch/internal/advisor"
	"github.com/stackwatch/stackwatch/internal/scanner"
)

// FilenameLayout is the timestamp layout used in report file names.
const FilenameLayout = "20060102_150405"

// Report is the persisted outcome of one diagnostics run.
type Report struct {
	RunID           string               `json:"run_id"`
	Timestamp       time.Time            `json:"timestamp"`
	FrontendRunning bool                 `json:"frontend_running"`
	BackendRunning  bool                 `json:"backend_running"`
	Findings        []scanner.Finding    `json:"findings"`
	Suggestions     []advisor.Suggestion `json:"suggestions"`
	LogPath         string               `json:"log_path,omitempty"`
}

// New creates a report shell for the current run.
func New() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
}

// Writer persists reports as timestamped JSON files under Dir.
type Writer struct {
	Dir string
}

// Write stores the report atomically and returns its path. A failure to
// persist is logged and reported with an empty path; diagnostics results
// must survive an unwritable output directory.
func (w Writer) Write(r *Report) (string, error) {
	if w.Dir == "" {
		return "", nil
	}
	path := filepath.Join(w.Dir, "report_"+r.Timestamp.Format(FilenameLayout)+".json")

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		slog.Warn("report directory unavailable", "dir", w.Dir, "err", err)
		return "", nil
	}
	if err := atomicWriteFile(path, data, 0o644); err != nil {
		slog.Warn("report not persisted", "path", path, "err", err)
		return "", nil
	}
	return path, nil
}

// Read loads a report previously produced by Write.
func Read(path string) (*Report, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &r, nil
}

// Summary renders a one-screen console digest of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s at %s\n", r.RunID, r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "frontend running: %v\n", r.FrontendRunning)
	fmt.Fprintf(&b, "backend running: %v\n", r.BackendRunning)
	if len(r.Findings) == 0 {
		b.WriteString("no findings\n")
		return b.String()
	}
	fmt.Fprintf(&b, "findings: %d\n", len(r.Findings))
	for i, f := range r.Findings {
		loc := ""
		if f.File != "" {
			loc = " " + f.File
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", loc, f.Line)
			}
		}
		fmt.Fprintf(&b, "  [%d] %s/%s%s\n", i+1, f.Source, f.Category, loc)
		if i < len(r.Suggestions) {
			fmt.Fprintf(&b, "      %s\n", firstLine(r.Suggestions[i].Explanation))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
