package scanner

import "time"

// Source tags which supervised service produced a finding.
type Source string

const (
	SourceFrontend Source = "frontend"
	SourceBackend  Source = "backend"
)

// Category classifies a finding. This is heuristic triage, not a parser:
// the categories mirror the failure banners dev toolchains actually print.
type Category string

const (
	CategoryCompileError Category = "compile_error"
	CategoryRuntimeCrash Category = "runtime_crash"
	CategorySyntaxError  Category = "syntax_error"
	CategoryPortConflict Category = "port_conflict"
	CategoryUnknown      Category = "unknown"
)

// ExcerptLimit bounds the raw text carried by one finding. Whole captured
// streams can be large; the tail is what identifies the failure.
const ExcerptLimit = 2000

// Finding is one detected anomaly in a service's output or source tree.
// Immutable once created.
type Finding struct {
	Source     Source    `json:"source"`
	Category   Category  `json:"category"`
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	Excerpt    string    `json:"excerpt"`
	DetectedAt time.Time `json:"detected_at"`
}

// Clip returns the trailing n bytes of s; the tail of a traceback or build
// failure names the actual error.
func Clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
