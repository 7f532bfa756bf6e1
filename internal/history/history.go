package history

import (
	"context"
	"time"
)

// Record summarizes one diagnostics run for external storage.
type Record struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FrontendRunning bool      `json:"frontend_running"`
	BackendRunning  bool      `json:"backend_running"`
	Findings        int       `json:"findings"`
	Suggestions     int       `json:"suggestions"`
	ReportPath      string    `json:"report_path"`
}

// Event wraps a record with its occurrence time for export.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for diagnostics run history (audit/statistics
// systems). Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
