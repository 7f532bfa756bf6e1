package process

import "time"

// Status is a point-in-time snapshot of a supervised process.
type Status struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PID        int       `json:"pid"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	ExitCode   int       `json:"exit_code"`
	ExitErr    error     `json:"-"`
	DetectedBy string    `json:"detected_by"`
}
