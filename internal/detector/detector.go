package detector

// Detector is a strategy that determines whether a supervised service is up.
// Implementations may probe a TCP port, a PID, or run a custom command.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the service is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
