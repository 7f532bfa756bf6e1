package detector

import (
	"strconv"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// PIDDetector reports liveness of an OS process by PID. A zombie is treated
// as not alive: the child has exited and only awaits reaping.
type PIDDetector struct {
	PID int
}

func (d PIDDetector) Alive() (bool, error) {
	if d.PID <= 0 {
		return false, nil
	}
	exists, err := gopsproc.PidExists(int32(d.PID))
	if err != nil || !exists {
		return false, err
	}
	p, err := gopsproc.NewProcess(int32(d.PID))
	if err != nil {
		return false, nil
	}
	statuses, err := p.Status()
	if err != nil {
		// Process exists but status is unreadable; assume alive.
		return true, nil
	}
	for _, st := range statuses {
		if st == gopsproc.Zombie {
			return false, nil
		}
	}
	return true, nil
}

func (d PIDDetector) Describe() string { return "pid:" + strconv.Itoa(d.PID) }
