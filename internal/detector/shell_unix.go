//go:build !windows

package detector

import "os/exec"

func shellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}

func trueCommand() *exec.Cmd {
	return exec.Command("/bin/true")
}
