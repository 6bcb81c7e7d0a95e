//go:build !unix

package transport

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// terminate kills the child outright; there is no SIGTERM to send here.
func terminate(proc *os.Process) error {
	return forceKill(proc)
}

func forceKill(proc *os.Process) error {
	err := proc.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
