//go:build unix

package transport

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the child in its own process group so that
// signals also reach any processes it spawns.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(proc *os.Process) error {
	return signalGroup(proc, unix.SIGTERM)
}

func forceKill(proc *os.Process) error {
	return signalGroup(proc, unix.SIGKILL)
}

// signalGroup signals the child's process group, falling back to the child
// alone. A process that already exited is not an error.
func signalGroup(proc *os.Process, sig unix.Signal) error {
	if err := unix.Kill(-proc.Pid, sig); err == nil {
		return nil
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
