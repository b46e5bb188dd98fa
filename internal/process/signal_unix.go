//go:build !windows

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup keeps terminal SIGINT away from the child so the
// recorder decides when it stops.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func interrupt(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}
