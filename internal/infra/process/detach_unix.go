//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// detach puts the worker in its own session so it survives the server.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
