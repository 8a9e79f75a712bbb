//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in a new session so a single signal to
// -pgid reaches every descendant.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func terminateGroup(pid int) {
	// Negative pid addresses the whole group. ESRCH means it already exited.
	_ = syscall.Kill(-pid, syscall.SIGTERM)
}

func forceKillGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
