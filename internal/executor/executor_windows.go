//go:build windows

package executor

import (
	"os/exec"
	"strconv"
	"syscall"
)

// setProcessGroup creates the child in its own process group so
// group-targeted signals and taskkill /T reach its descendants.
func setProcessGroup(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

func terminateGroup(pid int) {
	_ = exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T").Run()
}

func forceKillGroup(pid int) {
	_ = exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid), "/T").Run()
}
