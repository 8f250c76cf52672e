//go:build unix

package spawn

import (
	"os/exec"
	"syscall"
	"time"
)

// setSysProcAttr puts the child in its own process group so the whole
// tree can be signalled at once.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killTree signals the whole process group: SIGTERM first, a short grace
// period, then SIGKILL. Negative PID addresses the group.
func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	time.Sleep(100 * time.Millisecond)
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
