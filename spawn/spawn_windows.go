//go:build windows

package spawn

import (
	"os/exec"
	"strconv"
)

func setSysProcAttr(cmd *exec.Cmd) {
	// Windows has no process groups in the Unix sense; taskkill /T below
	// walks the child tree instead.
}

// killTree terminates the child and its descendants via taskkill.
func killTree(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(cmd.Process.Pid))
	_ = kill.Run()
}
