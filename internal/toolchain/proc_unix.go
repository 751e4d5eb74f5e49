//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own group and makes cancellation kill
// the group, so JVM children spawned by wrapper scripts die with it.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
