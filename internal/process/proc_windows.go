//go:build windows

package process

import (
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// Windows has no SIGTERM; both phases kill.
func terminate(cmd *exec.Cmd) error {
	return forceKill(cmd)
}

func forceKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func killByNameCommand(binary string) *exec.Cmd {
	return execCommand("taskkill", "/f", "/im", binary)
}
