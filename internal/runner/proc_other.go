//go:build !unix

package runner

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}

func killProcessGroup(cmd *exec.Cmd) {}
