//go:build unix

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// startDaemon launches orcastr-daemon from the directory of this binary in
// its own session so it outlives the proxy.
func startDaemon() error {
	execPath, err := os.Executable()
	if err != nil {
		return err
	}
	daemonPath := filepath.Join(filepath.Dir(execPath), "orcastr-daemon")

	cmd := exec.Command(daemonPath)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return cmd.Process.Release()
}
