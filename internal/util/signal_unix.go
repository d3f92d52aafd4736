//go:build !windows

package util

import (
	"os"
	"syscall"
)

// ShutdownSignals lists the signals that trigger a clean shutdown of the
// monitor process.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a child process to wind down before it gets killed.
// Speech engines use this as the exec.Cmd cancel hook.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}
