//go:build windows

package util

import "os"

// ShutdownSignals lists the signals that trigger a clean shutdown of the
// monitor process.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal asks a child process to wind down before it gets killed.
// Windows has no SIGINT delivery for child processes; returning nil lets the
// caller fall through to the exec.Cmd WaitDelay kill.
func GracefulSignal(p *os.Process) error {
	return nil
}
