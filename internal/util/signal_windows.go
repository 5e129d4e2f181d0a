//go:build windows

package util

import "os"

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// GracefulSignal terminates the process. Windows has no SIGINT for
// child processes, so the capture process is killed directly.
func GracefulSignal(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
