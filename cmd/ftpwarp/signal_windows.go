//go:build windows

package main

import (
	"os"
	"os/signal"
)

// setupShutdownHandler registers os.Interrupt and invokes abort exactly
// once when it arrives. Windows has no SIGTERM equivalent in os/signal, so
// only Interrupt (Ctrl-C) is handled, matching the teacher's Windows
// shutdown path.
func setupShutdownHandler(abort func()) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigChan:
			abort()
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigChan)
	}
}
