//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// setupShutdownHandler registers SIGINT/SIGTERM and invokes abort exactly
// once when either arrives, grounded on the teacher's daemon shutdown
// handler. It returns a stop func to unregister the handler once the
// download loop has exited on its own.
func setupShutdownHandler(abort func()) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

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
