//go:build unix

package cmd

import (
	"os"

	"golang.org/x/sys/unix"
)

// handledSignals returns the signals the handler subscribes to.
func handledSignals() (sigs []os.Signal) {
	return []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGQUIT, unix.SIGUSR1}
}

// isDumpSignal returns true if sig requests a range dump rather than a
// shutdown.
func isDumpSignal(sig os.Signal) (ok bool) {
	return sig == unix.SIGUSR1
}
