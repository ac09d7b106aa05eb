//go:build windows

package cmd

import "os"

// handledSignals returns the signals the handler subscribes to.
func handledSignals() (sigs []os.Signal) {
	return []os.Signal{os.Interrupt}
}

// isDumpSignal returns true if sig requests a range dump rather than a
// shutdown.  There is no such signal on Windows.
func isDumpSignal(_ os.Signal) (ok bool) {
	return false
}
