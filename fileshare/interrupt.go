package fileshare

import "sync/atomic"

// interruptFlag is the process-wide cancellation signal described in spec
// §5. An external signal handler (SIGINT, console control handler) sets it;
// the filesystem walk, the diff walk, and the Sync Driver's per-file
// execution loop poll it at each iteration boundary.
var interruptFlag int32

// SetInterrupted raises the interrupt flag. Safe to call from a signal
// handler goroutine.
func SetInterrupted() {
	atomic.StoreInt32(&interruptFlag, 1)
}

// ClearInterrupted resets the flag. Called once per sync workflow on entry,
// tying the flag's lifecycle to the repository session.
func ClearInterrupted() {
	atomic.StoreInt32(&interruptFlag, 0)
}

// Interrupted reports whether the flag is currently set.
func Interrupted() bool {
	return atomic.LoadInt32(&interruptFlag) != 0
}

func checkInterrupted() error {
	if Interrupted() {
		return interruptedErr()
	}
	return nil
}

// CheckInterrupted is checkInterrupted exported for use by the transport
// and config packages, which poll the same process-wide flag mid-chunk.
func CheckInterrupted() error {
	return checkInterrupted()
}
