// Package lifecycle tracks process uptime and the shutdown drain.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	started = time.Now()
	// drainStart is the unix nano time shutdown began; 0 while serving.
	drainStart atomic.Int64
)

// SetShuttingDown marks the start (true) or cancellation (false) of the
// drain. The health handler reports shutting-down while it is set.
func SetShuttingDown(v bool) {
	if !v {
		drainStart.Store(0)
		return
	}
	drainStart.CompareAndSwap(0, time.Now().UnixNano())
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return drainStart.Load() != 0
}

// DrainingSince returns when the drain began.
func DrainingSince() (time.Time, bool) {
	ns := drainStart.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Uptime is the time since process start.
func Uptime() time.Duration {
	return time.Since(started)
}
