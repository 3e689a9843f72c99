package observe

// If the worker is gone, say so. If we are unsure, keep looking.
// Observation never signals anything.

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultPollInterval is how often WaitGone re-checks the PID
const DefaultPollInterval = 50 * time.Millisecond

// Watcher observes PID lifecycle. Nothing else.
type Watcher struct {
	pid       int
	startTime time.Time
}

// New creates a watcher for a PID
func New(pid int) *Watcher {
	return &Watcher{
		pid:       pid,
		startTime: time.Now(),
	}
}

// PID returns the observed process ID
func (w *Watcher) PID() int {
	return w.pid
}

// Exists checks if PID still exists
func (w *Watcher) Exists(ctx context.Context) bool {
	if w.pid <= 0 {
		return false
	}
	ok, err := process.PidExistsWithContext(ctx, int32(w.pid))
	if err != nil {
		// Unknown is treated as alive; callers keep waiting
		return true
	}
	return ok
}

// WaitGone polls until the PID disappears or ctx is done.
// Returns true if the process was confirmed gone.
func (w *Watcher) WaitGone(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if !w.Exists(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return !w.Exists(context.Background())
		case <-ticker.C:
		}
	}
}

// Duration returns how long we've been observing
func (w *Watcher) Duration() time.Duration {
	return time.Since(w.startTime)
}
