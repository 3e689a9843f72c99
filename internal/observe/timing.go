package observe

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Timing records start/end timestamps of one worker attempt
type Timing struct {
	clock       clock.Clock
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewTiming starts timing now on clk (the wall clock if nil)
func NewTiming(clk clock.Clock) *Timing {
	if clk == nil {
		clk = clock.New()
	}
	return &Timing{
		clock:     clk,
		StartedAt: clk.Now(),
	}
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = t.clock.Now()
}

// Duration returns execution duration, or time so far while running
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.clock.Since(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
