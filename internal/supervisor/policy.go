package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
)

// PolicyKind selects how restart delays grow
type PolicyKind string

const (
	PolicyFixed       PolicyKind = "fixed"
	PolicyExponential PolicyKind = "exponential"
)

const (
	DefaultRestartDelay = 5 * time.Second
	DefaultMaxDelay     = 5 * time.Minute
	DefaultResetAfter   = time.Minute
)

// RestartPolicy decides how long to wait before the next attempt.
// Restarts are never capped in count.
type RestartPolicy struct {
	Kind PolicyKind

	// Delay is the fixed delay, or the first delay for exponential
	Delay time.Duration

	// MaxDelay caps exponential growth
	MaxDelay time.Duration

	// ResetAfter drops exponential delay back to Delay once a worker
	// has stayed up this long
	ResetAfter time.Duration
}

// DefaultRestartPolicy restarts every 5 seconds
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		Kind:       PolicyFixed,
		Delay:      DefaultRestartDelay,
		MaxDelay:   DefaultMaxDelay,
		ResetAfter: DefaultResetAfter,
	}
}

// Validate checks the policy and fills zero values with defaults
func (p *RestartPolicy) Validate() error {
	if p.Kind == "" {
		p.Kind = PolicyFixed
	}
	if p.Kind != PolicyFixed && p.Kind != PolicyExponential {
		return fmt.Errorf("unknown restart policy %q (valid: fixed, exponential)", p.Kind)
	}
	if p.Delay < 0 {
		return fmt.Errorf("restart delay must not be negative: %s", p.Delay)
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	if p.ResetAfter <= 0 {
		p.ResetAfter = DefaultResetAfter
	}
	return nil
}

// backOff returns a fresh delay sequence for this policy
func (p RestartPolicy) backOff() backoff.BackOff {
	if p.Kind != PolicyExponential {
		return backoff.NewConstantBackOff(p.Delay)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// restartDelays hands out delays and resets after a long enough run
type restartDelays struct {
	policy RestartPolicy
	b      backoff.BackOff
}

func newRestartDelays(p RestartPolicy) *restartDelays {
	return &restartDelays{policy: p, b: p.backOff()}
}

// Next returns the delay before the next attempt given how long the
// previous one ran
func (d *restartDelays) Next(ran time.Duration) time.Duration {
	if ran >= d.policy.ResetAfter {
		d.b.Reset()
	}
	next := d.b.NextBackOff()
	if next < 0 {
		next = d.policy.MaxDelay
	}
	return next
}

// sleep waits for d on clk. Returns false if ctx ended first.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clk.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
