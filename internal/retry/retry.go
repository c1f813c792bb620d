// Package retry decides how long to wait between optimistic transaction
// attempts and when to give up. It never sleeps; callers do.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry sequence.
type Policy struct {
	MaxAttempts         int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:         5,
		InitialInterval:     200 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.RandomizationFactor <= 0 || p.RandomizationFactor > 1 {
		p.RandomizationFactor = d.RandomizationFactor
	}
	return p
}

// Controller tracks one retry sequence. It is not safe for concurrent use;
// each transaction owns its own.
type Controller struct {
	policy   Policy
	backoff  *backoff.ExponentialBackOff
	attempts int
}

// Start begins a new sequence. The first attempt is counted by the first call
// to Next.
func (p Policy) Start() *Controller {
	p = p.withDefaults()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0 // attempts bound the sequence, not wall time
	b.Reset()

	return &Controller{
		policy:  p,
		backoff: b,
	}
}

// Policy returns the effective policy after defaults.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Attempts is the number of attempts recorded so far.
func (c *Controller) Attempts() int {
	return c.attempts
}

// Next records a failed attempt. It returns the delay before the next
// attempt, or false once MaxAttempts attempts have been made.
func (c *Controller) Next() (time.Duration, bool) {
	c.attempts++
	if c.attempts >= c.policy.MaxAttempts {
		return 0, false
	}
	return c.backoff.NextBackOff(), true
}
