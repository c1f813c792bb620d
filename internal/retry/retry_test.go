package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControllerExhaustsAfterMaxAttempts(t *testing.T) {
	c := Policy{MaxAttempts: 3, InitialInterval: time.Millisecond}.Start()

	_, ok := c.Next()
	assert.True(t, ok)
	_, ok = c.Next()
	assert.True(t, ok)
	_, ok = c.Next()
	assert.False(t, ok)
	assert.Equal(t, 3, c.Attempts())
}

func TestControllerDelaysGrowWithJitter(t *testing.T) {
	p := Policy{
		MaxAttempts:         10,
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         time.Second,
		Multiplier:          2,
		RandomizationFactor: 0.5,
	}
	c := p.Start()

	expected := p.InitialInterval
	for i := 0; i < 6; i++ {
		d, ok := c.Next()
		assert.True(t, ok)

		low := time.Duration(float64(expected) * 0.5)
		high := time.Duration(float64(expected) * 1.5)
		assert.GreaterOrEqual(t, d, low, "attempt %d", i+1)
		assert.LessOrEqual(t, d, high, "attempt %d", i+1)

		expected = time.Duration(float64(expected) * p.Multiplier)
		if expected > p.MaxInterval {
			expected = p.MaxInterval
		}
	}
}

func TestControllerJitterSpreadsCallers(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialInterval: time.Second, RandomizationFactor: 0.5}

	seen := map[time.Duration]bool{}
	for i := 0; i < 20; i++ {
		d, _ := p.Start().Next()
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1, "independent callers should not back off in lockstep")
}

func TestPolicyDefaults(t *testing.T) {
	c := Policy{}.Start()
	assert.Equal(t, DefaultPolicy(), c.Policy())

	c = Policy{InitialInterval: time.Minute, MaxInterval: time.Second}.Start()
	assert.Equal(t, time.Minute, c.Policy().MaxInterval)
}
