package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiter_BurstThenRefill(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}
	l := New(3, 2)
	l.now = c.now

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "burst %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	// other callers have their own bucket
	assert.True(t, l.Allow("10.0.0.2"))

	c.t = c.t.Add(500 * time.Millisecond)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// refill never exceeds capacity
	c.t = c.t.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestLimiter_SweepsIdleKeys(t *testing.T) {
	c := &clock{t: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)}
	l := New(1, 1)
	l.now = c.now
	l.idleTTL = time.Minute

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	c.t = c.t.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}
