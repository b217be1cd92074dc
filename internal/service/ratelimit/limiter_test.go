package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllowConsumesCapacity(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clk.Now)

	assert.True(t, l.Allow("k", 2, 1))
	assert.True(t, l.Allow("k", 2, 1))
	assert.False(t, l.Allow("k", 2, 1))
	assert.True(t, l.Allow("other", 2, 1))
}

func TestAllowRefills(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clk.Now)

	assert.True(t, l.Allow("k", 1, 2))
	assert.False(t, l.Allow("k", 1, 2))

	clk.Advance(500 * time.Millisecond)
	assert.True(t, l.Allow("k", 1, 2))

	clk.Advance(10 * time.Second)
	assert.True(t, l.Allow("k", 1, 2))
	assert.False(t, l.Allow("k", 1, 2))
}

func TestPrune(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clk.Now)

	l.Allow("a", 1, 1)
	clk.Advance(time.Minute)
	l.Allow("b", 1, 1)

	assert.Equal(t, 1, l.Prune(30*time.Second))
	assert.Equal(t, 1, l.Len())
}
