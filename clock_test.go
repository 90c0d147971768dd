package planets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	require.Equal(t, start, c.Now())

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, start.Add(1500*time.Millisecond), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestClockOrSystem(t *testing.T) {
	_, ok := ClockOrSystem(nil).(SystemClock)
	assert.True(t, ok)

	m := NewManualClock(time.Unix(0, 0))
	assert.Same(t, m, ClockOrSystem(m))
}

func TestWorldClockTick(t *testing.T) {
	w := NewWorldClock(10, 1)
	w.Tick(500 * time.Millisecond)
	assert.InDelta(t, 5.0, w.Dt, 1e-9)
	assert.InDelta(t, 6.0, w.T, 1e-9)

	w.Multiplier = 0
	w.Tick(time.Second)
	assert.Equal(t, 0.0, w.Dt)
	assert.InDelta(t, 6.0, w.T, 1e-9)
}
