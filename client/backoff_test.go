package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBounded_DelaySchedule(t *testing.T) {
	b := Bounded(100)
	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second, // holds at the table's last value
		32 * time.Second,
	}
	for i, d := range want {
		assert.Equal(t, d, b.Delay(i+1), "attempt %d", i+1)
	}
}

func TestUnbounded_DelaySchedule(t *testing.T) {
	b := Unbounded()

	// First six attempts follow the fixed table.
	assert.Equal(t, 1*time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 32*time.Second, b.Delay(6))

	// Past the table the wait is min(60, 2^(attempt-1)) seconds.
	assert.Equal(t, 60*time.Second, b.Delay(7))
	assert.Equal(t, 60*time.Second, b.Delay(8))
	assert.Equal(t, 60*time.Second, b.Delay(100), "large attempts must not overflow")
}

func TestRetryBudget_Exhausted(t *testing.T) {
	b := Bounded(3)
	assert.False(t, b.Exhausted(0))
	assert.False(t, b.Exhausted(2))
	assert.True(t, b.Exhausted(3))
	assert.True(t, b.Exhausted(4))

	u := Unbounded()
	assert.True(t, u.IsUnbounded())
	assert.False(t, u.Exhausted(1<<20))
}
