package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker(t *testing.T) {
	p := NewProgressTracker(4)
	assert.Equal(t, "calculating...", p.GetETA())
	assert.False(t, p.IsComplete())

	p.Increment("2023-12-04 success")
	current, total, pct, msg := p.GetProgress()
	assert.Equal(t, 1, current)
	assert.Equal(t, 4, total)
	assert.InDelta(t, 25.0, pct, 0.001)
	assert.Equal(t, "2023-12-04 success", msg)
	assert.NotEqual(t, "calculating...", p.GetETA())

	for i := 0; i < 3; i++ {
		p.Increment("")
	}
	assert.True(t, p.IsComplete())
	assert.Equal(t, "0 seconds", p.GetETA())
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	p := NewProgressTracker(0)
	_, _, pct, _ := p.GetProgress()
	assert.Zero(t, pct)
	assert.True(t, p.IsComplete())

	p.SetTotal(2)
	assert.False(t, p.IsComplete())
}
