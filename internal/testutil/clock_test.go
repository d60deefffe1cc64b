package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_Advance(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewClock(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}

func TestFixedIDs(t *testing.T) {
	gen := FixedIDs("a", "b")
	assert.Equal(t, "a", gen())
	assert.Equal(t, "b", gen())
	assert.Panics(t, func() { gen() })
}
