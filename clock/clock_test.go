package clock_test

import (
	"testing"
	"time"

	"github.com/parkerroan/hitledger/clock"
	"github.com/stretchr/testify/assert"
)

func TestSystem_Now(t *testing.T) {
	before := time.Now()
	got := clock.System{}.Now()
	assert.False(t, got.Before(before))
}

func TestOffset_Now(t *testing.T) {
	base := clock.NewManual(time.Unix(100, 0))
	c := clock.NewOffset(base, 3*time.Second)

	assert.Equal(t, time.Unix(103, 0), c.Now())
	assert.Equal(t, 3*time.Second, c.Offset())

	base.Advance(time.Second)
	assert.Equal(t, time.Unix(104, 0), c.Now())
}

func TestOffset_NilBaseUsesSystem(t *testing.T) {
	c := clock.NewOffset(nil, -time.Hour)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), c.Now(), time.Second)
}

func TestManual(t *testing.T) {
	m := clock.NewManual(time.Unix(0, 0))
	m.Advance(1500 * time.Millisecond)
	assert.Equal(t, time.Unix(1, 5e8), m.Now())

	m.Set(time.Unix(42, 0))
	assert.Equal(t, time.Unix(42, 0), m.Now())
}
