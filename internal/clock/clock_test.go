package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartOfDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("WAT", 60*60)

	// 23:30 UTC is already 00:30 the next day at UTC+1.
	instant := time.Date(2026, 5, 1, 23, 30, 0, 0, time.UTC)
	got := StartOfDay(instant, loc)

	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, loc), got)
	assert.True(t, got.Equal(time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)))
}

func TestFixed(t *testing.T) {
	at := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	c := Fixed(at)
	assert.Equal(t, at, c())
	assert.Equal(t, at, c())
}
