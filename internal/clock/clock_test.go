package clock

import (
	"testing"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestManualClock(t *testing.T) {
	c := NewManualClock(time.Date(2024, 3, 1, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, types.Date(2024, 3, 1), c.Now())

	c.Set(types.Date(2024, 3, 15))
	assert.Equal(t, types.Date(2024, 3, 15), c.Now())

	c.Set(types.Date(2024, 3, 2))
	assert.Equal(t, types.Date(2024, 3, 15), c.Now(), "clock never moves backwards")

	assert.Equal(t, types.Date(2024, 4, 14), c.AdvanceDays(30))
}

func TestSystemClockIsMidnight(t *testing.T) {
	now := NewSystemClock().Now()
	assert.Equal(t, 0, now.Hour())
	assert.Equal(t, time.UTC, now.Location())
}
