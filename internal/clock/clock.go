package clock

import (
	"sync"
	"time"

	"github.com/flexprice/invoicerecon/internal/types"
)

// Clock supplies the current billing date. Billing works on whole UTC days
// so implementations return midnight.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystemClock follows the wall clock
func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return types.StartOfDay(time.Now())
}

// ManualClock only moves when told to. Scenario runs and tests drive time with it.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: types.StartOfDay(start)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set moves the clock to date, backwards moves are ignored
func (c *ManualClock) Set(date time.Time) {
	date = types.StartOfDay(date)

	c.mu.Lock()
	defer c.mu.Unlock()
	if date.After(c.now) {
		c.now = date
	}
}

// AdvanceDays moves the clock forward by n days
func (c *ManualClock) AdvanceDays(n int) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.now = c.now.AddDate(0, 0, n)
	}
	return c.now
}
