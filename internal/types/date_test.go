package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBillingPeriods(t *testing.T) {
	tests := []struct {
		name    string
		anchor  time.Time
		n       int
		unit    int
		period  BillingPeriod
		want    time.Time
		wantErr bool
	}{
		{
			name:   "monthly first period",
			anchor: Date(2024, time.June, 1),
			n:      1,
			unit:   1,
			period: BILLING_PERIOD_MONTHLY,
			want:   Date(2024, time.July, 1),
		},
		{
			name:   "monthly anchored on the 31st clamps in february",
			anchor: Date(2024, time.January, 31),
			n:      1,
			unit:   1,
			period: BILLING_PERIOD_MONTHLY,
			want:   Date(2024, time.February, 29),
		},
		{
			name:   "monthly anchored on the 31st does not drift",
			anchor: Date(2024, time.January, 31),
			n:      2,
			unit:   1,
			period: BILLING_PERIOD_MONTHLY,
			want:   Date(2024, time.March, 31),
		},
		{
			name:   "quarterly via unit",
			anchor: Date(2024, time.November, 15),
			n:      1,
			unit:   3,
			period: BILLING_PERIOD_MONTHLY,
			want:   Date(2025, time.February, 15),
		},
		{
			name:   "daily crosses month end",
			anchor: Date(2024, time.January, 30),
			n:      5,
			unit:   1,
			period: BILLING_PERIOD_DAILY,
			want:   Date(2024, time.February, 4),
		},
		{
			name:   "weekly",
			anchor: Date(2024, time.December, 30),
			n:      1,
			unit:   2,
			period: BILLING_PERIOD_WEEKLY,
			want:   Date(2025, time.January, 13),
		},
		{
			name:   "annual leap day",
			anchor: Date(2024, time.February, 29),
			n:      1,
			unit:   1,
			period: BILLING_PERIOD_ANNUAL,
			want:   Date(2025, time.February, 28),
		},
		{
			name:    "invalid unit",
			anchor:  Date(2024, time.June, 1),
			n:       1,
			unit:    0,
			period:  BILLING_PERIOD_MONTHLY,
			wantErr: true,
		},
		{
			name:    "invalid period",
			anchor:  Date(2024, time.June, 1),
			n:       1,
			unit:    1,
			period:  BillingPeriod("HOURLY"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AddBillingPeriods(tt.anchor, tt.n, tt.unit, tt.period)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddPhaseDuration(t *testing.T) {
	start := Date(2024, time.March, 1)

	end, ok := AddPhaseDuration(start, 14, DURATION_UNIT_DAYS)
	require.True(t, ok)
	assert.Equal(t, Date(2024, time.March, 15), end)

	end, ok = AddPhaseDuration(start, 1, DURATION_UNIT_MONTHS)
	require.True(t, ok)
	assert.Equal(t, Date(2024, time.April, 1), end)

	_, ok = AddPhaseDuration(start, 0, DURATION_UNIT_UNLIMITED)
	assert.False(t, ok)
}

func TestDaysBetween(t *testing.T) {
	ist := time.FixedZone("IST", 5*60*60+30*60)
	assert.Equal(t, 30, DaysBetween(Date(2024, time.June, 1), Date(2024, time.July, 1)))
	assert.Equal(t, -1, DaysBetween(Date(2024, time.June, 2), Date(2024, time.June, 1)))
	// the wall clock date is what counts, not the instant
	assert.Equal(t, 1, DaysBetween(
		time.Date(2024, time.June, 1, 23, 0, 0, 0, ist),
		time.Date(2024, time.June, 2, 1, 0, 0, 0, ist),
	))
}

func TestGetCurrencyPrecision(t *testing.T) {
	assert.Equal(t, int32(2), GetCurrencyPrecision("USD"))
	assert.Equal(t, int32(0), GetCurrencyPrecision("jpy"))
	assert.Equal(t, int32(3), GetCurrencyPrecision("KWD"))
	assert.Equal(t, int32(2), GetCurrencyPrecision("xyz"))
}
