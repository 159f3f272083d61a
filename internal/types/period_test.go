package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodTypeValidate(t *testing.T) {
	for _, p := range AllPeriodTypes() {
		assert.NoError(t, p.Validate())
	}
	assert.Error(t, PeriodType("quarter").Validate())
	assert.Error(t, PeriodType("").Validate())
}

func TestPeriodTypeTruncate(t *testing.T) {
	// Thursday, 2026-08-20 14:37:45 UTC
	ts := time.Date(2026, 8, 20, 14, 37, 45, 123, time.UTC)

	testCases := []struct {
		name   string
		period PeriodType
		want   time.Time
	}{
		{
			name:   "hour",
			period: PeriodTypeHour,
			want:   time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC),
		},
		{
			name:   "day",
			period: PeriodTypeDay,
			want:   time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "week starts monday",
			period: PeriodTypeWeek,
			want:   time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "month",
			period: PeriodTypeMonth,
			want:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.period.Truncate(ts))
		})
	}
}

func TestPeriodTypeTruncateWeekOnSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC), PeriodTypeWeek.Truncate(sunday))

	monday := time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, PeriodTypeWeek.Truncate(monday))
}

func TestPeriodTypeNext(t *testing.T) {
	ts := time.Date(2026, 1, 31, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), PeriodTypeHour.Next(ts))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), PeriodTypeDay.Next(ts))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), PeriodTypeMonth.Next(ts))

	// February is short; month arithmetic must not skip it.
	assert.Equal(t,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodTypeMonth.Next(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)))
}

func TestPeriodsBetween(t *testing.T) {
	from := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	to := time.Date(2026, 8, 20, 13, 0, 0, 0, time.UTC)

	starts := PeriodTypeHour.PeriodsBetween(from, to)
	assert.Equal(t, []time.Time{
		time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}, starts)

	// An aligned upper bound is exclusive.
	aligned := PeriodTypeDay.PeriodsBetween(
		time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	assert.Len(t, aligned, 2)

	assert.Empty(t, PeriodTypeDay.PeriodsBetween(to, from))
}

func TestReplayWindowCoversOneFullPeriod(t *testing.T) {
	assert.Greater(t, PeriodTypeHour.ReplayWindow(), time.Hour)
	assert.Greater(t, PeriodTypeDay.ReplayWindow(), 24*time.Hour)
	assert.Greater(t, PeriodTypeWeek.ReplayWindow(), 7*24*time.Hour)
	assert.Greater(t, PeriodTypeMonth.ReplayWindow(), 31*24*time.Hour)
}
