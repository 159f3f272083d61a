package types

import (
	"time"

	ierr "github.com/usageline/usageline/internal/errors"
)

// PeriodType is the granularity of an aggregation window.
type PeriodType string

const (
	PeriodTypeHour  PeriodType = "hour"
	PeriodTypeDay   PeriodType = "day"
	PeriodTypeWeek  PeriodType = "week"
	PeriodTypeMonth PeriodType = "month"
)

func (p PeriodType) Validate() error {
	switch p {
	case PeriodTypeHour, PeriodTypeDay, PeriodTypeWeek, PeriodTypeMonth:
		return nil
	default:
		return ierr.NewError("invalid period type").
			WithHint("Invalid period type").
			WithReportableDetails(map[string]any{
				"period_type": p,
				"allowed":     []PeriodType{PeriodTypeHour, PeriodTypeDay, PeriodTypeWeek, PeriodTypeMonth},
			}).
			Mark(ierr.ErrValidation)
	}
}

func (p PeriodType) String() string {
	return string(p)
}

// Truncate aligns t down to the start of the period containing it.
// Weeks start on Monday. All alignment is in UTC.
func (p PeriodType) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodTypeHour:
		return t.Truncate(time.Hour)
	case PeriodTypeDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodTypeWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Weekday() is Sunday=0, shift so Monday=0.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodTypeMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Next returns the start of the period immediately following the period
// containing t.
func (p PeriodType) Next(t time.Time) time.Time {
	start := p.Truncate(t)
	switch p {
	case PeriodTypeHour:
		return start.Add(time.Hour)
	case PeriodTypeDay:
		return start.AddDate(0, 0, 1)
	case PeriodTypeWeek:
		return start.AddDate(0, 0, 7)
	case PeriodTypeMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}

// ReplayWindow returns how far back the aggregator recomputes windows of
// this granularity on each cycle. The extra slack beyond one full period
// covers late-arriving events that land in an already closed window.
func (p PeriodType) ReplayWindow() time.Duration {
	switch p {
	case PeriodTypeHour:
		return 25 * time.Hour
	case PeriodTypeDay:
		return 8 * 24 * time.Hour
	case PeriodTypeWeek:
		return 5 * 7 * 24 * time.Hour
	case PeriodTypeMonth:
		// Months are uneven; 13 * 31 days comfortably covers 13 months.
		return 13 * 31 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// PeriodsBetween tiles [from, to) with aligned period starts. The first
// element is the period containing from; the last is the period
// containing to (or the one before it if to is exactly aligned).
func (p PeriodType) PeriodsBetween(from, to time.Time) []time.Time {
	if !from.Before(to) {
		return nil
	}
	var starts []time.Time
	for cur := p.Truncate(from); cur.Before(to); cur = p.Next(cur) {
		starts = append(starts, cur)
	}
	return starts
}

// AllPeriodTypes lists every supported aggregation granularity.
func AllPeriodTypes() []PeriodType {
	return []PeriodType{PeriodTypeHour, PeriodTypeDay, PeriodTypeWeek, PeriodTypeMonth}
}
