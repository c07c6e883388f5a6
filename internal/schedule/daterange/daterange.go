// Package daterange converts a reference date plus a view granularity into
// the canonical date range and per-cell dates the schedule grid is built on.
// Everything here is pure; all math happens in the reference time's own
// location so date keys never drift across midnight in the viewer's zone.
package daterange

import (
	"errors"
	"time"
)

type ViewMode string

const (
	Daily   ViewMode = "daily"
	Weekly  ViewMode = "weekly"
	Monthly ViewMode = "monthly"
)

// MonthGridCells is the fixed size of the month grid: six full weeks.
const MonthGridCells = 42

var ErrUnknownViewMode = errors.New("unknown view mode")

// Range is half-open at day granularity: Start is a midnight, End is the
// last representable millisecond of its day.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseViewMode normalizes a raw mode string.
func ParseViewMode(raw string) (ViewMode, error) {
	switch ViewMode(raw) {
	case Daily, Weekly, Monthly:
		return ViewMode(raw), nil
	default:
		return "", ErrUnknownViewMode
	}
}

// Key returns the canonical YYYY-MM-DD date key in t's location. Callers must
// never derive keys by truncating an ISO-UTC string; that shifts dates by a
// day for viewers west of UTC.
func Key(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseKey interprets a YYYY-MM-DD key as a midnight in loc.
func ParseKey(key string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", key, loc)
}

// StartOfDay returns midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// StartOfWeek returns the Monday midnight on or before t. Sundays map to the
// previous Monday, not the next.
func StartOfWeek(t time.Time) time.Time {
	back := (int(t.Weekday()) + 6) % 7
	return StartOfDay(t).AddDate(0, 0, -back)
}

// For computes the canonical range for a reference date and view mode.
func For(ref time.Time, mode ViewMode) (Range, error) {
	switch mode {
	case Daily:
		return Range{Start: StartOfDay(ref), End: EndOfDay(ref)}, nil
	case Weekly:
		monday := StartOfWeek(ref)
		return Range{Start: monday, End: EndOfDay(monday.AddDate(0, 0, 6))}, nil
	case Monthly:
		first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		last := first.AddDate(0, 1, -1)
		return Range{Start: first, End: EndOfDay(last)}, nil
	default:
		return Range{}, ErrUnknownViewMode
	}
}

// WeekCells returns the seven day cells Monday through Sunday around ref.
func WeekCells(ref time.Time) []time.Time {
	monday := StartOfWeek(ref)
	cells := make([]time.Time, 7)
	for i := range cells {
		cells[i] = monday.AddDate(0, 0, i)
	}
	return cells
}

// MonthCells returns exactly 42 consecutive day cells starting from the
// Sunday on or before the 1st of ref's month. The window is fixed-length:
// it pads into adjacent months on both ends and never stretches or shrinks
// for long or short months.
func MonthCells(ref time.Time) []time.Time {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	start := first.AddDate(0, 0, -int(first.Weekday()))
	cells := make([]time.Time, MonthGridCells)
	for i := range cells {
		cells[i] = start.AddDate(0, 0, i)
	}
	return cells
}

// Keys maps a cell sequence to its date keys.
func Keys(cells []time.Time) []string {
	keys := make([]string, len(cells))
	for i, c := range cells {
		keys[i] = Key(c)
	}
	return keys
}
