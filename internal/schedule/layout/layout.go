// Package layout projects a day's events onto the vertical time grid and
// computes the bounded per-cell subsets for the week and month grids.
package layout

import (
	"time"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
)

// Default daily-grid geometry, in abstract layout units.
const (
	DefaultHourHeight     = 80
	DefaultTopOffset      = 20
	DefaultMinEventHeight = 50
)

// Grid holds the daily-grid geometry. The zero value is not usable; build
// one with NewGrid or fill all fields from config.
type Grid struct {
	// HourHeight is the unit height of one hour column segment.
	HourHeight float64
	// TopOffset keeps the first hour's label from being clipped.
	TopOffset float64
	// MinEventHeight keeps zero and negative duration events visible and
	// clickable.
	MinEventHeight float64
}

func NewGrid() Grid {
	return Grid{
		HourHeight:     DefaultHourHeight,
		TopOffset:      DefaultTopOffset,
		MinEventHeight: DefaultMinEventHeight,
	}
}

// Position is an absolute vertical placement on the daily grid. Overlapping
// events are allowed to overlap visually; there is no lane packing.
type Position struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Position places an event on the grid of the given day. Minutes are counted
// from the day's midnight in the day's location.
func (g Grid) Position(ev contracts.CalendarEvent, day time.Time) Position {
	dayStart := daterange.StartOfDay(day)
	fromMidnight := ev.Start.Sub(dayStart).Minutes()
	duration := ev.End.Sub(ev.Start).Minutes()

	top := fromMidnight*(g.HourHeight/60) + g.TopOffset
	height := duration * (g.HourHeight / 60)
	if height < g.MinEventHeight {
		height = g.MinEventHeight
	}
	return Position{Top: top, Height: height}
}

// OverlapsDay reports whether ev belongs on day's cell. The test is interval
// overlap, so an event spanning midnight lands on both adjacent cells.
func OverlapsDay(ev contracts.CalendarEvent, day time.Time) bool {
	dayStart := daterange.StartOfDay(day)
	dayEnd := daterange.EndOfDay(day)
	return !ev.Start.After(dayEnd) && !ev.End.Before(dayStart)
}

// EventsForDay filters events down to the ones overlapping day, preserving
// input order.
func EventsForDay(events []contracts.CalendarEvent, day time.Time) []contracts.CalendarEvent {
	out := make([]contracts.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if OverlapsDay(ev, day) {
			out = append(out, ev)
		}
	}
	return out
}

// Allocation is the bounded visible subset of one week/month cell plus the
// count collapsed behind the "+N more" affordance.
type Allocation struct {
	Tasks    []contracts.Task          `json:"tasks"`
	Events   []contracts.CalendarEvent `json:"events"`
	Overflow int                       `json:"overflow"`
}

// Allocate computes the visible subset of a cell under a fixed slot budget.
//
// When both display toggles are on and the cell holds at least one of each
// kind, exactly one slot goes to a task and one to an event so both kinds
// stay visible, even if one kind has more items. A lone kind may fill the
// whole budget. A disabled kind is excluded from both the visible subset and
// the overflow denominator.
func Allocate(tasks []contracts.Task, events []contracts.CalendarEvent, budget int, showTasks, showEvents bool) Allocation {
	if !showTasks {
		tasks = nil
	}
	if !showEvents {
		events = nil
	}

	var taskSlots, eventSlots int
	switch {
	case len(tasks) > 0 && len(events) > 0:
		taskSlots, eventSlots = 1, 1
	case len(tasks) > 0:
		taskSlots = budget
	case len(events) > 0:
		eventSlots = budget
	}

	if taskSlots > len(tasks) {
		taskSlots = len(tasks)
	}
	if eventSlots > len(events) {
		eventSlots = len(events)
	}

	visible := Allocation{
		Tasks:  append([]contracts.Task(nil), tasks[:taskSlots]...),
		Events: append([]contracts.CalendarEvent(nil), events[:eventSlots]...),
	}
	visible.Overflow = (len(tasks) + len(events)) - (taskSlots + eventSlots)
	return visible
}
