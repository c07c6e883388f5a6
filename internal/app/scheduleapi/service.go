// Package scheduleapi assembles the schedule views served over HTTP: range
// computation, source merge, task correlation and per-cell layout, plus the
// task and note mutations that feed back into those views.
package scheduleapi

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/platform/log"
	"github.com/workdeck/schedule-engine/internal/platform/metrics"
	"github.com/workdeck/schedule-engine/internal/schedule/correlate"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
	"github.com/workdeck/schedule-engine/internal/schedule/layout"
	"github.com/workdeck/schedule-engine/internal/schedule/merge"
	"github.com/workdeck/schedule-engine/internal/signals"
	"github.com/workdeck/schedule-engine/internal/taskedit"
)

// ErrStaleFetch marks a refresh whose result was superseded by a newer
// refresh for the same viewer before it landed.
var ErrStaleFetch = errors.New("schedule fetch superseded by a newer request")

// TaskStore is the task repository surface the engine needs.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]contracts.Task, error)
	GetTask(ctx context.Context, taskID string) (contracts.Task, error)
	CreateTask(ctx context.Context, task contracts.Task) error
	UpdateTask(ctx context.Context, taskID string, fields contracts.TaskFields) (contracts.Task, error)
	ArchiveTask(ctx context.Context, taskID string) error
}

// EventWriter stores internally created events, the second merge source.
type EventWriter interface {
	InsertEvent(ctx context.Context, userID string, ev contracts.CalendarEvent) error
}

// Directory is the user/project lookup surface. Project listing is scoped to
// the viewer.
type Directory interface {
	ListUsers(ctx context.Context) ([]contracts.User, error)
	GetUser(ctx context.Context, userID string) (contracts.User, error)
	ListProjects(ctx context.Context, userID string) ([]contracts.Project, error)
}

// ConnectionReporter exposes the provider's last-call health, surfaced on
// schedule responses so clients can flag a degraded merge.
type ConnectionReporter interface {
	Connected() bool
}

// PlacedEvent is an event plus its vertical placement on the daily grid.
type PlacedEvent struct {
	contracts.CalendarEvent
	Position layout.Position `json:"position"`
}

// Cell is one bounded week/month grid cell.
type Cell struct {
	Date     string                    `json:"date"`
	Tasks    []contracts.Task          `json:"tasks"`
	Events   []contracts.CalendarEvent `json:"events"`
	Overflow int                       `json:"overflow"`
}

// DayView is the daily panel: positioned events plus the deliverables list.
type DayView struct {
	Date         string           `json:"date"`
	Events       []PlacedEvent    `json:"events"`
	Deliverables []contracts.Task `json:"deliverables"`
}

// Snapshot is one fully assembled schedule view.
type Snapshot struct {
	Mode              daterange.ViewMode `json:"mode"`
	Range             daterange.Range    `json:"range"`
	Generation        uint64             `json:"generation"`
	ProviderConnected bool               `json:"provider_connected"`
	Cells             []Cell             `json:"cells,omitempty"`
	Day               *DayView           `json:"day,omitempty"`
}

type Service struct {
	Merger   *merge.Merger
	Tasks    TaskStore
	Events   EventWriter
	Users    Directory
	Provider ConnectionReporter
	Signals  *signals.Bus

	Grid            layout.Grid
	WeekCellBudget  int
	MonthCellBudget int

	Now   func() time.Time
	NewID func() string

	mu   sync.Mutex
	gen  map[string]uint64
	last map[string]Snapshot
}

func NewService(merger *merge.Merger, tasks TaskStore, users Directory) *Service {
	return &Service{
		Merger:          merger,
		Tasks:           tasks,
		Users:           users,
		Grid:            layout.NewGrid(),
		WeekCellBudget:  2,
		MonthCellBudget: 1,
		Now:             func() time.Time { return time.Now() },
		NewID:           func() string { return nuid.Next() },
		gen:             map[string]uint64{},
		last:            map[string]Snapshot{},
	}
}

// begin opens a new fetch generation for the viewer and invalidates every
// older in-flight one.
func (s *Service) begin(viewerID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen[viewerID]++
	return s.gen[viewerID]
}

// land records the snapshot unless a newer generation opened while this fetch
// was running; a superseded result is discarded whole, never blended.
func (s *Service) land(viewerID string, gen uint64, snap Snapshot) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen[viewerID] != gen {
		metrics.StaleResponses.WithLabelValues("superseded").Inc()
		return Snapshot{}, ErrStaleFetch
	}
	s.last[viewerID] = snap
	return snap, nil
}

// Latest returns the viewer's most recently landed snapshot, if any.
func (s *Service) Latest(viewerID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.last[viewerID]
	return snap, ok
}

// Refresh rebuilds the viewer's schedule view for the reference date and
// mode. Source failures degrade to partial data; only a stale generation or a
// broken task store fail the refresh.
func (s *Service) Refresh(ctx context.Context, viewerID string, ref time.Time, mode daterange.ViewMode, showTasks, showEvents bool) (Snapshot, error) {
	rng, err := daterange.For(ref, mode)
	if err != nil {
		return Snapshot{}, err
	}
	gen := s.begin(viewerID)

	events := s.Merger.Fetch(ctx, viewerID, rng)

	// Task correlation runs over the whole collection so shared boards show
	// everyone's deliverables.
	tasks, err := s.Tasks.ListTasks(ctx, "")
	if err != nil {
		log.Error("task correlation degraded to empty collection", err, "viewer", viewerID)
		metrics.FetchFailures.WithLabelValues("tasks").Inc()
		tasks = nil
	}
	idx := correlate.NewIndex(tasks)

	snap := Snapshot{
		Mode:              mode,
		Range:             rng,
		Generation:        gen,
		ProviderConnected: s.providerConnected(),
	}

	switch mode {
	case daterange.Daily:
		snap.Day = s.buildDay(ref, events, idx)
	case daterange.Weekly:
		snap.Cells = s.buildCells(daterange.WeekCells(ref), events, idx, s.WeekCellBudget, showTasks, showEvents)
	case daterange.Monthly:
		snap.Cells = s.buildCells(daterange.MonthCells(ref), events, idx, s.MonthCellBudget, showTasks, showEvents)
	}

	return s.land(viewerID, gen, snap)
}

func (s *Service) providerConnected() bool {
	if s.Provider == nil {
		return true
	}
	return s.Provider.Connected()
}

func (s *Service) buildDay(ref time.Time, events []contracts.CalendarEvent, idx *correlate.Index) *DayView {
	day := &DayView{
		Date:         daterange.Key(ref),
		Events:       []PlacedEvent{},
		Deliverables: idx.Deliverables(ref),
	}
	for _, ev := range layout.EventsForDay(events, ref) {
		day.Events = append(day.Events, PlacedEvent{
			CalendarEvent: ev,
			Position:      s.Grid.Position(ev, ref),
		})
	}
	return day
}

func (s *Service) buildCells(days []time.Time, events []contracts.CalendarEvent, idx *correlate.Index, budget int, showTasks, showEvents bool) []Cell {
	cells := make([]Cell, len(days))
	for i, day := range days {
		alloc := layout.Allocate(idx.ForDay(day), layout.EventsForDay(events, day), budget, showTasks, showEvents)
		cells[i] = Cell{
			Date:     daterange.Key(day),
			Tasks:    alloc.Tasks,
			Events:   alloc.Events,
			Overflow: alloc.Overflow,
		}
	}
	return cells
}

// CreateTask validates and stores a new task, stamping identity and
// timestamps, and announces the change. Validation mirrors the edit form:
// title and assignee are required.
func (s *Service) CreateTask(ctx context.Context, task contracts.Task) (contracts.Task, error) {
	task.Title = strings.TrimSpace(task.Title)
	if task.Title == "" {
		return contracts.Task{}, taskedit.ErrTitleRequired
	}
	if strings.TrimSpace(task.AssigneeID) == "" {
		return contracts.Task{}, taskedit.ErrAssigneeRequired
	}

	if task.ID == "" {
		task.ID = s.NewID()
	}
	if task.Priority == "" {
		task.Priority = contracts.PriorityMedium
	}
	if task.Status == "" {
		task.Status = contracts.StatusTodo
	}
	now := s.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Archived = false

	if err := s.Tasks.CreateTask(ctx, task); err != nil {
		return contracts.Task{}, err
	}
	s.announce(signals.ResourceTasks, task.ID)
	return task, nil
}

// CreateEvent stores an internally created event for the viewer and
// announces the schedule change. The event shows up through the merge path
// on the next refresh.
func (s *Service) CreateEvent(ctx context.Context, viewerID string, ev contracts.CalendarEvent) (contracts.CalendarEvent, error) {
	if s.Events == nil {
		return contracts.CalendarEvent{}, errors.New("event storage is not configured")
	}
	ev.Title = strings.TrimSpace(ev.Title)
	if ev.Title == "" {
		return contracts.CalendarEvent{}, taskedit.ErrTitleRequired
	}
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}
	if ev.ID == "" {
		ev.ID = s.NewID()
	}
	if ev.Type == "" {
		ev.Type = contracts.EventMeeting
	}
	ev.Source = contracts.SourceInternal

	if err := s.Events.InsertEvent(ctx, viewerID, ev); err != nil {
		return contracts.CalendarEvent{}, err
	}
	s.announce(signals.ResourceSchedule, ev.ID)
	return ev, nil
}

/// EditTask runs a full edit cycle against the store: snapshot the task,
// overlay the submitted draft, validate and save. The returned task carries
// the applied fields so clients can update their collection without a
// re-fetch.
func (s *Service) EditTask(ctx context.Context, taskID string, draft taskedit.Draft) (contracts.Task, error) {
	task, err := s.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return contracts.Task{}, err
	}

	editor := taskedit.NewEditor(s.Tasks)
	editor.Now = s.Now
	editor.View(task)
	editor.Begin(s.knownCategories(ctx))
	editor.SetDraft(draft)

	updated, err := editor.Save(ctx)
	if err != nil {
		return contracts.Task{}, err
	}
	s.announce(signals.ResourceTasks, taskID)
	return updated, nil
}

// ArchiveTask soft-deletes a task and announces the change.
func (s *Service) ArchiveTask(ctx context.Context, taskID string) error {
	if err := s.Tasks.ArchiveTask(ctx, taskID); err != nil {
		return err
	}
	s.announce(signals.ResourceTasks, taskID)
	return nil
}

// knownCategories derives the closed category choice from the live
// collection; a store failure just means every category edits as free text.
func (s *Service) knownCategories(ctx context.Context) []string {
	tasks, err := s.Tasks.ListTasks(ctx, "")
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	var categories []string
	for _, t := range tasks {
		c := strings.TrimSpace(t.Category)
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// Invalidate opens a new generation for every viewer and drops the cached
// snapshots, so in-flight fetches land stale and the next request rebuilds
// from fresh data.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for viewerID := range s.gen {
		s.gen[viewerID]++
	}
	s.last = map[string]Snapshot{}
}

// WatchChanges subscribes to the resource-change signals that affect schedule
// views and invalidates on each one. Every instance subscribes individually;
// invalidation must reach all of them.
func (s *Service) WatchChanges(js nats.JetStreamContext) ([]*nats.Subscription, error) {
	resources := []string{signals.ResourceTasks, signals.ResourceSchedule}
	subs := make([]*nats.Subscription, 0, len(resources))
	for _, resource := range resources {
		sub, err := signals.Subscribe(js, resource, "", func(signals.Signal) {
			s.Invalidate()
		})
		if err != nil {
			for _, opened := range subs {
				_ = opened.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (s *Service) announce(resource, entityID string) {
	if s.Signals == nil {
		return
	}
	if err := s.Signals.Announce(resource, entityID); err != nil {
		log.Error("change signal dropped", err, "resource", resource, "entity", entityID)
	}
}
