// Package taskedit toggles a task between its read and edit representations
// and reconciles the optimistic local state with the remote update.
package taskedit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

type State string

const (
	StateViewing State = "viewing"
	StateEditing State = "editing"
)

// CategoryCreateNew is the sentinel selector option that switches the
// category input from a closed choice to free text.
const CategoryCreateNew = "__create_new__"

var (
	ErrNotEditing       = errors.New("no edit in progress")
	ErrTitleRequired    = errors.New("title is required")
	ErrAssigneeRequired = errors.New("assignee is required")
)

// TaskStore is the remote collaborator the save goes through.
type TaskStore interface {
	UpdateTask(ctx context.Context, taskID string, fields contracts.TaskFields) (contracts.Task, error)
}

// Draft snapshots every editable field on entry to Editing. Viewing always
// reads from the canonical task, never from here.
type Draft struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	AssigneeID  string `json:"assignee_id"`
	ProjectID   string `json:"project_id"`

	// FreeTextCategory is on when the category input accepts arbitrary text
	// instead of the closed known-category choice.
	FreeTextCategory bool `json:"free_text_category"`
}

// FieldErrors maps field names to inline validation messages.
type FieldErrors map[string]string

// Editor is the per-task edit state machine.
type Editor struct {
	Store TaskStore
	Now   func() time.Time

	state     State
	canonical contracts.Task
	draft     Draft
	errors    FieldErrors
}

func NewEditor(store TaskStore) *Editor {
	return &Editor{
		Store: store,
		Now:   func() time.Time { return time.Now() },
		state: StateViewing,
	}
}

func (e *Editor) State() State { return e.state }

// Task returns the canonical task the Viewing representation displays.
func (e *Editor) Task() contracts.Task { return e.canonical }

// Draft returns the current draft record.
func (e *Editor) Draft() Draft { return e.draft }

// Errors returns the field-level validation errors from the last Save.
func (e *Editor) Errors() FieldErrors { return e.errors }

// View resets the editor onto a task in the Viewing state.
func (e *Editor) View(task contracts.Task) {
	e.canonical = task
	e.state = StateViewing
	e.draft = Draft{}
	e.errors = nil
}

// Begin snapshots the canonical task's editable fields into the draft and
// enters Editing. When the current category is not among the known set the
// draft defaults into free-text mode so the existing value is never silently
// dropped.
func (e *Editor) Begin(knownCategories []string) {
	t := e.canonical
	e.draft = Draft{
		Title:       t.Title,
		Category:    t.Category,
		Description: t.Description,
		DueDate:     t.DueDate,
		Priority:    t.Priority,
		Status:      t.Status,
		AssigneeID:  t.AssigneeID,
		ProjectID:   t.ProjectID,
	}
	e.draft.FreeTextCategory = t.Category != "" && !containsFold(knownCategories, t.Category)
	e.errors = nil
	e.state = StateEditing
}

// SetDraft replaces the draft wholesale. Selecting the create-new sentinel
// flips the category input into free-text mode with an empty value.
func (e *Editor) SetDraft(d Draft) {
	if e.state != StateEditing {
		return
	}
	if d.Category == CategoryCreateNew {
		d.Category = ""
		d.FreeTextCategory = true
	}
	e.draft = d
}

// Cancel discards the local draft and returns to Viewing; the next Begin
// reloads the form from the canonical values.
func (e *Editor) Cancel() {
	if e.state != StateEditing {
		return
	}
	e.draft = Draft{}
	e.errors = nil
	e.state = StateViewing
}

// validate fills field-level errors and reports whether the draft may be
// saved. No network call happens on a validation failure.
func (e *Editor) validate() bool {
	errs := FieldErrors{}
	if strings.TrimSpace(e.draft.Title) == "" {
		errs["title"] = "title must not be empty"
	}
	if strings.TrimSpace(e.draft.AssigneeID) == "" {
		errs["assignee_id"] = "an assignee must be selected"
	}
	e.errors = errs
	return len(errs) == 0
}

// Save pushes the draft to the store and, on success, applies the same field
// set to the canonical task and returns it so callers can update the task
// collection without a re-fetch. On validation failure the editor stays in
// Editing with inline errors; on store failure it stays in Editing with the
// draft intact so the user may retry.
func (e *Editor) Save(ctx context.Context) (contracts.Task, error) {
	if e.state != StateEditing {
		return contracts.Task{}, ErrNotEditing
	}
	if !e.validate() {
		if _, bad := e.errors["title"]; bad {
			return contracts.Task{}, ErrTitleRequired
		}
		return contracts.Task{}, ErrAssigneeRequired
	}

	d := e.draft
	title := strings.TrimSpace(d.Title)
	now := e.Now()
	fields := contracts.TaskFields{
		Title:       &title,
		Category:    &d.Category,
		Description: &d.Description,
		DueDate:     &d.DueDate,
		Priority:    &d.Priority,
		Status:      &d.Status,
		AssigneeID:  &d.AssigneeID,
		ProjectID:   &d.ProjectID,
		UpdatedAt:   &now,
	}
	if _, err := e.Store.UpdateTask(ctx, e.canonical.ID, fields); err != nil {
		return contracts.Task{}, err
	}

	e.canonical.Title = title
	e.canonical.Category = e.draft.Category
	e.canonical.Description = e.draft.Description
	e.canonical.DueDate = e.draft.DueDate
	e.canonical.Priority = e.draft.Priority
	e.canonical.Status = e.draft.Status
	e.canonical.AssigneeID = e.draft.AssigneeID
	e.canonical.ProjectID = e.draft.ProjectID
	e.canonical.UpdatedAt = now

	e.draft = Draft{}
	e.errors = nil
	e.state = StateViewing
	return e.canonical, nil
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
