// Package notes manages note composition, mention autocomplete and
// extraction, and the notification side effects of saving a note on a task.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nuid"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/platform/log"
	"github.com/workdeck/schedule-engine/internal/platform/metrics"
)

var (
	ErrEmptyNote        = errors.New("note needs text or an attached image")
	ErrNoteNotFound     = errors.New("note not found")
	ErrDeleteForbidden  = errors.New("only the note's author or an administrator may delete it")
	ErrMutationInFlight = errors.New("another note mutation for this task is still in flight")
)

// TaskStore is the remote task collaborator. UpdateTask takes a partial field
// set; the notes field is always a full-array replacement.
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (contracts.Task, error)
	UpdateTask(ctx context.Context, taskID string, fields contracts.TaskFields) (contracts.Task, error)
}

// Directory resolves mention candidates.
type Directory interface {
	ListUsers(ctx context.Context) ([]contracts.User, error)
}

// Dispatcher delivers one notification per mentioned user, fire-and-forget.
type Dispatcher interface {
	CreateNotification(ctx context.Context, n contracts.Notification) error
}

// Uploader persists an attachment's bytes and returns a serving URL.
type Uploader interface {
	Put(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

type Service struct {
	Store    TaskStore
	Users    Directory
	Dispatch Dispatcher
	Uploads  Uploader

	// Compressor bounds attached images before they are persisted; sessions
	// opened against this service inherit it.
	Compressor Compressor

	Now   func() time.Time
	NewID func() string

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewService(store TaskStore, users Directory, dispatch Dispatcher, uploads Uploader) *Service {
	return &Service{
		Store:      store,
		Users:      users,
		Dispatch:   dispatch,
		Uploads:    uploads,
		Compressor: NewCompressor(),
		Now:        func() time.Time { return time.Now() },
		NewID:      nuid.Next,
		inFlight:   map[string]bool{},
	}
}

// acquire serializes note mutations per task for this service instance. The
// release func must be called exactly once.
func (s *Service) acquire(taskID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[taskID] {
		return nil, ErrMutationInFlight
	}
	s.inFlight[taskID] = true
	return func() {
		s.mu.Lock()
		delete(s.inFlight, taskID)
		s.mu.Unlock()
	}, nil
}

// AddNote appends a note to the task and writes the whole notes array back in
// one update. On success it dispatches one mention notification per resolved
// user; every dispatch is independently caught so a failing one neither
// blocks its peers nor the save itself.
func (s *Service) AddNote(ctx context.Context, viewer contracts.User, taskID, text string, att *Attachment) (contracts.Task, error) {
	if strings.TrimSpace(text) == "" && att == nil {
		return contracts.Task{}, ErrEmptyNote
	}

	release, err := s.acquire(taskID)
	if err != nil {
		return contracts.Task{}, err
	}
	defer release()

	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return contracts.Task{}, err
	}

	note := contracts.TaskNote{
		ID:        s.NewID(),
		UserID:    viewer.ID,
		UserName:  viewer.Name,
		Text:      text,
		CreatedAt: s.Now(),
	}
	if att != nil {
		url, upErr := s.Uploads.Put(ctx, att.Name, att.MimeType, att.Data)
		if upErr != nil {
			return contracts.Task{}, upErr
		}
		note.ImageURL = url
		note.ImageName = att.Name
		note.ImageMimeType = att.MimeType
	}

	next := make([]contracts.TaskNote, 0, len(task.Notes)+1)
	next = append(next, task.Notes...)
	next = append(next, note)

	now := s.Now()
	updated, err := s.Store.UpdateTask(ctx, taskID, contracts.TaskFields{Notes: &next, UpdatedAt: &now})
	if err != nil {
		return contracts.Task{}, err
	}

	s.notifyMentions(ctx, viewer, updated, note)
	return updated, nil
}

// DeleteNote removes a note and writes the remaining array back in one
// update. Authorization mirrors the remote store's rule: the note's author or
// an administrator.
func (s *Service) DeleteNote(ctx context.Context, viewer contracts.User, taskID, noteID string) (contracts.Task, error) {
	release, err := s.acquire(taskID)
	if err != nil {
		return contracts.Task{}, err
	}
	defer release()

	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return contracts.Task{}, err
	}

	idx := -1
	for i, n := range task.Notes {
		if n.ID == noteID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return contracts.Task{}, ErrNoteNotFound
	}
	if task.Notes[idx].UserID != viewer.ID && !viewer.IsAdmin() {
		return contracts.Task{}, ErrDeleteForbidden
	}

	next := make([]contracts.TaskNote, 0, len(task.Notes)-1)
	next = append(next, task.Notes[:idx]...)
	next = append(next, task.Notes[idx+1:]...)

	now := s.Now()
	return s.Store.UpdateTask(ctx, taskID, contracts.TaskFields{Notes: &next, UpdatedAt: &now})
}

// DisplayOrder returns a reverse-chronological copy of an insertion-ordered
// notes array, newest first.
func DisplayOrder(ns []contracts.TaskNote) []contracts.TaskNote {
	out := make([]contracts.TaskNote, len(ns))
	for i, n := range ns {
		out[len(ns)-1-i] = n
	}
	return out
}

func (s *Service) notifyMentions(ctx context.Context, author contracts.User, task contracts.Task, note contracts.TaskNote) {
	users, err := s.Users.ListUsers(ctx)
	if err != nil {
		log.Error("mention resolution skipped, user directory unavailable", err, "task", task.ID)
		return
	}
	for _, userID := range ExtractMentions(note.Text, users, author.ID) {
		n := contracts.Notification{
			ID:        s.NewID(),
			UserID:    userID,
			Type:      contracts.NotificationMention,
			Title:     "You were mentioned",
			Message:   fmt.Sprintf("%s mentioned you in a note on %q", author.Name, task.Title),
			Link:      "/tasks/" + task.ID,
			CreatedAt: s.Now(),
		}
		if err := s.Dispatch.CreateNotification(ctx, n); err != nil {
			log.Error("mention notification dispatch failed", err, "task", task.ID, "user", userID)
			metrics.NotifyDispatch.WithLabelValues("error").Inc()
			continue
		}
		metrics.NotifyDispatch.WithLabelValues("ok").Inc()
	}
}
