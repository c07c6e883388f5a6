package notes

import (
	"context"
	"errors"
	"sync"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

// Compose states of an open task detail view.
type State string

const (
	StateIdle             State = "idle"
	StateComposing        State = "composing"
	StateSubmitting       State = "submitting"
	StateConfirmingDelete State = "confirming_delete"
	StateDeleting         State = "deleting"
)

var (
	ErrSessionClosed   = errors.New("task detail session is closed")
	ErrNothingToDelete = errors.New("no delete confirmation is pending")
)

// Session is the per-open-task-detail state machine. Note add runs
// Idle → Composing → Submitting → Idle; note delete independently runs
// Idle → ConfirmingDelete → Deleting → Idle. A failed mutation falls back to
// its pre-operation state so the user may retry.
type Session struct {
	svc        *Service
	viewer     contracts.User
	compressor Compressor
	limit      int

	mu        sync.Mutex
	closed    bool
	task      contracts.Task
	users     []contracts.User
	compose   State
	deletion  State
	draft     string
	cursor    int
	pendingID string

	attachSeq  uint64
	attachment *Attachment
	attachErr  error
	attachDone chan struct{}
}

// NewSession opens a detail view for task. The candidate user set for
// mention autocomplete is resolved once at open time.
func NewSession(svc *Service, viewer contracts.User, task contracts.Task, users []contracts.User, limit int) *Session {
	return &Session{
		svc:        svc,
		viewer:     viewer,
		compressor: svc.Compressor,
		limit:      limit,
		task:       task,
		users:      users,
		compose:    StateIdle,
		deletion:   StateIdle,
	}
}

// Task returns the canonical task as the session last saw it.
func (s *Session) Task() contracts.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// States returns the compose and deletion states.
func (s *Session) States() (compose, deletion State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compose, s.deletion
}

// SetDraft records the current draft text and cursor and returns the active
// mention suggestions, empty when no mention query is active at the cursor.
func (s *Session) SetDraft(text string, cursor int) []contracts.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.compose == StateSubmitting {
		return nil
	}
	s.draft = text
	s.cursor = cursor
	if text == "" && s.attachment == nil {
		s.compose = StateIdle
	} else {
		s.compose = StateComposing
	}

	query, _, ok := ActiveQuery(text, cursor)
	if !ok {
		return nil
	}
	return Suggest(s.users, query, s.limit)
}

// CommitMention replaces the active query span with the chosen user's full
// name and returns the new draft and cursor, which lands right after the
// inserted trailing space.
func (s *Session) CommitMention(user contracts.User) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.draft, s.cursor
	}
	_, span, ok := ActiveQuery(s.draft, s.cursor)
	if !ok {
		return s.draft, s.cursor
	}
	s.draft, s.cursor = CommitMention(s.draft, span, user.Name)
	return s.draft, s.cursor
}

// Attach stages an image for the next submission. Compression runs
// asynchronously and is not cancellable; a newer attach simply supersedes the
// pending slot, so a late result from an earlier attach is dropped on
// arrival.
func (s *Session) Attach(data []byte, name string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.attachSeq++
	seq := s.attachSeq
	s.attachment = nil
	s.attachErr = nil
	done := make(chan struct{})
	s.attachDone = done
	if s.compose == StateIdle {
		s.compose = StateComposing
	}
	s.mu.Unlock()

	go func() {
		att, err := s.compressor.Compress(data, name)

		s.mu.Lock()
		defer s.mu.Unlock()
		defer close(done)
		if s.closed || seq != s.attachSeq {
			return
		}
		if err != nil {
			// Attachment slot is cleared; the error surfaces inline.
			s.attachment = nil
			s.attachErr = err
			return
		}
		s.attachment = &att
	}()
}

// Attachment returns the staged attachment, or the inline error that cleared
// the slot.
func (s *Session) Attachment() (*Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment, s.attachErr
}

// WaitAttachment blocks until the most recent attach settles.
func (s *Session) WaitAttachment() {
	s.mu.Lock()
	done := s.attachDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Submit saves the draft as a new note. Validation failures never reach the
// network; a store failure falls the machine back to Composing with the draft
// intact so the user may retry.
func (s *Session) Submit(ctx context.Context) (contracts.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return contracts.Task{}, ErrSessionClosed
	}
	if s.compose == StateSubmitting {
		s.mu.Unlock()
		return contracts.Task{}, ErrMutationInFlight
	}
	text := s.draft
	att := s.attachment
	s.compose = StateSubmitting
	taskID := s.task.ID
	s.mu.Unlock()

	updated, err := s.svc.AddNote(ctx, s.viewer, taskID, text, att)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.compose = StateComposing
		return contracts.Task{}, err
	}
	s.task = updated
	s.draft = ""
	s.cursor = 0
	s.attachment = nil
	s.attachErr = nil
	s.compose = StateIdle
	return updated, nil
}

// RequestDelete asks for confirmation before deleting a note.
func (s *Session) RequestDelete(noteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.deletion == StateDeleting {
		return
	}
	s.pendingID = noteID
	s.deletion = StateConfirmingDelete
}

// CancelDelete abandons a pending confirmation.
func (s *Session) CancelDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deletion == StateConfirmingDelete {
		s.pendingID = ""
		s.deletion = StateIdle
	}
}

// ConfirmDelete performs the confirmed deletion. A store failure falls back
// to ConfirmingDelete so the user may retry.
func (s *Session) ConfirmDelete(ctx context.Context) (contracts.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return contracts.Task{}, ErrSessionClosed
	}
	if s.deletion != StateConfirmingDelete {
		s.mu.Unlock()
		return contracts.Task{}, ErrNothingToDelete
	}
	noteID := s.pendingID
	taskID := s.task.ID
	s.deletion = StateDeleting
	s.mu.Unlock()

	updated, err := s.svc.DeleteNote(ctx, s.viewer, taskID, noteID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.deletion = StateConfirmingDelete
		return contracts.Task{}, err
	}
	s.task = updated
	s.pendingID = ""
	s.deletion = StateIdle
	return updated, nil
}

// Close resets all draft state and pending attachments. Closing the detail
// view must leave nothing staged behind.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.draft = ""
	s.cursor = 0
	s.attachment = nil
	s.attachErr = nil
	s.attachSeq++
	s.pendingID = ""
	s.compose = StateIdle
	s.deletion = StateIdle
}

// Registry tracks at most one open detail session per viewer and task.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

func sessionKey(viewerID, taskID string) string {
	return viewerID + "\x00" + taskID
}

// Open replaces any existing session for the same viewer and task, closing
// the old one first.
func (r *Registry) Open(svc *Service, viewer contracts.User, task contracts.Task, users []contracts.User, limit int) *Session {
	session := NewSession(svc, viewer, task, users, limit)
	key := sessionKey(viewer.ID, task.ID)
	r.mu.Lock()
	if prev, ok := r.sessions[key]; ok {
		prev.Close()
	}
	r.sessions[key] = session
	r.mu.Unlock()
	return session
}

// Get returns the open session for viewer and task, if any.
func (r *Registry) Get(viewerID, taskID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionKey(viewerID, taskID)]
	return session, ok
}

// Close closes and forgets the session for viewer and task.
func (r *Registry) Close(viewerID, taskID string) {
	key := sessionKey(viewerID, taskID)
	r.mu.Lock()
	if session, ok := r.sessions[key]; ok {
		session.Close()
		delete(r.sessions, key)
	}
	r.mu.Unlock()
}
