package scheduleapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/notes"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
	"github.com/workdeck/schedule-engine/internal/store/blobs"
	"github.com/workdeck/schedule-engine/internal/store/directory"
	"github.com/workdeck/schedule-engine/internal/store/tasks"
	"github.com/workdeck/schedule-engine/internal/taskedit"
)

// BlobReader serves stored note images back out.
type BlobReader interface {
	Get(ctx context.Context, blobID string) (blobs.Blob, error)
}

// NotificationLog reads the durable log the sink maintains.
type NotificationLog interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]contracts.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

type Handler struct {
	Service       *Service
	Notes         *notes.Service
	Sessions      *notes.Registry
	Images        BlobReader
	Notifications NotificationLog

	// SuggestionLimit caps mention autocomplete responses.
	SuggestionLimit int
}

func NewHandler(service *Service, noteSvc *notes.Service, sessions *notes.Registry, images BlobReader) *Handler {
	return &Handler{
		Service:         service,
		Notes:           noteSvc,
		Sessions:        sessions,
		Images:          images,
		SuggestionLimit: notes.DefaultSuggestionLimit,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(vr chi.Router) {
		vr.Use(h.viewerMiddleware)

		vr.Get("/api/v1/schedule", h.handleSchedule)
		vr.Get("/api/v1/schedule/day", h.handleScheduleDay)

		vr.Get("/api/v1/tasks", h.handleListTasks)
		vr.Post("/api/v1/tasks", h.handleCreateTask)
		vr.Get("/api/v1/tasks/{taskID}", h.handleGetTask)
		vr.Patch("/api/v1/tasks/{taskID}", h.handleEditTask)
		vr.Delete("/api/v1/tasks/{taskID}", h.handleArchiveTask)

		vr.Get("/api/v1/mentions/suggestions", h.handleMentionSuggestions)

		vr.Post("/api/v1/tasks/{taskID}/notes", h.handleAddNote)
		vr.Delete("/api/v1/tasks/{taskID}/notes/{noteID}", h.handleDeleteNote)

		vr.Post("/api/v1/tasks/{taskID}/session", h.handleOpenSession)
		vr.Delete("/api/v1/tasks/{taskID}/session", h.handleCloseSession)
		vr.Post("/api/v1/tasks/{taskID}/session/draft", h.handleSessionDraft)
		vr.Post("/api/v1/tasks/{taskID}/session/mention", h.handleSessionMention)
		vr.Post("/api/v1/tasks/{taskID}/session/attachment", h.handleSessionAttach)
		vr.Post("/api/v1/tasks/{taskID}/session/submit", h.handleSessionSubmit)
		vr.Post("/api/v1/tasks/{taskID}/session/delete", h.handleSessionRequestDelete)
		vr.Post("/api/v1/tasks/{taskID}/session/delete/confirm", h.handleSessionConfirmDelete)
		vr.Post("/api/v1/tasks/{taskID}/session/delete/cancel", h.handleSessionCancelDelete)

		vr.Post("/api/v1/events", h.handleCreateEvent)

		vr.Get("/api/v1/notifications", h.handleListNotifications)
		vr.Post("/api/v1/notifications/{notificationID}/read", h.handleMarkNotificationRead)

		vr.Get("/api/v1/users", h.handleListUsers)
		vr.Get("/api/v1/projects", h.handleListProjects)
	})

	r.Get("/api/v1/images/{imageID}", h.handleGetImage)

	return r
}

type viewerContextKey struct{}

// viewerMiddleware resolves the X-User-ID header against the directory; the
// surrounding deployment terminates authentication upstream.
func (h *Handler) viewerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewerID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if viewerID == "" {
			h.writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		viewer, err := h.Service.Users.GetUser(r.Context(), viewerID)
		if err != nil {
			if errors.Is(err, directory.ErrUserNotFound) {
				h.writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), viewerContextKey{}, viewer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerFromContext(ctx context.Context) contracts.User {
	viewer, _ := ctx.Value(viewerContextKey{}).(contracts.User)
	return viewer
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	q := r.URL.Query()

	mode, err := daterange.ParseViewMode(q.Get("mode"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref, err := refDate(q.Get("date"), h.Service.Now)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	showTasks := q.Get("tasks") != "0"
	showEvents := q.Get("events") != "0"

	snap, err := h.Service.Refresh(r.Context(), viewer.ID, ref, mode, showTasks, showEvents)
	if err != nil {
		if errors.Is(err, ErrStaleFetch) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleScheduleDay(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	ref, err := refDate(r.URL.Query().Get("date"), h.Service.Now)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	snap, err := h.Service.Refresh(r.Context(), viewer.ID, ref, daterange.Daily, true, true)
	if err != nil {
		if errors.Is(err, ErrStaleFetch) {
			h.writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, snap.Day)
}

func refDate(raw string, now func() time.Time) (time.Time, error) {
	if raw == "" {
		return now(), nil
	}
	return daterange.ParseKey(raw, time.Local)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("assignee")
	list, err := h.Service.Tasks.ListTasks(r.Context(), userID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []contracts.Task{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var task contracts.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	created, err := h.Service.CreateTask(r.Context(), task)
	if err != nil {
		switch {
		case errors.Is(err, taskedit.ErrTitleRequired), errors.Is(err, taskedit.ErrAssigneeRequired):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Service.Tasks.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	// Notes render newest first.
	task.Notes = notes.DisplayOrder(task.Notes)
	h.writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleEditTask(w http.ResponseWriter, r *http.Request) {
	var draft taskedit.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	updated, err := h.Service.EditTask(r.Context(), chi.URLParam(r, "taskID"), draft)
	if err != nil {
		switch {
		case errors.Is(err, taskedit.ErrTitleRequired), errors.Is(err, taskedit.ErrAssigneeRequired):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.writeTaskError(w, err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleArchiveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ArchiveTask(r.Context(), chi.URLParam(r, "taskID")); err != nil {
		h.writeTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMentionSuggestions resolves the active mention query in a draft
// without requiring an open session. An inactive query yields an empty list,
// not an error.
func (h *Handler) handleMentionSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("text")
	cursor := len(text)
	if raw := q.Get("cursor"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > len(text) {
			h.writeError(w, http.StatusBadRequest, "cursor must be an offset into text")
			return
		}
		cursor = parsed
	}

	suggestions := []contracts.User{}
	if query, _, ok := notes.ActiveQuery(text, cursor); ok {
		users, err := h.Service.Users.ListUsers(r.Context())
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		suggestions = notes.Suggest(users, query, h.SuggestionLimit)
	}
	h.writeJSON(w, http.StatusOK, suggestions)
}

type addNoteRequest struct {
	Text string `json:"text"`

	// Optional inline attachment; bytes are raw, not base64, when the client
	// posts multipart. JSON clients send base64 per encoding/json convention.
	ImageData []byte `json:"image_data,omitempty"`
	ImageName string `json:"image_name,omitempty"`
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	var req addNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var att *notes.Attachment
	if len(req.ImageData) > 0 {
		compressed, err := h.Notes.Compressor.Compress(req.ImageData, req.ImageName)
		if err != nil {
			h.writeNoteError(w, err)
			return
		}
		att = &compressed
	}

	updated, err := h.Notes.AddNote(r.Context(), viewer, chi.URLParam(r, "taskID"), req.Text, att)
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, updated)
}

func (h *Handler) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	updated, err := h.Notes.DeleteNote(r.Context(), viewer, chi.URLParam(r, "taskID"), chi.URLParam(r, "noteID"))
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

type sessionView struct {
	Compose     notes.State      `json:"compose"`
	Deletion    notes.State      `json:"deletion"`
	Task        contracts.Task   `json:"task"`
	Suggestions []contracts.User `json:"suggestions,omitempty"`
	Draft       string           `json:"draft,omitempty"`
	Cursor      int              `json:"cursor,omitempty"`
}

func (h *Handler) sessionView(s *notes.Session, suggestions []contracts.User) sessionView {
	compose, deletion := s.States()
	task := s.Task()
	task.Notes = notes.DisplayOrder(task.Notes)
	return sessionView{
		Compose:     compose,
		Deletion:    deletion,
		Task:        task,
		Suggestions: suggestions,
	}
}

func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	taskID := chi.URLParam(r, "taskID")

	task, err := h.Service.Tasks.GetTask(r.Context(), taskID)
	if err != nil {
		h.writeTaskError(w, err)
		return
	}
	users, err := h.Service.Users.ListUsers(r.Context())
	if err != nil {
		// Autocomplete degrades to empty; the session still opens.
		users = nil
	}

	session := h.Sessions.Open(h.Notes, viewer, task, users, h.SuggestionLimit)
	h.writeJSON(w, http.StatusCreated, h.sessionView(session, nil))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	h.Sessions.Close(viewer.ID, chi.URLParam(r, "taskID"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*notes.Session, bool) {
	viewer := viewerFromContext(r.Context())
	session, ok := h.Sessions.Get(viewer.ID, chi.URLParam(r, "taskID"))
	if !ok {
		h.writeError(w, http.StatusNotFound, "no open session for this task")
		return nil, false
	}
	return session, true
}

type draftRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

func (h *Handler) handleSessionDraft(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	suggestions := session.SetDraft(req.Text, req.Cursor)
	h.writeJSON(w, http.StatusOK, h.sessionView(session, suggestions))
}

type mentionRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) handleSessionMention(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req mentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	user, err := h.Service.Users.GetUser(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			h.writeError(w, http.StatusBadRequest, "unknown mention target")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	draft, cursor := session.CommitMention(user)
	view := h.sessionView(session, nil)
	view.Draft = draft
	view.Cursor = cursor
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleSessionAttach(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 32<<20))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "attachment too large")
		return
	}
	name := r.URL.Query().Get("name")

	// Compression is asynchronous; the submit path waits for it to settle.
	session.Attach(data, name)
	h.writeJSON(w, http.StatusAccepted, h.sessionView(session, nil))
}

func (h *Handler) handleSessionSubmit(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.WaitAttachment()
	if _, attachErr := session.Attachment(); attachErr != nil {
		h.writeNoteError(w, attachErr)
		return
	}
	updated, err := session.Submit(r.Context())
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	updated.Notes = notes.DisplayOrder(updated.Notes)
	h.writeJSON(w, http.StatusCreated, updated)
}

type deleteNoteRequest struct {
	NoteID string `json:"note_id"`
}

func (h *Handler) handleSessionRequestDelete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req deleteNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	session.RequestDelete(req.NoteID)
	h.writeJSON(w, http.StatusOK, h.sessionView(session, nil))
}

func (h *Handler) handleSessionConfirmDelete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	updated, err := session.ConfirmDelete(r.Context())
	if err != nil {
		h.writeNoteError(w, err)
		return
	}
	updated.Notes = notes.DisplayOrder(updated.Notes)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleSessionCancelDelete(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.CancelDelete()
	h.writeJSON(w, http.StatusOK, h.sessionView(session, nil))
}

func (h *Handler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	var ev contracts.CalendarEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	created, err := h.Service.CreateEvent(r.Context(), viewer.ID, ev)
	if err != nil {
		if errors.Is(err, taskedit.ErrTitleRequired) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.Notifications == nil {
		h.writeError(w, http.StatusNotFound, "notification log is not configured")
		return
	}
	viewer := viewerFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Notifications.ListForUser(r.Context(), viewer.ID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []contracts.Notification{}
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if h.Notifications == nil {
		h.writeError(w, http.StatusNotFound, "notification log is not configured")
		return
	}
	viewer := viewerFromContext(r.Context())
	if err := h.Notifications.MarkRead(r.Context(), viewer.ID, chi.URLParam(r, "notificationID")); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.Users.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []contracts.User{}
	}
	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	viewer := viewerFromContext(r.Context())
	projects, err := h.Service.Users.ListProjects(r.Context(), viewer.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []contracts.Project{}
	}
	h.writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) handleGetImage(w http.ResponseWriter, r *http.Request) {
	if h.Images == nil {
		h.writeError(w, http.StatusNotFound, "image storage is not configured")
		return
	}
	blob, err := h.Images.Get(r.Context(), chi.URLParam(r, "imageID"))
	if err != nil {
		if errors.Is(err, blobs.ErrBlobNotFound) {
			h.writeError(w, http.StatusNotFound, "image not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	_, _ = w.Write(blob.Data)
}

func (h *Handler) writeTaskError(w http.ResponseWriter, err error) {
	if errors.Is(err, tasks.ErrTaskNotFound) {
		h.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeNoteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notes.ErrEmptyNote):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, notes.ErrImageDecode):
		h.writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, notes.ErrImageTooLarge):
		h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, notes.ErrNoteNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, notes.ErrDeleteForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, notes.ErrMutationInFlight), errors.Is(err, notes.ErrNothingToDelete):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, notes.ErrSessionClosed):
		h.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, tasks.ErrTaskNotFound):
		h.writeError(w, http.StatusNotFound, "task not found")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
