package scheduleapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/notes"
	"github.com/workdeck/schedule-engine/internal/schedule/merge"
)

type noopDispatch struct{}

func (noopDispatch) CreateNotification(context.Context, contracts.Notification) error { return nil }

type noopUploads struct{}

func (noopUploads) Put(context.Context, string, string, []byte) (string, error) {
	return "/api/v1/images/img-1", nil
}

func newTestHandler(taskStore *fakeTasks, users *fakeDirectory) *Handler {
	svc := NewService(merge.NewMerger(&fakeSource{}, &fakeSource{}), taskStore, users)
	svc.Now = func() time.Time { return wednesday }
	noteSvc := notes.NewService(taskStore, users, noopDispatch{}, noopUploads{})
	return NewHandler(svc, noteSvc, notes.NewRegistry(), nil)
}

func TestRouter_RejectsMissingViewer(t *testing.T) {
	h := newTestHandler(&fakeTasks{}, &fakeDirectory{})
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/schedule?mode=weekly", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouter_RejectsUnknownViewer(t *testing.T) {
	h := newTestHandler(&fakeTasks{}, &fakeDirectory{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?mode=weekly", nil)
	req.Header.Set("X-User-ID", "u-ghost")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandleSchedule_WeeklyView(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{{ID: "u-jane", Name: "Jane Doe"}}}
	taskStore := &fakeTasks{tasks: []contracts.Task{
		{ID: "t1", Title: "Ship it", DueDate: "2024-05-15", AssigneeID: "u-jane"},
	}}
	h := newTestHandler(taskStore, users)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?mode=weekly&date=2024-05-15", nil)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snap.Cells) != 7 {
		t.Fatalf("cells = %d, want 7", len(snap.Cells))
	}
}

func TestHandleSchedule_UnknownMode(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{{ID: "u-jane", Name: "Jane Doe"}}}
	h := newTestHandler(&fakeTasks{}, users)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/schedule?mode=fortnightly", nil)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleEditTask_ValidationError(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{{ID: "u-jane", Name: "Jane Doe"}}}
	taskStore := &fakeTasks{tasks: []contracts.Task{
		{ID: "t1", Title: "Old", AssigneeID: "u-jane"},
	}}
	h := newTestHandler(taskStore, users)

	body := bytes.NewBufferString(`{"title":"","assignee_id":"u-jane"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/tasks/t1", body)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(taskStore.updates) != 0 {
		t.Fatal("invalid draft must not reach the store")
	}
}

func TestHandleMentionSuggestions(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{
		{ID: "u-jane", Name: "Jane Doe"},
		{ID: "u-john", Name: "John Smith"},
	}}
	h := newTestHandler(&fakeTasks{}, users)
	router := h.Router()

	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-User-ID", "u-jane")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/api/v1/mentions/suggestions?text=ping+%40jo&cursor=8")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []contracts.User
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u-john" {
		t.Fatalf("suggestions = %+v", got)
	}

	// No active query at the cursor: empty list, not an error.
	rec = get("/api/v1/mentions/suggestions?text=plain+text")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("inactive query: status %d body %q", rec.Code, rec.Body.String())
	}

	if rec := get("/api/v1/mentions/suggestions?text=hi&cursor=99"); rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range cursor status = %d, want 400", rec.Code)
	}
}

type fakeNotificationLog struct {
	items []contracts.Notification
	read  []string
}

func (f *fakeNotificationLog) ListForUser(_ context.Context, userID string, _ int) ([]contracts.Notification, error) {
	var out []contracts.Notification
	for _, n := range f.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationLog) MarkRead(_ context.Context, userID, notificationID string) error {
	f.read = append(f.read, userID+"/"+notificationID)
	return nil
}

func TestHandleCreateTask(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{{ID: "u-jane", Name: "Jane Doe"}}}
	taskStore := &fakeTasks{}
	h := newTestHandler(taskStore, users)

	body := bytes.NewBufferString(`{"title":"Ship it","assignee_id":"u-jane"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", body)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(taskStore.created) != 1 || taskStore.created[0].Title != "Ship it" {
		t.Fatalf("store writes = %+v", taskStore.created)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(`{"assignee_id":"u-jane"}`))
	req.Header.Set("X-User-ID", "u-jane")
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing title status = %d, want 400", rec.Code)
	}
}

func TestHandleCreateEvent(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{{ID: "u-jane", Name: "Jane Doe"}}}
	h := newTestHandler(&fakeTasks{}, users)
	eventStore := &fakeEvents{}
	h.Service.Events = eventStore

	body := bytes.NewBufferString(`{"title":"Planning","start":"2024-05-15T09:00:00Z","end":"2024-05-15T10:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", body)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(eventStore.owners) != 1 || eventStore.owners[0] != "u-jane" {
		t.Fatalf("event must be stored for the viewer, owners = %+v", eventStore.owners)
	}
}

func TestHandleListProjects_ScopedToViewer(t *testing.T) {
	users := &fakeDirectory{
		users:    []contracts.User{{ID: "u-jane", Name: "Jane Doe"}},
		projects: []contracts.Project{{ID: "p1", Name: "Apollo", OwnerID: "u-jane"}},
	}
	h := newTestHandler(&fakeTasks{}, users)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(users.projectQueries) != 1 || users.projectQueries[0] != "u-jane" {
		t.Fatalf("project lookup must carry the viewer id, got %+v", users.projectQueries)
	}
	var got []contracts.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("projects = %+v", got)
	}
}

func TestHandleNotifications(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{
		{ID: "u-jane", Name: "Jane Doe"},
		{ID: "u-john", Name: "John Smith"},
	}}
	h := newTestHandler(&fakeTasks{}, users)
	log := &fakeNotificationLog{items: []contracts.Notification{
		{ID: "n1", UserID: "u-jane", Type: contracts.NotificationMention},
		{ID: "n2", UserID: "u-john", Type: contracts.NotificationMention},
	}}
	h.Notifications = log

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []contracts.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "n1" {
		t.Fatalf("notifications = %+v", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/notifications/n1/read", nil)
	req.Header.Set("X-User-ID", "u-jane")
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read status = %d, want 204", rec.Code)
	}
	if len(log.read) != 1 || log.read[0] != "u-jane/n1" {
		t.Fatalf("read marks = %+v", log.read)
	}
}

func TestHandleNotifications_NotConfigured(t *testing.T) {
	users := &fakeDirectory{users: []contracts.User{{ID: "u-jane", Name: "Jane Doe"}}}
	h := newTestHandler(&fakeTasks{}, users)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("X-User-ID", "u-jane")
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionFlow_OpenDraftSubmit(t *testing.T) {
	jane := contracts.User{ID: "u-jane", Name: "Jane Doe"}
	users := &fakeDirectory{users: []contracts.User{jane}}
	taskStore := &fakeTasks{tasks: []contracts.Task{
		{ID: "t1", Title: "Ship it", AssigneeID: "u-jane"},
	}}
	h := newTestHandler(taskStore, users)
	router := h.Router()

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("X-User-ID", "u-jane")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := do(http.MethodPost, "/api/v1/tasks/t1/session", ""); rec.Code != http.StatusCreated {
		t.Fatalf("open session status = %d", rec.Code)
	}
	if rec := do(http.MethodPost, "/api/v1/tasks/t1/session/draft", `{"text":"looks good","cursor":10}`); rec.Code != http.StatusOK {
		t.Fatalf("draft status = %d", rec.Code)
	}
	rec := do(http.MethodPost, "/api/v1/tasks/t1/session/submit", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(taskStore.updates) != 1 || taskStore.updates[0].Notes == nil {
		t.Fatalf("submit must write the full notes array, updates = %+v", taskStore.updates)
	}

	if rec := do(http.MethodPost, "/api/v1/tasks/t9/session/draft", `{"text":"x","cursor":1}`); rec.Code != http.StatusNotFound {
		t.Fatalf("draft without session status = %d", rec.Code)
	}
}
