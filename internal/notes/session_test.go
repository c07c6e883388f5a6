package notes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

var sessionDirectory = []contracts.User{jane, john, ada}

func TestSession_ComposeSubmitCycle(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	compose, deletion := session.States()
	if compose != StateIdle || deletion != StateIdle {
		t.Fatalf("fresh session states: %v/%v", compose, deletion)
	}

	suggestions := session.SetDraft("ping @jo", 8)
	if len(suggestions) != 1 || suggestions[0].ID != "u-john" {
		t.Fatalf("suggestions = %+v", suggestions)
	}
	if compose, _ := session.States(); compose != StateComposing {
		t.Fatalf("state after typing = %v", compose)
	}

	text, cursor := session.CommitMention(john)
	if !strings.HasPrefix(text, "ping @John Smith ") {
		t.Fatalf("committed text = %q", text)
	}
	if cursor != len("ping @John Smith ") {
		t.Fatalf("cursor = %d", cursor)
	}

	updated, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if len(updated.Notes) != 2 {
		t.Fatalf("note not appended: %+v", updated.Notes)
	}
	if compose, _ := session.States(); compose != StateIdle {
		t.Fatalf("state after submit = %v", compose)
	}
	if again := session.SetDraft("", 0); again != nil {
		t.Fatalf("draft should be reset, got suggestions %+v", again)
	}
}

func TestSession_SubmitFailureFallsBackToComposing(t *testing.T) {
	store := &fakeTaskStore{task: baseTask(), updErr: errors.New("store down")}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.SetDraft("important note", 14)
	if _, err := session.Submit(context.Background()); err == nil {
		t.Fatal("expected submit failure")
	}
	if compose, _ := session.States(); compose != StateComposing {
		t.Fatalf("state after failed submit = %v, want composing", compose)
	}

	// Retry succeeds once the store recovers; the draft survived.
	store.updErr = nil
	updated, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := updated.Notes[len(updated.Notes)-1].Text; got != "important note" {
		t.Fatalf("retried draft = %q", got)
	}
}

func TestSession_EmptySubmitRejectedLocally(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	_, err := session.Submit(context.Background())
	if !errors.Is(err, ErrEmptyNote) {
		t.Fatalf("expected ErrEmptyNote, got %v", err)
	}
	if len(store.updates) != 0 {
		t.Fatal("local rejection must not reach the store")
	}
}

func TestSession_AttachStagesCompressedImage(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.Attach(encodePNG(t, 50, 50), "shot.png")
	session.WaitAttachment()
	att, attErr := session.Attachment()
	if attErr != nil || att == nil {
		t.Fatalf("attachment not staged: %v %v", att, attErr)
	}
	if att.MimeType != "image/jpeg" {
		t.Fatalf("mime = %q", att.MimeType)
	}

	updated, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("image-only submit failed: %v", err)
	}
	note := updated.Notes[len(updated.Notes)-1]
	if note.ImageURL == "" {
		t.Fatalf("note carries no image: %+v", note)
	}
}

func TestSession_AttachHonorsServiceCompressor(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	svc.Compressor = Compressor{MaxEdge: 40, Quality: 60}
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.Attach(encodePNG(t, 200, 100), "wide.png")
	session.WaitAttachment()
	att, attErr := session.Attachment()
	if attErr != nil || att == nil {
		t.Fatalf("attachment not staged: %v %v", att, attErr)
	}
	w, h := decodeSize(t, att.Data)
	if w != 40 || h != 20 {
		t.Fatalf("configured max edge not applied: got %dx%d, want 40x20", w, h)
	}
}

func TestSession_CorruptAttachmentClearsSlot(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.Attach([]byte("junk"), "x.bin")
	session.WaitAttachment()
	att, attErr := session.Attachment()
	if att != nil {
		t.Fatalf("slot should be cleared, got %+v", att)
	}
	if !errors.Is(attErr, ErrImageDecode) {
		t.Fatalf("expected ErrImageDecode inline, got %v", attErr)
	}
}

func TestSession_NewerAttachSupersedesPending(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.Attach([]byte("junk that would error"), "old.bin")
	session.Attach(encodePNG(t, 30, 30), "new.png")
	session.WaitAttachment()
	att, attErr := session.Attachment()
	if attErr != nil {
		// The superseded attach must not surface its error over the newer one.
		t.Fatalf("stale attach leaked its result: %v", attErr)
	}
	if att == nil || att.Name != "new.png" {
		t.Fatalf("attachment = %+v, want new.png", att)
	}
}

func TestSession_DeleteConfirmationFlow(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, ada, store.task, sessionDirectory, DefaultSuggestionLimit)

	if _, err := session.ConfirmDelete(context.Background()); !errors.Is(err, ErrNothingToDelete) {
		t.Fatalf("expected ErrNothingToDelete, got %v", err)
	}

	session.RequestDelete("n-1")
	if _, deletion := session.States(); deletion != StateConfirmingDelete {
		t.Fatalf("deletion state = %v", deletion)
	}

	session.CancelDelete()
	if _, deletion := session.States(); deletion != StateIdle {
		t.Fatalf("cancel left state %v", deletion)
	}

	session.RequestDelete("n-1")
	updated, err := session.ConfirmDelete(context.Background())
	if err != nil {
		t.Fatalf("ConfirmDelete returned error: %v", err)
	}
	if len(updated.Notes) != 0 {
		t.Fatalf("note survived: %+v", updated.Notes)
	}
	if _, deletion := session.States(); deletion != StateIdle {
		t.Fatalf("post-delete state = %v", deletion)
	}
}

func TestSession_FailedDeleteAllowsRetry(t *testing.T) {
	store := &fakeTaskStore{task: baseTask(), updErr: errors.New("store down")}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, ada, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.RequestDelete("n-1")
	if _, err := session.ConfirmDelete(context.Background()); err == nil {
		t.Fatal("expected delete failure")
	}
	if _, deletion := session.States(); deletion != StateConfirmingDelete {
		t.Fatalf("state after failed delete = %v, want confirming", deletion)
	}

	store.updErr = nil
	if _, err := session.ConfirmDelete(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestSession_CloseResetsEverything(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	session := NewSession(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	session.SetDraft("half-typed @ja", 14)
	session.Attach(encodePNG(t, 20, 20), "pending.png")
	session.Close()

	att, _ := session.Attachment()
	if att != nil {
		t.Fatalf("attachment survived close: %+v", att)
	}
	if _, err := session.Submit(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRegistry_OpenReplacesExisting(t *testing.T) {
	store := &fakeTaskStore{task: baseTask()}
	svc := newTestService(store, &fakeDispatcher{})
	registry := NewRegistry()

	first := registry.Open(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)
	first.SetDraft("stale draft", 11)
	second := registry.Open(svc, jane, store.task, sessionDirectory, DefaultSuggestionLimit)

	if _, err := first.Submit(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("replaced session should be closed, got %v", err)
	}
	got, ok := registry.Get(jane.ID, store.task.ID)
	if !ok || got != second {
		t.Fatal("registry does not hold the replacement session")
	}

	registry.Close(jane.ID, store.task.ID)
	if _, ok := registry.Get(jane.ID, store.task.ID); ok {
		t.Fatal("session survived registry close")
	}
}
