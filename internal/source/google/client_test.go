package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

func TestListEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/user-1/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("start") != "2024-05-13" || r.URL.Query().Get("end") != "2024-05-19" {
			t.Errorf("unexpected range query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing bearer key")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"g1","summary":"Client Sync","start":"2024-05-14T09:00:00Z","end":"2024-05-14T10:00:00Z"},
			{"id":"g2","summary":"Office Hours","start":"2024-05-14T11:00:00Z","end":"2024-05-14T12:00:00Z","recurring_event_id":"rec-1"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1")
	events, err := c.ListEvents(context.Background(), "user-1", "2024-05-13", "2024-05-19")
	if err != nil {
		t.Fatalf("ListEvents returned error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Source != contracts.SourceGoogle || events[0].GoogleEventID != "g1" {
		t.Fatalf("event identity wrong: %+v", events[0])
	}
	if events[0].Type != contracts.EventMeeting {
		t.Fatalf("missing default type: %+v", events[0])
	}
	if events[1].RecurringEventID != "rec-1" {
		t.Fatalf("recurring id lost: %+v", events[1])
	}
	if !c.Connected() {
		t.Fatal("client should report connected after a success")
	}
}

func TestListEvents_FailureFlipsConnectionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	if _, err := c.ListEvents(context.Background(), "user-1", "2024-05-13", "2024-05-19"); err == nil {
		t.Fatal("expected error from 503")
	}
	if c.Connected() {
		t.Fatal("client should report disconnected after a failure")
	}
}
