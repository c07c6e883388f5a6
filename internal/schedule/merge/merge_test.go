package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
)

type fakeSource struct {
	events []contracts.CalendarEvent
	err    error
	calls  int
}

func (f *fakeSource) ListEvents(_ context.Context, _, _, _ string) ([]contracts.CalendarEvent, error) {
	f.calls++
	return f.events, f.err
}

func testRange(t *testing.T) daterange.Range {
	t.Helper()
	rng, err := daterange.For(time.Date(2024, time.May, 16, 10, 0, 0, 0, time.Local), daterange.Weekly)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	return rng
}

func ev(id, googleID, title, recurringID, source string) contracts.CalendarEvent {
	return contracts.CalendarEvent{
		ID:               id,
		GoogleEventID:    googleID,
		Title:            title,
		RecurringEventID: recurringID,
		Source:           source,
	}
}

func TestFetch_MergesBothSources(t *testing.T) {
	provider := &fakeSource{events: []contracts.CalendarEvent{ev("g1", "g1", "Client Sync", "", contracts.SourceGoogle)}}
	store := &fakeSource{events: []contracts.CalendarEvent{ev("i1", "", "Sprint Review", "", contracts.SourceInternal)}}
	m := NewMerger(provider, store)

	got := m.Fetch(context.Background(), "user-1", testRange(t))
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(got), got)
	}
	if provider.calls != 1 || store.calls != 1 {
		t.Fatalf("expected one call per source, got %d/%d", provider.calls, store.calls)
	}
}

func TestFetch_OneSourceFailingDegradesToPartial(t *testing.T) {
	provider := &fakeSource{err: errors.New("provider down")}
	store := &fakeSource{events: []contracts.CalendarEvent{ev("i1", "", "Sprint Review", "", contracts.SourceInternal)}}
	m := NewMerger(provider, store)

	got := m.Fetch(context.Background(), "user-1", testRange(t))
	if len(got) != 1 || got[0].ID != "i1" {
		t.Fatalf("expected the surviving source's event, got %+v", got)
	}
	if store.calls != 1 {
		t.Fatalf("store branch was aborted by sibling failure")
	}
}

func TestFetch_BothSourcesFailingYieldsEmpty(t *testing.T) {
	m := NewMerger(&fakeSource{err: errors.New("down")}, &fakeSource{err: errors.New("down")})
	got := m.Fetch(context.Background(), "user-1", testRange(t))
	if len(got) != 0 {
		t.Fatalf("expected empty merge, got %+v", got)
	}
}

func TestFetch_ProviderIdentityWinsOnSharedGoogleID(t *testing.T) {
	provider := &fakeSource{events: []contracts.CalendarEvent{ev("g1", "shared", "From Provider", "", contracts.SourceGoogle)}}
	store := &fakeSource{events: []contracts.CalendarEvent{ev("i1", "shared", "From Store", "", contracts.SourceInternal)}}
	m := NewMerger(provider, store)

	got := m.Fetch(context.Background(), "user-1", testRange(t))
	if len(got) != 1 {
		t.Fatalf("expected 1 merged event, got %d", len(got))
	}
	if got[0].Title != "From Provider" {
		t.Fatalf("first-seen should win, got %q", got[0].Title)
	}
}

func TestIsRecurringNoise(t *testing.T) {
	tests := []struct {
		title     string
		recurring string
		want      bool
	}{
		{"Daily Office Hours", "rec-1", true},
		{"Client Sync", "rec-1", false},
		{"Daily Office Hours", "", false},
		{"  LUNCH with team  ", "rec-2", true},
		{"Out of Office", "rec-3", true},
		{"Deep Work", "rec-4", false},
	}
	for _, tt := range tests {
		got := IsRecurringNoise(ev("x", "", tt.title, tt.recurring, contracts.SourceGoogle), DefaultNoisePhrases)
		if got != tt.want {
			t.Errorf("IsRecurringNoise(%q, recurring=%q) = %v, want %v", tt.title, tt.recurring, got, tt.want)
		}
	}
}

func TestDedupe_Idempotent(t *testing.T) {
	events := []contracts.CalendarEvent{
		ev("a", "g-a", "A", "", contracts.SourceGoogle),
		ev("b", "", "B", "", contracts.SourceInternal),
		ev("c", "g-a", "A again", "", contracts.SourceInternal),
	}
	once := Dedupe(events)
	twice := Dedupe(append(append([]contracts.CalendarEvent{}, once...), once...))
	if len(once) != 2 || len(twice) != 2 {
		t.Fatalf("dedupe lengths: once=%d twice=%d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ID != twice[i].ID {
			t.Fatalf("dedupe is not idempotent at %d: %q vs %q", i, once[i].ID, twice[i].ID)
		}
	}
}

func TestFetch_StableAcrossReinvocation(t *testing.T) {
	provider := &fakeSource{events: []contracts.CalendarEvent{
		ev("g1", "g1", "One", "", contracts.SourceGoogle),
		ev("g2", "g2", "Two", "", contracts.SourceGoogle),
	}}
	store := &fakeSource{events: []contracts.CalendarEvent{
		ev("i1", "", "Three", "", contracts.SourceInternal),
	}}
	m := NewMerger(provider, store)

	first := m.Fetch(context.Background(), "user-1", testRange(t))
	second := m.Fetch(context.Background(), "user-1", testRange(t))
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("positional identity differs at %d: %q vs %q", i, first[i].ID, second[i].ID)
		}
	}
}
