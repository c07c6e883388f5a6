// Package merge joins the external calendar provider and the internal event
// store into one deduplicated, noise-filtered event sequence.
package merge

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/platform/log"
	"github.com/workdeck/schedule-engine/internal/platform/metrics"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
)

// Source lists already-expanded event instances inside [startKey, endKey].
type Source interface {
	ListEvents(ctx context.Context, userID, startKey, endKey string) ([]contracts.CalendarEvent, error)
}

// DefaultNoisePhrases hides daily recurring placeholder events. Matching is
// substring-based on the lower-cased, trimmed title; it is a heuristic, not
// an exact classifier.
var DefaultNoisePhrases = []string{
	"office",
	"working hours",
	"work hours",
	"availability",
	"busy",
	"out of office",
	"lunch",
	"break",
}

type Merger struct {
	Provider Source
	Store    Source

	// NoisePhrases overrides DefaultNoisePhrases when non-nil.
	NoisePhrases []string
}

func NewMerger(provider, store Source) *Merger {
	return &Merger{Provider: provider, Store: store}
}

// Fetch fans out to both sources concurrently and merges the results. A
// failing source contributes an empty list and a background log line; the
// merge itself never fails. Provider events are merged ahead of store events
// so provider identity wins dedupe conflicts.
func (m *Merger) Fetch(ctx context.Context, userID string, rng daterange.Range) []contracts.CalendarEvent {
	startKey := daterange.Key(rng.Start)
	endKey := daterange.Key(rng.End)

	var provider, internal []contracts.CalendarEvent
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		events, err := m.fetchOne(gctx, m.Provider, "provider", userID, startKey, endKey)
		provider = events
		return err
	})
	g.Go(func() error {
		events, err := m.fetchOne(gctx, m.Store, "store", userID, startKey, endKey)
		internal = events
		return err
	})
	// Branches swallow their own failures, so Wait cannot return an error.
	_ = g.Wait()

	combined := make([]contracts.CalendarEvent, 0, len(provider)+len(internal))
	combined = append(combined, provider...)
	combined = append(combined, internal...)
	return Dedupe(m.FilterNoise(combined))
}

func (m *Merger) fetchOne(ctx context.Context, src Source, name, userID, startKey, endKey string) ([]contracts.CalendarEvent, error) {
	if src == nil {
		return nil, nil
	}
	events, err := src.ListEvents(ctx, userID, startKey, endKey)
	if err != nil {
		log.Error("schedule source unavailable, continuing with empty result", err,
			"source", name, "user", userID, "start", startKey, "end", endKey)
		metrics.FetchFailures.WithLabelValues(name).Inc()
		return nil, nil
	}
	return events, nil
}

func (m *Merger) phrases() []string {
	if m.NoisePhrases != nil {
		return m.NoisePhrases
	}
	return DefaultNoisePhrases
}

// FilterNoise drops recurring-series instances whose title matches one of the
// noise phrases. Non-recurring events always pass, whatever their title.
func (m *Merger) FilterNoise(events []contracts.CalendarEvent) []contracts.CalendarEvent {
	kept := make([]contracts.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if IsRecurringNoise(ev, m.phrases()) {
			metrics.NoiseDropped.WithLabelValues(ev.Source).Inc()
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}

// IsRecurringNoise reports whether ev is a recurring placeholder the grid
// should hide.
func IsRecurringNoise(ev contracts.CalendarEvent, phrases []string) bool {
	if ev.RecurringEventID == "" {
		return false
	}
	title := strings.ToLower(strings.TrimSpace(ev.Title))
	for _, phrase := range phrases {
		if strings.Contains(title, phrase) {
			return true
		}
	}
	return false
}

// Dedupe collapses events sharing an identity key, first seen wins. Identity
// is the cross-source GoogleEventID when present, the source-local ID
// otherwise. Output order follows input order, so re-running over the same
// input is stable.
func Dedupe(events []contracts.CalendarEvent) []contracts.CalendarEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]contracts.CalendarEvent, 0, len(events))
	for _, ev := range events {
		key := ev.GoogleEventID
		if key == "" {
			key = ev.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}
