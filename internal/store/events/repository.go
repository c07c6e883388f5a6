// Package events is the internal event store: the second aggregation source
// next to the external provider. Rows carry a stable local ID plus an
// optional provider cross-reference used by the merger's dedupe.
package events

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/schedule/daterange"
)

const createEventsTableSQL = `
CREATE TABLE IF NOT EXISTS calendar_events (
  id text PRIMARY KEY,
  user_id text NOT NULL,
  google_event_id text NOT NULL DEFAULT '',
  title text NOT NULL,
  start_at timestamptz NOT NULL,
  end_at timestamptz NOT NULL,
  event_type text NOT NULL DEFAULT 'meeting',
  recurring_event_id text NOT NULL DEFAULT '',
  html_link text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createEventsRangeIndexSQL = `
CREATE INDEX IF NOT EXISTS calendar_events_user_range
ON calendar_events (user_id, start_at)`

const listEventsSQL = `
SELECT id, google_event_id, title, start_at, end_at, event_type, recurring_event_id, html_link
FROM calendar_events
WHERE user_id = $1 AND start_at <= $3 AND end_at >= $2
ORDER BY start_at, id`

const insertEventSQL = `
INSERT INTO calendar_events (
  id, user_id, google_event_id, title, start_at, end_at, event_type, recurring_event_id, html_link
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createEventsTableSQL); err != nil {
		return err
	}
	_, err := r.Pool.Exec(ctx, createEventsRangeIndexSQL)
	return err
}

// ListEvents returns the user's events overlapping [startKey, endKey], both
// interpreted as local calendar days.
func (r *Repository) ListEvents(ctx context.Context, userID, startKey, endKey string) ([]contracts.CalendarEvent, error) {
	start, err := daterange.ParseKey(startKey, time.Local)
	if err != nil {
		return nil, err
	}
	end, err := daterange.ParseKey(endKey, time.Local)
	if err != nil {
		return nil, err
	}
	end = daterange.EndOfDay(end)

	rows, err := r.Pool.Query(ctx, listEventsSQL, userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []contracts.CalendarEvent
	for rows.Next() {
		var ev contracts.CalendarEvent
		if err := rows.Scan(
			&ev.ID,
			&ev.GoogleEventID,
			&ev.Title,
			&ev.Start,
			&ev.End,
			&ev.Type,
			&ev.RecurringEventID,
			&ev.HTMLLink,
		); err != nil {
			return nil, err
		}
		ev.Source = contracts.SourceInternal
		ev.Start = ev.Start.In(time.Local)
		ev.End = ev.End.In(time.Local)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// InsertEvent stores an event row; duplicate IDs are ignored.
func (r *Repository) InsertEvent(ctx context.Context, userID string, ev contracts.CalendarEvent) error {
	_, err := r.Pool.Exec(ctx, insertEventSQL,
		ev.ID,
		userID,
		ev.GoogleEventID,
		ev.Title,
		ev.Start,
		ev.End,
		ev.Type,
		ev.RecurringEventID,
		ev.HTMLLink,
	)
	return err
}
