// Package google is the HTTP client for the external calendar provider. The
// provider delivers already-expanded event instances; recurrence rules are
// never interpreted here.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client

	// connected mirrors the outcome of the most recent call; a flip is a
	// re-fetch trigger for schedule views.
	connected atomic.Bool
}

func NewClient(baseURL, apiKey string) *Client {
	c := &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	c.connected.Store(true)
	return c
}

// Connected reports whether the last provider call succeeded.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

type eventPayload struct {
	ID               string `json:"id"`
	Summary          string `json:"summary"`
	Start            string `json:"start"`
	End              string `json:"end"`
	EventType        string `json:"event_type"`
	RecurringEventID string `json:"recurring_event_id"`
	HTMLLink         string `json:"html_link"`
}

type listResponse struct {
	Items []eventPayload `json:"items"`
}

// ListEvents fetches the user's event instances inside [startKey, endKey].
// Timestamps come back as ISO-8601 and are interpreted in the viewer's local
// zone for grid placement.
func (c *Client) ListEvents(ctx context.Context, userID, startKey, endKey string) ([]contracts.CalendarEvent, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/events?start=%s&end=%s",
		c.BaseURL, url.PathEscape(userID), url.QueryEscape(startKey), url.QueryEscape(endKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.connected.Store(false)
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connected.Store(false)
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var payload listResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.connected.Store(false)
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	c.connected.Store(true)

	events := make([]contracts.CalendarEvent, 0, len(payload.Items))
	for _, item := range payload.Items {
		start, err := parseLocal(item.Start)
		if err != nil {
			continue
		}
		end, err := parseLocal(item.End)
		if err != nil {
			end = start
		}
		eventType := item.EventType
		if eventType == "" {
			eventType = contracts.EventMeeting
		}
		events = append(events, contracts.CalendarEvent{
			ID:               item.ID,
			GoogleEventID:    item.ID,
			Title:            item.Summary,
			Start:            start,
			End:              end,
			Type:             eventType,
			RecurringEventID: item.RecurringEventID,
			HTMLLink:         item.HTMLLink,
			Source:           contracts.SourceGoogle,
		})
	}
	return events, nil
}

func parseLocal(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(time.Local), nil
}
