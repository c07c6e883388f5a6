// Package notify publishes notifications onto the sharded notify subjects.
// Dispatch is fire-and-forget from the caller's point of view: the sink
// persists, the engine never waits on delivery.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nuid"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/sharding"
)

type Dispatcher struct {
	Publish func(subject string, payload []byte) error
	Now     func() time.Time
	NewID   func() string
}

func NewDispatcher(publish func(subject string, payload []byte) error) *Dispatcher {
	return &Dispatcher{
		Publish: publish,
		Now:     func() time.Time { return time.Now() },
		NewID:   func() string { return nuid.Next() },
	}
}

// CreateNotification stamps identity and publish time, then publishes to the
// recipient's shard subject.
func (d *Dispatcher) CreateNotification(_ context.Context, n contracts.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("notification without recipient")
	}
	if n.ID == "" {
		n.ID = d.NewID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.Now()
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	subject := sharding.NotifySubject(n.Type, n.UserID)
	if err := d.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
