// Package signals carries typed resource-change announcements between the
// engine's moving parts. A signal names what changed, never the new value;
// consumers re-fetch.
package signals

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Resource kinds announced on the bus.
const (
	ResourceTasks    = "tasks"
	ResourceSchedule = "schedule"
	ResourceUsers    = "users"
	ResourceProjects = "projects"
)

// Signal is the wire payload on signal.{resource}.
type Signal struct {
	Resource  string    `json:"resource"`
	EntityID  string    `json:"entity_id,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

type Bus struct {
	Publish func(subject string, payload []byte) error
	Now     func() time.Time
}

func NewBus(publish func(subject string, payload []byte) error) *Bus {
	return &Bus{
		Publish: publish,
		Now:     func() time.Time { return time.Now() },
	}
}

// Announce publishes a change signal for the resource; entityID may be empty
// for collection-wide changes.
func (b *Bus) Announce(resource, entityID string) error {
	payload, err := json.Marshal(Signal{
		Resource:  resource,
		EntityID:  entityID,
		EmittedAt: b.Now(),
	})
	if err != nil {
		return err
	}
	subject := "signal." + resource
	if err := b.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers signals for one resource to fn. A non-empty queue joins
// a queue group so a horizontally scaled consumer processes each signal once;
// an empty queue fans the signal out to every instance, which is what cache
// invalidation wants.
func Subscribe(js nats.JetStreamContext, resource, queue string, fn func(Signal)) (*nats.Subscription, error) {
	handler := func(msg *nats.Msg) {
		var s Signal
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			_ = msg.Term()
			return
		}
		fn(s)
		_ = msg.Ack()
	}
	opts := []nats.SubOpt{nats.ManualAck(), nats.AckWait(30 * time.Second), nats.DeliverNew()}
	if queue != "" {
		return js.QueueSubscribe("signal."+resource, queue, handler, opts...)
	}
	return js.Subscribe("signal."+resource, handler, opts...)
}
