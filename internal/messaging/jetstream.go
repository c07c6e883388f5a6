package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	notificationsStream = "NOTIFICATIONS"
	signalsStream       = "SIGNALS"
)

// EnsureStreams creates (or validates) the two streams required locally:
// - notify.>  (mention notifications drained by notify-sink)
// - signal.>  (typed resource-change signals consumed by schedule views)
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(notificationsStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      notificationsStream,
				Subjects:  []string{"notify.>"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}

	if _, err := js.StreamInfo(signalsStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      signalsStream,
				Subjects:  []string{"signal.>"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}

	return nil
}
