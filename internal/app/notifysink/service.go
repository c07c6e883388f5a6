// Package notifysink drains the sharded notify subjects into a durable
// notification log. Delivery is at-least-once; the log insert is idempotent
// on notification ID.
package notifysink

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/workdeck/schedule-engine/internal/contracts"
)

var ErrInvalidNotificationPayload = errors.New("invalid notification payload")
var ErrMissingRecipient = errors.New("notification payload has no recipient")

type Repository interface {
	InsertNotification(ctx context.Context, n contracts.Notification, streamSeq uint64) error
}

type Service struct {
	Repository Repository
}

func NewService(repository Repository) *Service {
	return &Service{Repository: repository}
}

// Handle persists one published notification. A malformed payload is a
// terminal error; the consumer should Term rather than redeliver it.
func (s *Service) Handle(ctx context.Context, payload []byte, streamSeq uint64) error {
	var n contracts.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return ErrInvalidNotificationPayload
	}
	if n.ID == "" || n.UserID == "" {
		return ErrMissingRecipient
	}
	return s.Repository.InsertNotification(ctx, n, streamSeq)
}
