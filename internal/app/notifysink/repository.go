package notifysink

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/workdeck/schedule-engine/internal/contracts"
	"github.com/workdeck/schedule-engine/internal/sharding"
)

const createNotificationsTableSQL = `
CREATE TABLE IF NOT EXISTS notifications (
  notification_id text PRIMARY KEY,
  user_id text NOT NULL,
  notification_type text NOT NULL,
  title text NOT NULL,
  message text NOT NULL DEFAULT '',
  link text NOT NULL DEFAULT '',
  shard_id integer NOT NULL,
  read boolean NOT NULL DEFAULT false,
  created_at timestamptz NOT NULL,
  inserted_at timestamptz NOT NULL DEFAULT now()
)`

const createNotificationsUserIndexSQL = `
CREATE INDEX IF NOT EXISTS notifications_user_unread
ON notifications (user_id, created_at DESC) WHERE NOT read`

const createShardOffsetsSQL = `
CREATE TABLE IF NOT EXISTS notify_shard_offsets (
  shard_id integer PRIMARY KEY,
  last_stream_seq bigint NOT NULL DEFAULT 0,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const insertNotificationSQL = `
INSERT INTO notifications (
  notification_id, user_id, notification_type, title, message, link, shard_id, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (notification_id) DO NOTHING`

const upsertShardOffsetSQL = `
INSERT INTO notify_shard_offsets (shard_id, last_stream_seq, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (shard_id) DO UPDATE
SET last_stream_seq = GREATEST(notify_shard_offsets.last_stream_seq, EXCLUDED.last_stream_seq),
    updated_at = now()`

type NotificationRepository struct {
	Pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{Pool: pool}
}

func (r *NotificationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createNotificationsTableSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createNotificationsUserIndexSQL); err != nil {
		return err
	}
	_, err := r.Pool.Exec(ctx, createShardOffsetsSQL)
	return err
}

// InsertNotification writes the log row and advances the shard offset in one
// transaction. Redeliveries hit the ON CONFLICT guard and only move the
// offset forward.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n contracts.Notification, streamSeq uint64) error {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	shardID := sharding.GetShardID(n.UserID)
	if _, err := tx.Exec(ctx, insertNotificationSQL,
		n.ID,
		n.UserID,
		n.Type,
		n.Title,
		n.Message,
		n.Link,
		shardID,
		n.CreatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, upsertShardOffsetSQL, shardID, int64(streamSeq)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListForUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]contracts.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT notification_id, user_id, notification_type, title, message, link, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]contracts.Notification, 0, limit)
	for rows.Next() {
		var n contracts.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkRead flags one of the user's notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	_, err := r.Pool.Exec(ctx,
		`UPDATE notifications SET read = true WHERE notification_id = $1 AND user_id = $2`,
		notificationID, userID,
	)
	return err
}
