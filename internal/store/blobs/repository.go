// Package blobs stores note-image bytes in Postgres and hands out the URLs
// embedded in notes.
package blobs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nuid"
)

var ErrBlobNotFound = errors.New("blob not found")

const createBlobsTableSQL = `
CREATE TABLE IF NOT EXISTS note_images (
  id text PRIMARY KEY,
  name text NOT NULL,
  mime_type text NOT NULL,
  data bytea NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

// Blob is a stored attachment plus the metadata needed to serve it back.
type Blob struct {
	ID       string
	Name     string
	MimeType string
	Data     []byte
}

type Repository struct {
	Pool *pgxpool.Pool

	// BasePath prefixes generated URLs, "/api/v1/images" by default.
	BasePath string

	NewID func() string
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Pool:     pool,
		BasePath: "/api/v1/images",
		NewID:    func() string { return nuid.Next() },
	}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createBlobsTableSQL)
	return err
}

// Put stores the bytes and returns the URL the image is served under.
func (r *Repository) Put(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	id := r.NewID()
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO note_images (id, name, mime_type, data) VALUES ($1, $2, $3, $4)`,
		id, name, mimeType, data,
	)
	if err != nil {
		return "", err
	}
	return r.BasePath + "/" + id, nil
}

func (r *Repository) Get(ctx context.Context, blobID string) (Blob, error) {
	b := Blob{ID: blobID}
	err := r.Pool.QueryRow(ctx,
		`SELECT name, mime_type, data FROM note_images WHERE id = $1`, blobID,
	).Scan(&b.Name, &b.MimeType, &b.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Blob{}, ErrBlobNotFound
		}
		return Blob{}, err
	}
	return b, nil
}
