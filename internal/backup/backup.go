// Package backup keeps JSON snapshots of the event store in a Postgres table.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dealercal/internal/store"
)

var ErrNotFound = errors.New("backup: not found")

const defaultListLimit = 50

// DB is the subset of *pgx.Conn used by Repo.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Meta describes a stored backup without its payload.
type Meta struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Events    int       `json:"events"`
}

// Connect opens a Postgres connection and checks it with a ping.
func Connect(ctx context.Context, connStr string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("backup: parse config: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("backup: connect: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("backup: ping: %w", err)
	}
	return conn, nil
}

type Repo struct {
	db DB
}

func NewRepo(db DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates the backups table if it does not exist.
func (r *Repo) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS backups (
    id          BIGSERIAL PRIMARY KEY,
    label       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    event_count INTEGER NOT NULL DEFAULT 0,
    payload     JSONB NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("backup: migrate: %w", err)
	}
	return nil
}

// Save stores snap under label and returns its metadata.
func (r *Repo) Save(ctx context.Context, label string, snap store.Snapshot) (Meta, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return Meta{}, fmt.Errorf("backup: encode snapshot: %w", err)
	}

	meta := Meta{Label: label, Events: len(snap.Events)}
	err = r.db.QueryRow(ctx, `
INSERT INTO backups (label, event_count, payload)
VALUES ($1, $2, $3)
RETURNING id, created_at
`, label, meta.Events, payload).Scan(&meta.ID, &meta.CreatedAt)
	if err != nil {
		return Meta{}, fmt.Errorf("backup: insert: %w", err)
	}
	return meta, nil
}

// List returns the newest backups first.
func (r *Repo) List(ctx context.Context, limit int) ([]Meta, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.Query(ctx, `
SELECT id, label, created_at, event_count
FROM backups
ORDER BY created_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	defer rows.Close()

	out := make([]Meta, 0)
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.ID, &m.Label, &m.CreatedAt, &m.Events); err != nil {
			return nil, fmt.Errorf("backup: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("backup: list: %w", err)
	}
	return out, nil
}

// Load returns the snapshot stored under id.
func (r *Repo) Load(ctx context.Context, id int64) (store.Snapshot, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `
SELECT payload
FROM backups
WHERE id = $1
`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Snapshot{}, ErrNotFound
		}
		return store.Snapshot{}, fmt.Errorf("backup: load %d: %w", id, err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("backup: decode %d: %w", id, err)
	}
	return snap, nil
}

func (r *Repo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
DELETE FROM backups
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("backup: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
