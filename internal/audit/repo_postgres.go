package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"outbound-caller/pkg/utils"
)

// INSERT-only table; no update or delete statements are issued.
const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
  id            UUID PRIMARY KEY,
  session_id    TEXT NOT NULL,
  type          TEXT NOT NULL,
  actor_user_id TEXT NOT NULL DEFAULT '',
  actor_role    TEXT NOT NULL DEFAULT '',
  room          TEXT NOT NULL DEFAULT '',
  identity      TEXT NOT NULL DEFAULT '',
  message       TEXT NOT NULL DEFAULT '',
  metadata      TEXT NOT NULL DEFAULT '',
  created_at    TIMESTAMPTZ NOT NULL
)`

const sessionIndex = `
CREATE INDEX IF NOT EXISTS audit_events_session_idx ON audit_events (session_id, created_at)`

const createdIndex = `
CREATE INDEX IF NOT EXISTS audit_events_created_idx ON audit_events (created_at)`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Migrate(ctx context.Context) error {
	return utils.EnsureSchema(ctx, r.db, schema, sessionIndex, createdIndex)
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	if r.db == nil {
		return errors.New("audit: db is nil")
	}
	const q = `
INSERT INTO audit_events (id, session_id, type, actor_user_id, actor_role, room, identity, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.SessionID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.RoomID,
		e.Identity,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, from, to time.Time) ([]Event, error) {
	if r.db == nil {
		return nil, errors.New("audit: db is nil")
	}
	const q = `
SELECT id, session_id, type, actor_user_id, actor_role, room, identity, message, metadata, created_at
FROM audit_events
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &e.ActorUserID, &e.ActorRole, &e.RoomID, &e.Identity, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
