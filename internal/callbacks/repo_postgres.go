package callbacks

import (
	"context"
	"database/sql"
	"errors"

	"outbound-caller/pkg/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS callback_intents (
  id           UUID PRIMARY KEY,
  phone_number TEXT NOT NULL,
  date         TEXT NOT NULL DEFAULT '',
  time         TEXT NOT NULL DEFAULT '',
  room         TEXT NOT NULL,
  session_id   TEXT NOT NULL DEFAULT '',
  requested_at TIMESTAMPTZ NOT NULL
)`

const phoneIndex = `
CREATE INDEX IF NOT EXISTS callback_intents_phone_idx
  ON callback_intents (phone_number, requested_at DESC)`

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Migrate creates the callback table if it does not exist.
func (r *PostgresRepo) Migrate(ctx context.Context) error {
	return utils.EnsureSchema(ctx, r.db, schema, phoneIndex)
}

func (r *PostgresRepo) Save(ctx context.Context, in Intent) error {
	if r.db == nil {
		return errors.New("callbacks: db is nil")
	}
	const q = `
INSERT INTO callback_intents (id, phone_number, date, time, room, session_id, requested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := r.db.ExecContext(ctx, q, in.ID, in.PhoneNumber, in.Date, in.Time, in.RoomID, in.SessionID, in.RequestedAt)
	return err
}

func (r *PostgresRepo) ListByPhone(ctx context.Context, phone string) ([]Intent, error) {
	if r.db == nil {
		return nil, errors.New("callbacks: db is nil")
	}
	const q = `
SELECT id, phone_number, date, time, room, session_id, requested_at
FROM callback_intents
WHERE phone_number = $1
ORDER BY requested_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		var in Intent
		if err := rows.Scan(&in.ID, &in.PhoneNumber, &in.Date, &in.Time, &in.RoomID, &in.SessionID, &in.RequestedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
