package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists the audit ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the ledger table if it is missing.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id           UUID PRIMARY KEY,
			kind         TEXT NOT NULL,
			device_id    TEXT NOT NULL,
			subject      TEXT NOT NULL DEFAULT '',
			lecture_date TEXT NOT NULL DEFAULT '',
			code         TEXT NOT NULL DEFAULT '',
			roll_no      TEXT NOT NULL DEFAULT '',
			unrestricted BOOLEAN NOT NULL DEFAULT FALSE,
			outcome      TEXT NOT NULL DEFAULT '',
			grant_id     TEXT NOT NULL DEFAULT '',
			occurred_at  TIMESTAMPTZ NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS audit_events_device_idx ON audit_events (device_id, occurred_at DESC);
	`)
	return err
}

// InsertEvent writes an event. Redelivered events are ignored.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.DeviceID == "" {
		return errors.New("device id required")
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, device_id, subject, lecture_date, code, roll_no, unrestricted, outcome, grant_id, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING
	`, evt.ID, string(evt.Kind), evt.DeviceID, evt.Subject, evt.Date, evt.Code, evt.RollNo, evt.Unrestricted, evt.Outcome, evt.GrantID, evt.At)
	return err
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	DeviceID     string
	Kind         EventKind
	Unrestricted bool
	Limit        int
	Offset       int
}

// ListEvents returns events newest first.
func (r *Repository) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	query, args := buildListQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var evt Event
		var kind string
		if err := rows.Scan(&evt.ID, &kind, &evt.DeviceID, &evt.Subject, &evt.Date, &evt.Code, &evt.RollNo, &evt.Unrestricted, &evt.Outcome, &evt.GrantID, &evt.At); err != nil {
			return nil, err
		}
		evt.Kind = EventKind(kind)
		res = append(res, evt)
	}
	return res, rows.Err()
}

func buildListQuery(f EventFilter) (string, []any) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	query := `SELECT id, kind, device_id, subject, lecture_date, code, roll_no, unrestricted, outcome, grant_id, occurred_at FROM audit_events`
	var args []any
	var clauses []string
	if f.DeviceID != "" {
		args = append(args, f.DeviceID)
		clauses = append(clauses, "device_id = $"+strconv.Itoa(len(args)))
	}
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		clauses = append(clauses, "kind = $"+strconv.Itoa(len(args)))
	}
	if f.Unrestricted {
		clauses = append(clauses, "unrestricted")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY occurred_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, f.Limit, f.Offset)
	return query, args
}
