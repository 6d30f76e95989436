package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"attendx/internal/profile"
)

// Device keeps each device's local state in SQLite: the registered profile
// and the submission flags.
type Device struct {
	db *sql.DB
}

// OpenDevice opens (and migrates) the SQLite file at path.
func OpenDevice(path string) (*Device, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrateDevice(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Device{db: db}, nil
}

func migrateDevice(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS device_profiles (
		device_id   TEXT PRIMARY KEY,
		full_name   TEXT NOT NULL,
		roll_no     TEXT NOT NULL,
		saved_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS mark_flags (
		device_id   TEXT NOT NULL,
		flag_key    TEXT NOT NULL,
		marked_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (device_id, flag_key)
	);
	`
	_, err := db.Exec(schema)
	return err
}

func (d *Device) Close() error { return d.db.Close() }

// -------- Profiles --------

// LoadProfile returns the device's profile, or nil when none is registered.
func (d *Device) LoadProfile(ctx context.Context, deviceID string) (*profile.Profile, error) {
	if deviceID == "" {
		return nil, errDeviceRequired
	}
	var p profile.Profile
	err := d.db.QueryRowContext(ctx,
		`SELECT full_name, roll_no FROM device_profiles WHERE device_id = ?`, deviceID,
	).Scan(&p.FullName, &p.RollNo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile replaces the device's profile.
func (d *Device) SaveProfile(ctx context.Context, deviceID string, p profile.Profile) error {
	if deviceID == "" {
		return errDeviceRequired
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO device_profiles (device_id, full_name, roll_no, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			full_name = excluded.full_name,
			roll_no   = excluded.roll_no,
			saved_at  = excluded.saved_at
	`, deviceID, p.FullName, p.RollNo, time.Now().UTC())
	return err
}

// -------- Mark flags --------

func (d *Device) IsMarked(ctx context.Context, deviceID, subjectName, date string) (bool, error) {
	if deviceID == "" {
		return false, errDeviceRequired
	}
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM mark_flags WHERE device_id = ? AND flag_key = ?`,
		deviceID, MarkKey(date, subjectName),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetMarked records a submission flag. Flags are never removed.
func (d *Device) SetMarked(ctx context.Context, deviceID, subjectName, date string) error {
	if deviceID == "" {
		return errDeviceRequired
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO mark_flags (device_id, flag_key, marked_at) VALUES (?, ?, ?)`,
		deviceID, MarkKey(date, subjectName), time.Now().UTC(),
	)
	return err
}
