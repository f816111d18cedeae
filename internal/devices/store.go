package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/rvt-studio/internal/db"
)

// Store persists device registrations.
type Store struct {
	db  *db.DB
	max int
}

// NewStore creates a Store allowing max devices per user. max <= 0 selects
// DefaultMaxDevices.
func NewStore(database *db.DB, max int) *Store {
	if max <= 0 {
		max = DefaultMaxDevices
	}
	return &Store{db: database, max: max}
}

// Max returns the per-user device limit.
func (s *Store) Max() int { return s.max }

const deviceColumns = "id, user_id, name, platform, revit_version, registered_at, last_seen"

// Register adds a device for userID. Registering a name the user already
// has refreshes that device instead of taking a new slot.
func (s *Store) Register(ctx context.Context, userID string, nd NewDevice) (*Device, bool, error) {
	nd.Name = strings.TrimSpace(nd.Name)
	if nd.Name == "" {
		return nil, false, ErrNameRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM devices WHERE user_id = ? AND name = ?", userID, nd.Name).Scan(&existing)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE devices SET platform = ?, revit_version = ?, last_seen = datetime('now')
			WHERE id = ?`, nd.Platform, nd.RevitVersion, existing); err != nil {
			return nil, false, fmt.Errorf("refreshing device: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("committing device: %w", err)
		}
		d, err := s.Get(ctx, userID, existing)
		return d, false, err
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("looking up device: %w", err)
	}

	var used int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE user_id = ?", userID).Scan(&used); err != nil {
		return nil, false, fmt.Errorf("counting devices: %w", err)
	}
	if used >= s.max {
		return nil, false, fmt.Errorf("%w: %d of %d devices in use", ErrLimitReached, used, s.max)
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO devices (id, user_id, name, platform, revit_version) VALUES (?, ?, ?, ?, ?)",
		id, userID, nd.Name, nd.Platform, nd.RevitVersion); err != nil {
		return nil, false, fmt.Errorf("inserting device: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing device: %w", err)
	}
	d, err := s.Get(ctx, userID, id)
	return d, true, err
}

// Get returns one of userID's devices.
func (s *Store) Get(ctx context.Context, userID, id string) (*Device, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE user_id = ? AND id = ?", userID, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting device: %w", err)
	}
	return d, nil
}

// List returns userID's devices, most recently seen first.
func (s *Store) List(ctx context.Context, userID string) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE user_id = ? ORDER BY last_seen DESC, rowid DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	out := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Remove deletes one of userID's devices.
func (s *Store) Remove(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("removing device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch records that a device was seen now.
func (s *Store) Touch(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE devices SET last_seen = datetime('now') WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("touching device: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Usage returns how many of the allowed slots userID uses.
func (s *Store) Usage(ctx context.Context, userID string) (Usage, error) {
	var used int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE user_id = ?", userID).Scan(&used); err != nil {
		return Usage{}, fmt.Errorf("counting devices: %w", err)
	}
	return Usage{Used: used, Allowed: s.max}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(sc scanner) (*Device, error) {
	var (
		d                Device
		registered, seen string
	)
	if err := sc.Scan(&d.ID, &d.UserID, &d.Name, &d.Platform, &d.RevitVersion, &registered, &seen); err != nil {
		return nil, err
	}
	d.RegisteredAt = parseTime(registered)
	d.LastSeen = parseTime(seen)
	return &d, nil
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
