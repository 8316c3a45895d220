package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// sync_state keys.
const (
	keyNextLocalID  = "next_local_id"
	keyLastEndpoint = "last_endpoint"
)

// firstLocalID is where the allocator starts on a fresh database.
const firstLocalID = -1

// nextLocalIDTx issues the next locally-unique negative identifier inside an
// open transaction. IDs strictly decrease and the position is persisted, so
// no two offline-created rows ever share an identifier across relaunches.
func nextLocalIDTx(tx *sql.Tx) (int64, error) {
	var raw string
	err := tx.QueryRow(
		`SELECT value FROM sync_state WHERE key = ?`, keyNextLocalID).Scan(&raw)

	id := int64(firstLocalID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// fresh database
	case err != nil:
		return 0, fmt.Errorf("next local id: %w", err)
	default:
		id, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("next local id: corrupt value %q: %w", raw, err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, keyNextLocalID, strconv.FormatInt(id-1, 10)); err != nil {
		return 0, fmt.Errorf("next local id: persist: %w", err)
	}

	return id, nil
}

// NextLocalID issues a strictly-decreasing negative identifier, persisted
// across restarts.
func (s *Store) NextLocalID(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("next local id: begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := nextLocalIDTx(tx)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("next local id: commit: %w", err)
	}
	return id, nil
}

// LastEndpoint returns the endpoint the last successful sync used, or ""
// when no sync has completed yet.
func (s *Store) LastEndpoint(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?`, keyLastEndpoint).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last endpoint: %w", err)
	}
	return value, nil
}

// SetLastEndpoint remembers the endpoint for the next sync's default
// resolution.
func (s *Store) SetLastEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, keyLastEndpoint, endpoint)
	if err != nil {
		return fmt.Errorf("set last endpoint: %w", err)
	}
	return nil
}
