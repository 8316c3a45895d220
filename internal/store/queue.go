package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tend/internal/model"
)

// ChangeKind identifies the remote operation a pending change maps to.
// The set is closed: the reconciler dispatches on it exhaustively.
type ChangeKind string

const (
	KindCreate ChangeKind = "create"
	KindUpdate ChangeKind = "update"
	KindDelete ChangeKind = "delete"
	KindDone   ChangeKind = "done"
)

// Valid reports whether k is one of the four change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete, KindDone:
		return true
	}
	return false
}

// PendingChange is one durably queued, not-yet-confirmed mutation.
// ID is queue-local and doubles as the creation order. Payload is the
// opaque snapshot captured at mutation time: the event fields for
// create/update, the done date for done, empty for delete.
type PendingChange struct {
	ID        int64
	EventID   int64
	Kind      ChangeKind
	Payload   []byte
	CreatedAt time.Time
}

// DonePayload is the payload of a KindDone change.
type DonePayload struct {
	DoneDate model.Date `json:"done_date"`
}

const queueTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// nowFunc stamps queue entries; replaced in tests for deterministic order.
var nowFunc = time.Now

// enqueueTx replaces-or-appends a pending change inside an open transaction.
// An existing entry with the same (eventID, kind) is deleted first, so the
// replacement picks up a fresh rowid and moves to the back of the order.
func enqueueTx(tx *sql.Tx, eventID int64, kind ChangeKind, payload []byte, now time.Time) error {
	if !kind.Valid() {
		return fmt.Errorf("enqueue: invalid change kind %q", kind)
	}
	if _, err := tx.Exec(`
		DELETE FROM pending_changes WHERE event_id = ? AND kind = ?
	`, eventID, kind); err != nil {
		return fmt.Errorf("enqueue: supersede: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO pending_changes (event_id, kind, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, eventID, kind, string(payload), now.UTC().Format(queueTimeFormat)); err != nil {
		return fmt.Errorf("enqueue: insert: %w", err)
	}
	return nil
}

// Enqueue appends a pending change, superseding any existing entry with the
// same (eventID, kind). Latest payload wins; the entry moves to the back of
// the creation order.
func (s *Store) Enqueue(ctx context.Context, eventID int64, kind ChangeKind, payload []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("enqueue: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := enqueueTx(tx, eventID, kind, payload, nowFunc()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("enqueue: commit: %w", err)
	}
	return nil
}

// Pending returns all queued changes in ascending creation order without
// removing them. Removal happens in one batch via RemovePending after the
// reconciler has confirmed their remote effects.
func (s *Store) Pending(ctx context.Context) ([]PendingChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, kind, payload, created_at
		FROM pending_changes
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}
	defer rows.Close()

	var changes []PendingChange
	for rows.Next() {
		var (
			ch      PendingChange
			kind    string
			payload string
			created string
		)
		if err := rows.Scan(&ch.ID, &ch.EventID, &kind, &payload, &created); err != nil {
			return nil, fmt.Errorf("pending: scan: %w", err)
		}
		ch.Kind = ChangeKind(kind)
		ch.Payload = []byte(payload)
		ch.CreatedAt, err = time.Parse(queueTimeFormat, created)
		if err != nil {
			return nil, fmt.Errorf("pending: parse created_at: %w", err)
		}
		changes = append(changes, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}
	return changes, nil
}

// CountPending returns the number of queued changes.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_changes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// RemovePending deletes queued changes by queue-local ID in one batch.
// Unknown IDs are ignored.
func (s *Store) RemovePending(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_changes WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

// Retarget rewrites the event ID of every queued change pointing at oldID.
func (s *Store) Retarget(ctx context.Context, oldID, newID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pending_changes SET event_id = ? WHERE event_id = ?
	`, newID, oldID)
	if err != nil {
		return fmt.Errorf("retarget %d -> %d: %w", oldID, newID, err)
	}
	return nil
}
