package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tend/internal/model"
)

// nullable maps "" to SQL NULL, matching the authority's storage convention
// for optional text fields.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dateOrNil(d *model.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

// SaveLocal writes an event optimistically and queues the matching remote
// mutation in the same transaction. A nil id allocates a fresh negative
// identifier. The queued change is a create when the identifier is local
// (nil or negative), an update otherwise; either way it supersedes a queued
// change of the same kind for the event.
//
// No network I/O happens here; the change reaches the authority on the next
// reconciliation.
func (s *Store) SaveLocal(ctx context.Context, id *int64, fields model.EventFields) (model.Event, error) {
	if err := fields.Validate(); err != nil {
		return model.Event{}, fmt.Errorf("save event: %w", err)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return model.Event{}, fmt.Errorf("save event: encode payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("save event: begin tx: %w", err)
	}
	defer tx.Rollback()

	var eventID int64
	if id == nil {
		eventID, err = nextLocalIDTx(tx)
		if err != nil {
			return model.Event{}, fmt.Errorf("save event: %w", err)
		}
	} else {
		eventID = *id
	}

	// Load-or-create by ID. last_done is left untouched on update; it only
	// changes through MarkDoneLocal or a snapshot replace.
	if _, err := tx.Exec(`
		INSERT INTO events
		(id, name, tag, details, frequency_value, frequency_unit, due_date, dirty, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tag = excluded.tag,
			details = excluded.details,
			frequency_value = excluded.frequency_value,
			frequency_unit = excluded.frequency_unit,
			due_date = excluded.due_date,
			dirty = 1,
			deleted = 0
	`,
		eventID,
		strings.TrimSpace(fields.Name),
		nullable(strings.TrimSpace(fields.Tag)),
		nullable(strings.TrimSpace(fields.Details)),
		fields.FrequencyValue,
		string(fields.FrequencyUnit),
		fields.DueDate.String(),
	); err != nil {
		return model.Event{}, fmt.Errorf("save event: upsert: %w", err)
	}

	kind := KindUpdate
	if eventID < 0 {
		kind = KindCreate
	}
	if err := enqueueTx(tx, eventID, kind, payload, nowFunc()); err != nil {
		return model.Event{}, fmt.Errorf("save event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("save event: commit: %w", err)
	}

	return s.GetEvent(ctx, eventID)
}

// DeleteLocal tombstones an event and queues its remote delete. The row is
// retained until a snapshot replace confirms it gone; a still-queued create
// for the same event is deliberately not collapsed, so an offline
// create-then-delete replays both in order against the remapped identifier.
func (s *Store) DeleteLocal(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete event: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE events SET deleted = 1, dirty = 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete event: rows affected: %w", err)
	} else if n == 0 {
		return ErrNotFound
	}

	if err := enqueueTx(tx, id, KindDelete, []byte(`{}`), nowFunc()); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete event: commit: %w", err)
	}
	return nil
}

// MarkDoneLocal records a completion: it advances the due date by the
// event's repeat interval starting from done, appends a history row with a
// local surrogate ID, and queues the remote complete call.
func (s *Store) MarkDoneLocal(ctx context.Context, id int64, done model.Date) (model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("mark done: begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		freqValue int
		freqUnit  string
		deleted   bool
	)
	err = tx.QueryRow(`
		SELECT frequency_value, frequency_unit, deleted FROM events WHERE id = ?
	`, id).Scan(&freqValue, &freqUnit, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("mark done: %w", err)
	}
	if deleted {
		return model.Event{}, ErrNotFound
	}

	newDue, err := model.AddFrequency(done, freqValue, model.FrequencyUnit(freqUnit))
	if err != nil {
		return model.Event{}, fmt.Errorf("mark done: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE events SET last_done = ?, due_date = ?, dirty = 1 WHERE id = ?
	`, done.String(), newDue.String(), id); err != nil {
		return model.Event{}, fmt.Errorf("mark done: %w", err)
	}

	historyID, err := nextLocalIDTx(tx)
	if err != nil {
		return model.Event{}, fmt.Errorf("mark done: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO event_history (id, event_id, action, action_date)
		VALUES (?, ?, ?, ?)
	`, historyID, id, model.ActionDone, done.String()); err != nil {
		return model.Event{}, fmt.Errorf("mark done: history: %w", err)
	}

	payload, err := json.Marshal(DonePayload{DoneDate: done})
	if err != nil {
		return model.Event{}, fmt.Errorf("mark done: encode payload: %w", err)
	}
	if err := enqueueTx(tx, id, KindDone, payload, nowFunc()); err != nil {
		return model.Event{}, fmt.Errorf("mark done: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("mark done: commit: %w", err)
	}

	return s.GetEvent(ctx, id)
}

// Rekey rewrites a locally-issued identifier to the authority-assigned one
// after a successful create. The event row, its history rows (via FK
// cascade) and every queued change targeting the old identifier move to the
// new one atomically.
func (s *Store) Rekey(ctx context.Context, oldID, newID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rekey: begin tx: %w", err)
	}
	defer tx.Rollback()

	// event_history.event_id follows via ON UPDATE CASCADE.
	if _, err := tx.Exec(`UPDATE events SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("rekey %d -> %d: %w", oldID, newID, err)
	}
	if _, err := tx.Exec(`
		UPDATE pending_changes SET event_id = ? WHERE event_id = ?
	`, newID, oldID); err != nil {
		return fmt.Errorf("rekey %d -> %d: retarget queue: %w", oldID, newID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rekey: commit: %w", err)
	}
	return nil
}

// TombstoneRemote coalesces a remote "not found" into a local soft delete:
// the event disappears from listings and its history is dropped. No change
// is queued - the authority already has no such event.
func (s *Store) TombstoneRemote(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tombstone: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE events SET deleted = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("tombstone event %d: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM event_history WHERE event_id = ?`, id); err != nil {
		return fmt.Errorf("tombstone event %d: clear history: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tombstone: commit: %w", err)
	}
	return nil
}

// ReplaceAll overwrites the store with an authority snapshot. Events that
// still have queued changes keep their optimistic local rows (their remote
// effects have not been applied yet); everything else, tombstones included,
// is replaced wholesale.
func (s *Store) ReplaceAll(ctx context.Context, events []model.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace all: begin tx: %w", err)
	}
	defer tx.Rollback()

	keep := map[int64]bool{}
	rows, err := tx.Query(`SELECT DISTINCT event_id FROM pending_changes`)
	if err != nil {
		return fmt.Errorf("replace all: pending ids: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("replace all: scan pending id: %w", err)
		}
		keep[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("replace all: %w", err)
	}
	rows.Close()

	if len(keep) == 0 {
		if _, err := tx.Exec(`DELETE FROM events`); err != nil {
			return fmt.Errorf("replace all: clear: %w", err)
		}
	} else {
		ids := make([]any, 0, len(keep))
		for id := range keep {
			ids = append(ids, id)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		if _, err := tx.Exec(
			`DELETE FROM events WHERE id NOT IN (`+placeholders+`)`, ids...); err != nil {
			return fmt.Errorf("replace all: clear: %w", err)
		}
	}

	for _, e := range events {
		if keep[e.ID] {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO events
			(id, name, tag, details, frequency_value, frequency_unit,
			 due_date, last_done, dirty, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)
		`,
			e.ID, e.Name, nullable(e.Tag), nullable(e.Details),
			e.FrequencyValue, string(e.FrequencyUnit),
			e.DueDate.String(), dateOrNil(e.LastDone),
		); err != nil {
			return fmt.Errorf("replace all: insert event %d: %w", e.ID, err)
		}
		for _, h := range e.History {
			if _, err := tx.Exec(`
				INSERT INTO event_history (id, event_id, action, action_date, note)
				VALUES (?, ?, ?, ?, ?)
			`, h.ID, e.ID, h.Action, h.ActionDate.String(), nullable(h.Note)); err != nil {
				return fmt.Errorf("replace all: insert history %d: %w", h.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace all: commit: %w", err)
	}
	return nil
}
