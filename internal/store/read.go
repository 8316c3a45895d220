package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tend/internal/model"
)

const eventColumns = `id, name, tag, details, frequency_value, frequency_unit,
	due_date, last_done, dirty, deleted`

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var (
		e        model.Event
		tag      sql.NullString
		details  sql.NullString
		unit     string
		due      string
		lastDone sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &tag, &details, &e.FrequencyValue, &unit,
		&due, &lastDone, &e.Dirty, &e.Deleted)
	if err != nil {
		return model.Event{}, err
	}

	e.Tag = tag.String
	e.Details = details.String
	e.FrequencyUnit = model.FrequencyUnit(unit)
	if e.DueDate, err = model.ParseDate(due); err != nil {
		return model.Event{}, fmt.Errorf("event %d: %w", e.ID, err)
	}
	if lastDone.Valid {
		d, err := model.ParseDate(lastDone.String)
		if err != nil {
			return model.Event{}, fmt.Errorf("event %d: %w", e.ID, err)
		}
		e.LastDone = &d
	}
	return e, nil
}

// GetEvent loads one event with its full history, newest action first.
// Tombstoned events are still returned: callers that only want the visible
// set should use ListEvents.
func (s *Store) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}

	e.History, err = s.eventHistory(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	return e, nil
}

// ListEvents returns all non-tombstoned events with their history, ordered
// by due date then name (case-insensitive), matching the authority's
// listing order.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE deleted = 0
		ORDER BY due_date ASC, name COLLATE NOCASE ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	for i := range events {
		events[i].History, err = s.eventHistory(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return events, nil
}

func (s *Store) eventHistory(ctx context.Context, eventID int64) ([]model.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, action, action_date, note
		FROM event_history
		WHERE event_id = ?
		ORDER BY action_date DESC, id DESC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("event history: %w", err)
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var (
			h    model.HistoryEntry
			date string
			note sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.EventID, &h.Action, &date, &note); err != nil {
			return nil, fmt.Errorf("event history: scan: %w", err)
		}
		if h.ActionDate, err = model.ParseDate(date); err != nil {
			return nil, fmt.Errorf("event history: %w", err)
		}
		h.Note = note.String
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event history: %w", err)
	}
	return entries, nil
}
