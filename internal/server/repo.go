package server

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"tend/internal/model"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrNotFound is returned when an event does not exist.
var ErrNotFound = errors.New("server: event not found")

const timestampFormat = "2006-01-02T15:04:05"

// Repo is the authority's SQLite-backed storage. Unlike the client store it
// assigns positive autoincrement identifiers and keeps no sync machinery:
// this side is the source of truth.
type Repo struct {
	db  *sql.DB
	now func() time.Time
}

// OpenRepo creates or opens the authority database and applies goose
// migrations.
func OpenRepo(path string) (*Repo, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open authority db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect authority db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Repo{db: db, now: time.Now}, nil
}

// Close closes the database.
func (r *Repo) Close() error { return r.db.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const eventColumns = `id, name, tag, details, frequency_value, frequency_unit,
	due_date, last_done`

func scanEvent(row interface{ Scan(...any) error }) (model.Event, error) {
	var (
		e        model.Event
		tag      sql.NullString
		details  sql.NullString
		unit     string
		due      string
		lastDone sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &tag, &details, &e.FrequencyValue, &unit, &due, &lastDone)
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

// ListEvents returns all events ordered by due date then name, each with up
// to historyLimit history rows, newest first.
func (r *Repo) ListEvents(ctx context.Context, historyLimit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
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

	if historyLimit > 0 {
		for i := range events {
			events[i].History, err = r.History(ctx, events[i].ID, historyLimit)
			if err != nil {
				return nil, err
			}
		}
	}
	return events, nil
}

// GetEvent loads one event with up to historyLimit history rows.
func (r *Repo) GetEvent(ctx context.Context, id int64, historyLimit int) (model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	if historyLimit > 0 {
		if e.History, err = r.History(ctx, id, historyLimit); err != nil {
			return model.Event{}, err
		}
	}
	return e, nil
}

// History returns an event's history rows, newest action first. A limit of
// 0 or less means no limit.
func (r *Repo) History(ctx context.Context, eventID int64, limit int) ([]model.HistoryEntry, error) {
	query := `
		SELECT id, event_id, action, action_date, note
		FROM event_history
		WHERE event_id = ?
		ORDER BY action_date DESC, id DESC
	`
	args := []any{eventID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
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
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if h.ActionDate, err = model.ParseDate(date); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		h.Note = note.String
		entries = append(entries, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}

// CreateEvent inserts a new event and returns it with its assigned ID.
func (r *Repo) CreateEvent(ctx context.Context, fields model.EventFields) (model.Event, error) {
	if err := fields.Validate(); err != nil {
		return model.Event{}, err
	}
	now := r.now().UTC().Format(timestampFormat)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events
		(name, tag, details, frequency_value, frequency_unit, due_date,
		 last_done, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`,
		strings.TrimSpace(fields.Name),
		nullable(strings.TrimSpace(fields.Tag)),
		nullable(strings.TrimSpace(fields.Details)),
		fields.FrequencyValue,
		string(fields.FrequencyUnit),
		fields.DueDate.String(),
		now, now,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Event{}, fmt.Errorf("create event: last insert id: %w", err)
	}
	return r.GetEvent(ctx, id, 0)
}

// EventUpdate is a partial update: nil fields are left unchanged. An empty
// Tag or Details string clears the stored value.
type EventUpdate struct {
	Name           *string
	Tag            *string
	Details        *string
	DueDate        *model.Date
	FrequencyValue *int
	FrequencyUnit  *model.FrequencyUnit
}

// Empty reports whether the update carries no fields at all.
func (u EventUpdate) Empty() bool {
	return u.Name == nil && u.Tag == nil && u.Details == nil &&
		u.DueDate == nil && u.FrequencyValue == nil && u.FrequencyUnit == nil
}

// UpdateEvent applies a partial update and returns the updated event.
func (r *Repo) UpdateEvent(ctx context.Context, id int64, update EventUpdate) (model.Event, error) {
	if _, err := r.GetEvent(ctx, id, 0); err != nil {
		return model.Event{}, err
	}

	var sets []string
	var args []any
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" || len(name) > 128 {
			return model.Event{}, fmt.Errorf("name must be 1-128 characters")
		}
		sets, args = append(sets, "name = ?"), append(args, name)
	}
	if update.Tag != nil {
		sets, args = append(sets, "tag = ?"), append(args, nullable(strings.TrimSpace(*update.Tag)))
	}
	if update.Details != nil {
		sets, args = append(sets, "details = ?"), append(args, nullable(strings.TrimSpace(*update.Details)))
	}
	if update.DueDate != nil {
		sets, args = append(sets, "due_date = ?"), append(args, update.DueDate.String())
	}
	if update.FrequencyValue != nil {
		if *update.FrequencyValue < 1 || *update.FrequencyValue > 1000 {
			return model.Event{}, fmt.Errorf("frequency_value must be 1-1000")
		}
		sets, args = append(sets, "frequency_value = ?"), append(args, *update.FrequencyValue)
	}
	if update.FrequencyUnit != nil {
		if !update.FrequencyUnit.Valid() {
			return model.Event{}, fmt.Errorf("frequency unit must be one of %v", model.FrequencyUnits)
		}
		sets, args = append(sets, "frequency_unit = ?"), append(args, string(*update.FrequencyUnit))
	}
	if len(sets) == 0 {
		return r.GetEvent(ctx, id, 0)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC().Format(timestampFormat), id)

	if _, err := r.db.ExecContext(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return model.Event{}, fmt.Errorf("update event: %w", err)
	}
	return r.GetEvent(ctx, id, 0)
}

// DeleteEvent removes an event and, via FK cascade, its history.
func (r *Repo) DeleteEvent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteEvent records a completion: advances the due date by the event's
// repeat interval starting from done (today when nil), sets last_done, and
// appends a 'done' history row, all in one transaction.
func (r *Repo) CompleteEvent(ctx context.Context, id int64, done *model.Date) (model.Event, error) {
	event, err := r.GetEvent(ctx, id, 0)
	if err != nil {
		return model.Event{}, err
	}

	doneDate := model.Today()
	if done != nil {
		doneDate = *done
	}
	newDue, err := model.AddFrequency(doneDate, event.FrequencyValue, event.FrequencyUnit)
	if err != nil {
		return model.Event{}, fmt.Errorf("complete event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("complete event: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE events SET last_done = ?, due_date = ?, updated_at = ? WHERE id = ?
	`, doneDate.String(), newDue.String(), r.now().UTC().Format(timestampFormat), id); err != nil {
		return model.Event{}, fmt.Errorf("complete event: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO event_history (event_id, action, action_date)
		VALUES (?, ?, ?)
	`, id, model.ActionDone, doneDate.String()); err != nil {
		return model.Event{}, fmt.Errorf("complete event: history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("complete event: commit: %w", err)
	}
	return r.GetEvent(ctx, id, 0)
}
