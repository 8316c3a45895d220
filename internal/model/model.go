// Package model defines the event domain types shared by the local store,
// the reconciler, and the authority server.
package model

import (
	"fmt"
	"time"
)

// DateFormat is the wire and storage format for calendar dates.
// Dates never carry a time component.
const DateFormat = "2006-01-02"

// Date is a calendar date (year, month, day) with ISO JSON encoding.
type Date struct {
	t time.Time
}

// NewDate constructs a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date in local time.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses an ISO calendar date ("2006-01-02").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) String() string { return d.t.Format(DateFormat) }

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// Equal reports whether d and other are the same calendar date.
func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// Date returns the year, month and day components.
func (d Date) Date() (int, time.Month, int) { return d.t.Date() }

// MarshalJSON encodes the date as an ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes an ISO date string.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("date must be a JSON string, got %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FrequencyUnit is the calendar unit of an event's repeat interval.
type FrequencyUnit string

const (
	UnitDays   FrequencyUnit = "days"
	UnitWeeks  FrequencyUnit = "weeks"
	UnitMonths FrequencyUnit = "months"
	UnitYears  FrequencyUnit = "years"
)

// FrequencyUnits lists the valid units in canonical order.
var FrequencyUnits = []FrequencyUnit{UnitDays, UnitWeeks, UnitMonths, UnitYears}

// ParseFrequencyUnit validates and normalizes a unit string.
func ParseFrequencyUnit(s string) (FrequencyUnit, error) {
	u := FrequencyUnit(s)
	if !u.Valid() {
		return "", fmt.Errorf("frequency unit must be one of %v, got %q", FrequencyUnits, s)
	}
	return u, nil
}

// Valid reports whether u is one of the four calendar units.
func (u FrequencyUnit) Valid() bool {
	switch u {
	case UnitDays, UnitWeeks, UnitMonths, UnitYears:
		return true
	}
	return false
}

// AddFrequency advances base by value units, clamping month and year
// arithmetic to the last valid day of the target month (Jan 31 + 1 month
// is Feb 28, or Feb 29 in a leap year) so repeats never drift forward
// into the following month.
func AddFrequency(base Date, value int, unit FrequencyUnit) (Date, error) {
	switch unit {
	case UnitDays:
		return Date{t: base.t.AddDate(0, 0, value)}, nil
	case UnitWeeks:
		return Date{t: base.t.AddDate(0, 0, 7*value)}, nil
	case UnitMonths:
		return addMonths(base, value), nil
	case UnitYears:
		return addMonths(base, 12*value), nil
	}
	return Date{}, fmt.Errorf("unsupported frequency unit %q", unit)
}

func addMonths(base Date, months int) Date {
	year, month, day := base.t.Date()
	m := int(month) - 1 + months
	year += m / 12
	m %= 12
	if m < 0 {
		m += 12
		year--
	}
	month = time.Month(m + 1)
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Event is a recurring reminder. Negative IDs mark events created locally
// and not yet acknowledged by the authority; positive IDs are
// authority-assigned. Dirty and Deleted are client-local flags and never
// cross the wire.
type Event struct {
	ID             int64
	Name           string
	Tag            string // empty means unset
	Details        string // empty means unset
	FrequencyValue int
	FrequencyUnit  FrequencyUnit
	DueDate        Date
	LastDone       *Date
	Dirty          bool
	Deleted        bool
	History        []HistoryEntry
}

// LocalOnly reports whether the event was created offline and has not yet
// been assigned an authority ID.
func (e Event) LocalOnly() bool { return e.ID < 0 }

// Overdue reports whether the event is due on or before today.
func (e Event) Overdue(today Date) bool {
	return !e.DueDate.After(today)
}

// FrequencyText renders the repeat interval for display ("1 week", "3 months").
func (e Event) FrequencyText() string {
	unit := string(e.FrequencyUnit)
	if e.FrequencyValue == 1 && len(unit) > 0 && unit[len(unit)-1] == 's' {
		unit = unit[:len(unit)-1]
	}
	return fmt.Sprintf("%d %s", e.FrequencyValue, unit)
}

// ActionDone is the history action recorded when an event is completed.
const ActionDone = "done"

// HistoryEntry is one recorded action on an event. Entries created offline
// carry negative surrogate IDs until a snapshot replaces them with
// authority-assigned ones.
type HistoryEntry struct {
	ID         int64
	EventID    int64
	Action     string
	ActionDate Date
	Note       string
}

// EventFields is the mutable field set of an event, used as the payload of
// create and update mutations.
type EventFields struct {
	Name           string        `json:"name"`
	Tag            string        `json:"tag,omitempty"`
	Details        string        `json:"details,omitempty"`
	DueDate        Date          `json:"due_date"`
	FrequencyValue int           `json:"frequency_value"`
	FrequencyUnit  FrequencyUnit `json:"frequency_unit"`
}

// Validate checks the field constraints shared by client and server.
func (f EventFields) Validate() error {
	if f.Name == "" || len(f.Name) > 128 {
		return fmt.Errorf("name must be 1-128 characters")
	}
	if len(f.Tag) > 64 {
		return fmt.Errorf("tag must be at most 64 characters")
	}
	if len(f.Details) > 2048 {
		return fmt.Errorf("details must be at most 2048 characters")
	}
	if f.FrequencyValue < 1 || f.FrequencyValue > 1000 {
		return fmt.Errorf("frequency_value must be 1-1000")
	}
	if !f.FrequencyUnit.Valid() {
		return fmt.Errorf("frequency unit must be one of %v, got %q", FrequencyUnits, f.FrequencyUnit)
	}
	if f.DueDate.IsZero() {
		return fmt.Errorf("due_date is required")
	}
	return nil
}
