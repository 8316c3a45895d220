// Package remote is the stateless request/response wrapper around the
// authority's HTTP surface. It performs no retries and holds no state
// beyond the resolved endpoint and credential.
package remote

import (
	"tend/internal/model"
)

// Event is the wire shape of one event in an authority response.
// Tag, Details and Note are pointers because the authority distinguishes
// null from empty.
type Event struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Tag            *string             `json:"tag"`
	Details        *string             `json:"details"`
	DueDate        model.Date          `json:"due_date"`
	FrequencyValue int                 `json:"frequency_value"`
	FrequencyUnit  model.FrequencyUnit `json:"frequency_unit"`
	LastDone       *model.Date         `json:"last_done"`
	IsOverdue      bool                `json:"is_overdue"`
	History        []HistoryEntry      `json:"history"`
}

// HistoryEntry is the wire shape of one history row.
type HistoryEntry struct {
	ID         int64      `json:"id"`
	EventID    int64      `json:"event_id"`
	Action     string     `json:"action"`
	ActionDate model.Date `json:"action_date"`
	Note       *string    `json:"note"`
}

// EventPayload is the request body of create and update calls. The client
// always sends the whole record; field-level merge is not part of the
// protocol.
type EventPayload struct {
	Name           string              `json:"name"`
	Tag            *string             `json:"tag"`
	Details        *string             `json:"details"`
	DueDate        model.Date          `json:"due_date"`
	FrequencyValue int                 `json:"frequency_value"`
	FrequencyUnit  model.FrequencyUnit `json:"frequency_unit"`
}

// CompletePayload is the request body of a complete call.
type CompletePayload struct {
	DoneDate *model.Date `json:"done_date,omitempty"`
}

// Health is the authority's health response.
type Health struct {
	Status     string `json:"status"`
	ServerTime int64  `json:"server_time"`
	ServerID   string `json:"server_id"`
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// PayloadFromFields builds the wire payload for a local mutation snapshot.
func PayloadFromFields(f model.EventFields) EventPayload {
	return EventPayload{
		Name:           f.Name,
		Tag:            strPtr(f.Tag),
		Details:        strPtr(f.Details),
		DueDate:        f.DueDate,
		FrequencyValue: f.FrequencyValue,
		FrequencyUnit:  f.FrequencyUnit,
	}
}

// ToModel converts a wire event to the domain type. Snapshot rows arrive
// clean: not dirty, not tombstoned.
func (e Event) ToModel() model.Event {
	m := model.Event{
		ID:             e.ID,
		Name:           e.Name,
		Tag:            strVal(e.Tag),
		Details:        strVal(e.Details),
		DueDate:        e.DueDate,
		FrequencyValue: e.FrequencyValue,
		FrequencyUnit:  e.FrequencyUnit,
		LastDone:       e.LastDone,
	}
	for _, h := range e.History {
		m.History = append(m.History, model.HistoryEntry{
			ID:         h.ID,
			EventID:    h.EventID,
			Action:     h.Action,
			ActionDate: h.ActionDate,
			Note:       strVal(h.Note),
		})
	}
	return m
}
