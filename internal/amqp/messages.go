package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"shadiflow/internal/core"
)

// EventType names a ledger mutation.
type EventType string

const (
	EventGroupCreated    EventType = "group.created"
	EventMemberJoined    EventType = "member.joined"
	EventExpenseRecorded EventType = "expense.recorded"
)

// LedgerEvent is published after a ledger mutation has been persisted.
// Expense is only set for EventExpenseRecorded.
type LedgerEvent struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	GroupID   string        `json:"group_id"`
	Username  string        `json:"username"`
	UserID    int           `json:"user_id,omitempty"`
	Expense   *core.Expense `json:"expense,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// NewLedgerEvent creates an event with a fresh id and the current time.
func NewLedgerEvent(typ EventType, groupID, username string) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		GroupID:   groupID,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}
}

// NewExpenseRecorded wraps a stored expense in an event.
func NewExpenseRecorded(e core.Expense) *LedgerEvent {
	ev := NewLedgerEvent(EventExpenseRecorded, e.GroupID, e.Username)
	ev.UserID = e.UserID
	ev.Expense = &e
	return ev
}

// ToJSON converts the event to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON decodes an event from a delivery body.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
