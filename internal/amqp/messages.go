package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action names the mutation an ExpenseEvent reports.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted:
		return true
	}
	return false
}

// ExpenseEvent announces that an expense changed. It carries only the id;
// consumers read current state from the store.
type ExpenseEvent struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEvent(id string, action Action) ExpenseEvent {
	return ExpenseEvent{
		ID:        id,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

func (e ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ExpenseEventFromJSON decodes an event and rejects unknown actions.
func ExpenseEventFromJSON(data []byte) (ExpenseEvent, error) {
	var e ExpenseEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ExpenseEvent{}, err
	}
	if e.ID == "" {
		return ExpenseEvent{}, fmt.Errorf("expense event without id")
	}
	if !e.Action.Valid() {
		return ExpenseEvent{}, fmt.Errorf("unknown expense event action %q", e.Action)
	}
	return e, nil
}
