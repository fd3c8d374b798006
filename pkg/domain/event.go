package domain

import "github.com/google/uuid"

// Event records an accepted command. The variants are ValueCreated and
// ValueUpdated; Parent is the id of the command that caused it.
type Event interface {
	EventID() uuid.UUID
	ParentID() uuid.UUID
	Action() string
	isEvent()
}

type ValueCreated struct {
	ID     uuid.UUID
	Parent uuid.UUID
	Data   Value
}

type ValueUpdated struct {
	ID     uuid.UUID
	Parent uuid.UUID
	Data   UpdateOperation
}

const (
	ActionValueCreated = "ValueCreated"
	ActionValueUpdated = "ValueUpdated"
)

func (e ValueCreated) EventID() uuid.UUID  { return e.ID }
func (e ValueCreated) ParentID() uuid.UUID { return e.Parent }
func (e ValueCreated) Action() string      { return ActionValueCreated }
func (ValueCreated) isEvent()              {}

func (e ValueUpdated) EventID() uuid.UUID  { return e.ID }
func (e ValueUpdated) ParentID() uuid.UUID { return e.Parent }
func (e ValueUpdated) Action() string      { return ActionValueUpdated }
func (ValueUpdated) isEvent()              {}

// NewValueCreated derives the event for an accepted CreateValue.
func NewValueCreated(cmd CreateValue) ValueCreated {
	return ValueCreated{ID: uuid.New(), Parent: cmd.ID, Data: cmd.Data}
}

// NewValueUpdated derives the event for an accepted UpdateValue.
func NewValueUpdated(cmd UpdateValue) ValueUpdated {
	return ValueUpdated{ID: uuid.New(), Parent: cmd.ID, Data: cmd.Data}
}
