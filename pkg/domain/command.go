package domain

import "github.com/google/uuid"

// Command is a request to change state. The variants are CreateValue and
// UpdateValue.
type Command interface {
	CommandID() uuid.UUID
	Action() string
	isCommand()
}

// CreateValue asks for a new Value to be created.
type CreateValue struct {
	ID   uuid.UUID
	Data Value
}

// UpdateValue asks for an operation to be applied to an existing Value.
type UpdateValue struct {
	ID   uuid.UUID
	Data UpdateOperation
}

const (
	ActionCreateValue = "CreateValue"
	ActionUpdateValue = "UpdateValue"
)

func (c CreateValue) CommandID() uuid.UUID { return c.ID }
func (c CreateValue) Action() string       { return ActionCreateValue }
func (CreateValue) isCommand()             {}

func (c UpdateValue) CommandID() uuid.UUID { return c.ID }
func (c UpdateValue) Action() string       { return ActionUpdateValue }
func (UpdateValue) isCommand()             {}

// NewCreateValue builds a CreateValue with fresh command and value ids.
func NewCreateValue(initial float64) CreateValue {
	return CreateValue{
		ID:   uuid.New(),
		Data: Value{ValueID: uuid.New(), Value: initial},
	}
}

// NewUpdateValue builds an UpdateValue with a fresh command id.
func NewUpdateValue(valueID uuid.UUID, op Operation, operand float64) UpdateValue {
	return UpdateValue{
		ID:   uuid.New(),
		Data: UpdateOperation{ValueID: valueID, Operation: op, Operand: operand},
	}
}
