package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Value is a single mutable numeric entity.
type Value struct {
	ValueID uuid.UUID `json:"value_id"`
	Value   float64   `json:"value"`
}

// Operation is the kind of delta an UpdateOperation applies.
type Operation int

const (
	OperationUnknown Operation = iota
	Add
	Multiply
)

var operationNames = map[Operation]string{
	Add:      "ADD",
	Multiply: "MULTIPLY",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// ParseOperation accepts the wire names case-insensitively.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ADD":
		return Add, nil
	case "MULTIPLY":
		return Multiply, nil
	default:
		return OperationUnknown, fmt.Errorf("%w: unknown operation %q", ErrDecode, s)
	}
}

// Apply returns the result of applying o with operand to v.
func (o Operation) Apply(v, operand float64) (float64, error) {
	switch o {
	case Add:
		return v + operand, nil
	case Multiply:
		return v * operand, nil
	default:
		return v, fmt.Errorf("cannot apply %s", o)
	}
}

func (o Operation) MarshalText() ([]byte, error) {
	name, ok := operationNames[o]
	if !ok {
		return nil, fmt.Errorf("cannot marshal %s", o)
	}
	return []byte(name), nil
}

func (o *Operation) UnmarshalText(text []byte) error {
	op, err := ParseOperation(string(text))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// UpdateOperation describes a delta to apply to an existing Value.
// Operand is carried as "value" on the wire.
type UpdateOperation struct {
	ValueID   uuid.UUID `json:"value_id"`
	Operation Operation `json:"operation"`
	Operand   float64   `json:"value"`
}
