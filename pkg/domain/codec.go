package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrDecode is wrapped by every payload decoding failure.
var ErrDecode = errors.New("malformed payload")

type envelope struct {
	Action string          `json:"action"`
	ID     uuid.UUID       `json:"id"`
	Parent *uuid.UUID      `json:"parent,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// EncodeCommand serializes cmd into its tagged JSON form.
func EncodeCommand(cmd Command) ([]byte, error) {
	var data any
	switch c := cmd.(type) {
	case CreateValue:
		data = c.Data
	case UpdateValue:
		data = c.Data
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
	return encode(cmd.Action(), cmd.CommandID(), nil, data)
}

// EncodeEvent serializes evt into its tagged JSON form.
func EncodeEvent(evt Event) ([]byte, error) {
	var data any
	switch e := evt.(type) {
	case ValueCreated:
		data = e.Data
	case ValueUpdated:
		data = e.Data
	default:
		return nil, fmt.Errorf("unsupported event %T", evt)
	}
	parent := evt.ParentID()
	return encode(evt.Action(), evt.EventID(), &parent, data)
}

func encode(action string, id uuid.UUID, parent *uuid.UUID, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", action, err)
	}
	return json.Marshal(envelope{Action: action, ID: id, Parent: parent, Data: raw})
}

// DecodeCommand parses a commands-log payload.
func DecodeCommand(payload []byte) (Command, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}

	switch env.Action {
	case ActionCreateValue:
		var v Value
		if err := decodeValue(env.Data, &v); err != nil {
			return nil, err
		}
		return CreateValue{ID: env.ID, Data: v}, nil
	case ActionUpdateValue:
		var op UpdateOperation
		if err := decodeUpdate(env.Data, &op); err != nil {
			return nil, err
		}
		return UpdateValue{ID: env.ID, Data: op}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command action %q", ErrDecode, env.Action)
	}
}

// DecodeEvent parses an events-log payload.
func DecodeEvent(payload []byte) (Event, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if env.Parent == nil || *env.Parent == uuid.Nil {
		return nil, fmt.Errorf("%w: %s event %s has no parent", ErrDecode, env.Action, env.ID)
	}

	switch env.Action {
	case ActionValueCreated:
		var v Value
		if err := decodeValue(env.Data, &v); err != nil {
			return nil, err
		}
		return ValueCreated{ID: env.ID, Parent: *env.Parent, Data: v}, nil
	case ActionValueUpdated:
		var op UpdateOperation
		if err := decodeUpdate(env.Data, &op); err != nil {
			return nil, err
		}
		return ValueUpdated{ID: env.ID, Parent: *env.Parent, Data: op}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event action %q", ErrDecode, env.Action)
	}
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var env envelope
	if len(payload) == 0 {
		return env, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Action == "" {
		return env, fmt.Errorf("%w: missing action", ErrDecode)
	}
	if env.ID == uuid.Nil {
		return env, fmt.Errorf("%w: %s has no id", ErrDecode, env.Action)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return env, fmt.Errorf("%w: %s %s has no data", ErrDecode, env.Action, env.ID)
	}
	return env, nil
}

func decodeValue(raw json.RawMessage, v *Value) error {
	var wire struct {
		ValueID uuid.UUID `json:"value_id"`
		Value   *float64  `json:"value"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if wire.ValueID == uuid.Nil || wire.Value == nil {
		return fmt.Errorf("%w: value requires value_id and value", ErrDecode)
	}
	*v = Value{ValueID: wire.ValueID, Value: *wire.Value}
	return nil
}

func decodeUpdate(raw json.RawMessage, op *UpdateOperation) error {
	var wire struct {
		ValueID   uuid.UUID  `json:"value_id"`
		Operation *Operation `json:"operation"`
		Value     *float64   `json:"value"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		if errors.Is(err, ErrDecode) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if wire.ValueID == uuid.Nil || wire.Operation == nil || wire.Value == nil {
		return fmt.Errorf("%w: update requires value_id, operation and value", ErrDecode)
	}
	*op = UpdateOperation{ValueID: wire.ValueID, Operation: *wire.Operation, Operand: *wire.Value}
	return nil
}
