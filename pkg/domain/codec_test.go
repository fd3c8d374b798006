package domain

import (
	"encoding/json"
	"testing"

	"github.com/edgeflare/valuelog/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandWireFormat(t *testing.T) {
	cmd := UpdateValue{
		ID:   uuid.MustParse("6f1e7a52-8f43-4a5e-9d3e-0b8f2f4f6a11"),
		Data: UpdateOperation{ValueID: uuid.MustParse("0d2b1c4e-2f7e-4c71-bd7a-5a7a3e0c9b22"), Operation: Multiply, Operand: 2.5},
	}

	payload, err := EncodeCommand(cmd)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Equal(t, "UpdateValue", raw["action"])
	assert.Equal(t, cmd.ID.String(), raw["id"])
	assert.NotContains(t, raw, "parent")
	data := raw["data"].(map[string]any)
	assert.Equal(t, "MULTIPLY", data["operation"])
	assert.Equal(t, 2.5, data["value"])
	assert.Equal(t, cmd.Data.ValueID.String(), data["value_id"])

	decoded, err := DecodeCommand(payload)
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)
}

func TestDecodeWireFixtures(t *testing.T) {
	var wire struct {
		Commands []json.RawMessage `json:"commands"`
		Events   []json.RawMessage `json:"events"`
	}
	require.NoError(t, testutil.LoadJSON("wire.json", &wire))
	require.Len(t, wire.Commands, 2)
	require.Len(t, wire.Events, 2)
	valueID := uuid.MustParse("0d2b1c4e-2f7e-4c71-bd7a-5a7a3e0c9b22")

	cmd, err := DecodeCommand(wire.Commands[0])
	require.NoError(t, err)
	create, ok := cmd.(CreateValue)
	require.True(t, ok, "expected CreateValue, got %T", cmd)
	assert.Equal(t, Value{ValueID: valueID, Value: 2}, create.Data)

	cmd, err = DecodeCommand(wire.Commands[1])
	require.NoError(t, err)
	update, ok := cmd.(UpdateValue)
	require.True(t, ok, "expected UpdateValue, got %T", cmd)
	assert.Equal(t, UpdateOperation{ValueID: valueID, Operation: Add, Operand: 2}, update.Data)

	evt, err := DecodeEvent(wire.Events[0])
	require.NoError(t, err)
	assert.Equal(t, create.ID, evt.ParentID())
	assert.IsType(t, ValueCreated{}, evt)

	evt, err = DecodeEvent(wire.Events[1])
	require.NoError(t, err)
	assert.Equal(t, update.ID, evt.ParentID())
	assert.Equal(t, Multiply, evt.(ValueUpdated).Data.Operation)

	// events are not commands and vice versa
	_, err = DecodeCommand(wire.Events[0])
	assert.ErrorIs(t, err, ErrDecode)
	_, err = DecodeEvent(wire.Commands[0])
	assert.ErrorIs(t, err, ErrDecode)
}

func TestEventCarriesParent(t *testing.T) {
	cmd := NewCreateValue(10)
	evt := NewValueCreated(cmd)
	assert.Equal(t, cmd.ID, evt.Parent)
	assert.NotEqual(t, cmd.ID, evt.ID)

	payload, err := EncodeEvent(evt)
	require.NoError(t, err)

	decoded, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, evt, decoded)
}

func TestDecodeFailures(t *testing.T) {
	id := uuid.New().String()
	vid := uuid.New().String()

	tests := []struct {
		name    string
		payload string
		event   bool
	}{
		{"empty", ``, false},
		{"not json", `{"action":`, false},
		{"missing action", `{"id":"` + id + `","data":{"value_id":"` + vid + `","value":1}}`, false},
		{"unknown action", `{"action":"DeleteValue","id":"` + id + `","data":{"value_id":"` + vid + `","value":1}}`, false},
		{"missing id", `{"action":"CreateValue","data":{"value_id":"` + vid + `","value":1}}`, false},
		{"bad id", `{"action":"CreateValue","id":"nope","data":{"value_id":"` + vid + `","value":1}}`, false},
		{"missing data", `{"action":"CreateValue","id":"` + id + `"}`, false},
		{"missing value", `{"action":"CreateValue","id":"` + id + `","data":{"value_id":"` + vid + `"}}`, false},
		{"unknown operation", `{"action":"UpdateValue","id":"` + id + `","data":{"value_id":"` + vid + `","operation":"DIVIDE","value":1}}`, false},
		{"missing operation", `{"action":"UpdateValue","id":"` + id + `","data":{"value_id":"` + vid + `","value":1}}`, false},
		{"event without parent", `{"action":"ValueCreated","id":"` + id + `","data":{"value_id":"` + vid + `","value":1}}`, true},
		{"command action on events log", `{"action":"CreateValue","id":"` + id + `","parent":"` + id + `","data":{"value_id":"` + vid + `","value":1}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.event {
				_, err = DecodeEvent([]byte(tt.payload))
			} else {
				_, err = DecodeCommand([]byte(tt.payload))
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestOperation(t *testing.T) {
	op, err := ParseOperation("add")
	require.NoError(t, err)
	assert.Equal(t, Add, op)

	got, err := Add.Apply(10, 5)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got)

	got, err = Multiply.Apply(4, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	_, err = OperationUnknown.Apply(1, 1)
	assert.Error(t, err)

	_, err = OperationUnknown.MarshalText()
	assert.Error(t, err)
}
