package serializer

import (
	"testing"

	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages returns messages as they are exchanged by client and server.
// Empty but non-nil slices are left out, json and gob turn them into nil.
func testMessages() map[string]common.Message {
	return map[string]common.Message{
		"success": {MsgType: common.MsgTSuccess},
		"execute": *common.NewExecuteRequest("people", "Person", "age > ?", []byte(`[30]`), 100),
		"execute fields": *common.NewExecuteFieldsRequest("people", "SELECT name FROM Person", nil, -1),
		"fetch":          *common.NewFetchRequest(1<<40, 512),
		"close":          *common.NewCloseRequest(7),
		"first page": *common.NewPageResponse(common.MsgTQryExecuteFields, 3,
			[]byte(`[["alice",31],["bob",25]]`),
			[]byte(`[{"schemaName":"people","typeName":"Person","fieldName":"name","fieldTypeName":"string"}]`),
			false),
		"last page":      *common.NewPageResponse(common.MsgTQryFetch, 3, []byte(`[]`), nil, true),
		"close response": *common.NewCloseResponse(true),
		"not found": *common.NewPageResponse(common.MsgTQryFetch, 9, nil, nil, false).
			WithError("cannot find query [qryId=9]", 1),
		"error":  *common.NewErrorResponse("unsupported message type"),
		"custom": *common.NewCustomRequest([]byte("meta")),
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgName, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, msgName)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), msgName)
				assert.Equal(t, msg, result, msgName)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTCustom; msgType++ {
				data, err := serializer.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, msgType.String())

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), msgType.String())
				assert.Equal(t, msgType, result.MsgType)
			}
		})
	}
}

// TestDeserializeOverwrites makes sure a reused message does not keep fields of a previous one
func TestDeserializeOverwrites(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			messages := testMessages()

			first, err := serializer.Serialize(messages["first page"])
			require.NoError(t, err)
			second, err := serializer.Serialize(messages["close response"])
			require.NoError(t, err)

			var msg common.Message
			require.NoError(t, serializer.Deserialize(first, &msg))
			require.NoError(t, serializer.Deserialize(second, &msg))
			assert.Equal(t, messages["close response"], msg)
		})
	}
}

// TestBinarySerializerSpecific tests edge cases only the binary serializer preserves
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{"empty message", common.Message{}},
		{"empty but non-nil slices", common.Message{
			MsgType: common.MsgTQryFetch,
			Args:    []byte{},
			Items:   []byte{},
			Fields:  []byte{},
			Meta:    []byte{},
		}},
		{"negative page size", *common.NewFetchRequest(1, -20)},
		{"flags only", common.Message{MsgType: common.MsgTQryFetch, Last: true, Ok: true}},
		{"max query id", *common.NewCloseRequest(^uint64(0))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			require.NoError(t, err)

			// reuse a message that has every field set
			result := *common.NewExecuteRequest("x", "y", "z", []byte("a"), 1)
			result.WithError("e", 2)
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, tc.msg, result)
		})
	}

	t.Run("header only has no payload", func(t *testing.T) {
		data, err := serializer.Serialize(common.Message{MsgType: common.MsgTQryFetch, Last: true})
		require.NoError(t, err)
		assert.Len(t, data, headerSize)
	})
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{"empty data", []byte{}, true},
		{"too short header", []byte{1, 0}, true},
		{"valid header only", []byte{1, 0, 0}, false},
		{"invalid length for cache", []byte{4, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, true},
		{"missing length for args", []byte{4, 0, 8, 0, 0}, true},
		{"truncated query id", []byte{6, 0, 32, 0, 0, 0, 1}, true},
		{"missing error kind", []byte{2, 8, 0}, true},
		{"invalid length for meta", []byte{8, 16, 0, 0, 0, 0, 10}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)
			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestInvalidData makes sure corrupt input is reported by every serializer
func TestInvalidData(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			var msg common.Message
			assert.Error(t, factory().Deserialize([]byte{}, &msg))
		})
	}

	var msg common.Message
	assert.Error(t, NewJSONSerializer().Deserialize([]byte(`{"msg_type":"nope"}`), &msg))
	assert.Error(t, NewGOBSerializer().Deserialize([]byte{0xff, 0x00, 0x13}, &msg))
}
