package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoomID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := GenerateRoomID()
		require.Len(t, id, 6)
		assert.Equal(t, NormalizeRoomID(id), id)
		seen[id] = struct{}{}
	}
	// 36^6 keyspace; 100 draws colliding down to one value would mean a broken generator
	assert.Greater(t, len(seen), 1)
}

func TestNormalizeRoomID(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizeRoomID("  ab12cd "))
	assert.Equal(t, "X", NormalizeRoomID("x"))
	assert.Equal(t, "", NormalizeRoomID("   "))
}

func TestNewMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage(EventCodeChange, CodePayload{RoomID: "AB12CD", Code: "x=1"})
	require.NoError(t, err)

	b, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, EventCodeChange, decoded.Type)

	var p CodePayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &p))
	assert.Equal(t, "x=1", p.Code)
}

func TestNewMessageNilPayload(t *testing.T) {
	msg, err := NewMessage(EventCodeExecuted, nil)
	require.NoError(t, err)
	assert.Nil(t, msg.Payload)
}

func TestValidateRejectsMissingRoomID(t *testing.T) {
	err := Validate(CodePayload{Code: "x=1"})
	assert.Error(t, err)

	err = Validate(CodePayload{RoomID: "AB12CD"})
	assert.NoError(t, err, "empty document snapshot is a valid payload")
}

func TestValidateLanguageRequired(t *testing.T) {
	assert.Error(t, Validate(LanguagePayload{RoomID: "AB12CD"}))
	assert.NoError(t, Validate(LanguagePayload{RoomID: "AB12CD", Language: "python"}))
}
