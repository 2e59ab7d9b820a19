package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	raw := `["1","ref1","system","phx_join",{"token":"abc"}]`

	var f Frame
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	require.NotNil(t, f.JoinRef)
	assert.Equal(t, "1", *f.JoinRef)
	assert.Equal(t, "ref1", f.EventRef)
	assert.Equal(t, "system", f.Topic)
	assert.Equal(t, "phx_join", f.Event)

	reencoded, err := json.Marshal(f)
	require.NoError(t, err)

	var roundTripped Frame
	require.NoError(t, json.Unmarshal(reencoded, &roundTripped))
	assert.Equal(t, f.JoinRef, roundTripped.JoinRef)
	assert.Equal(t, f.EventRef, roundTripped.EventRef)
	assert.Equal(t, f.Topic, roundTripped.Topic)
	assert.Equal(t, f.Event, roundTripped.Event)
}

func TestFrameNullJoinRef(t *testing.T) {
	raw := `[null,"1","phoenix","heartbeat",{}]`

	var f Frame
	require.NoError(t, json.Unmarshal([]byte(raw), &f))
	assert.Nil(t, f.JoinRef)
}

func TestFrameRejectsWrongArity(t *testing.T) {
	var f Frame
	err := json.Unmarshal([]byte(`["1","ref1","system","phx_join"]`), &f)
	assert.Error(t, err)
}

func TestFrameRejectsNonArray(t *testing.T) {
	var f Frame
	err := json.Unmarshal([]byte(`{"not":"an array"}`), &f)
	assert.Error(t, err)
}

func TestFrameRejectsGarbageString(t *testing.T) {
	var f Frame
	err := json.Unmarshal([]byte(`"invalid json"`), &f)
	assert.Error(t, err)
}

func TestServerMessageMarshalsAsFiveTuple(t *testing.T) {
	ref := "1"
	msg := ServerMessage{
		JoinRef:  &ref,
		EventRef: "2",
		Topic:    "system",
		Event:    EventPhxReply,
		Payload:  OkReply(nil),
	}

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	require.Len(t, raw, 5)
}

func TestServerMessageHeartbeatReplyHasNilJoinRef(t *testing.T) {
	msg := ServerMessage{
		JoinRef:  nil,
		EventRef: "1",
		Topic:    TopicPhoenix,
		Event:    EventPhxReply,
		Payload:  OkReply(nil),
	}

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Equal(t, "null", string(raw[0]))
}

func TestExtractToken(t *testing.T) {
	token, ok := ExtractToken(json.RawMessage(`{"token":"abc123"}`))
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)

	_, ok = ExtractToken(json.RawMessage(`{}`))
	assert.False(t, ok)

	_, ok = ExtractToken(json.RawMessage(`not json`))
	assert.False(t, ok)
}

func TestOkAndErrorReply(t *testing.T) {
	ok := OkReply(map[string]string{"id": "x"})
	assert.Equal(t, "ok", ok.Status)

	errReply := ErrorReply("bad token")
	assert.Equal(t, "error", errReply.Status)
	body, err := json.Marshal(errReply)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bad token")
}

func TestPresenceStateJSONShape(t *testing.T) {
	state := PresenceState{
		"user-1": PresenceEntry{Metas: []AgentMeta{{PhxRef: "conn:room:1"}}},
	}
	body, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"phx_ref":"conn:room:1"`)
}
