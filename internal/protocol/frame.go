// Package protocol implements the five-tuple wire format exchanged over the
// WebSocket: [join_ref, event_ref, topic, event, payload]. Inbound frames
// decode into Frame; outbound frames encode from ServerMessage. Both are
// plain JSON arrays on the wire, not objects, so (Un)MarshalJSON is hand
// rolled rather than left to struct tags.
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	EventPhxJoin    = "phx_join"
	EventPhxLeave   = "phx_leave"
	EventPhxReply   = "phx_reply"
	EventHeartbeat  = "heartbeat"
	EventPresenceState = "presence_state"
	EventPresenceDiff = "presence_diff"
)

const (
	TopicPhoenix = "phoenix"
	TopicAdmin   = "admin"
	TopicSystem  = "system"
)

// Frame is one inbound client->server message.
type Frame struct {
	JoinRef  *string
	EventRef string
	Topic    string
	Event    string
	Payload  json.RawMessage
}

func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("frame: not a json array: %w", err)
	}
	if len(raw) != 5 {
		return fmt.Errorf("frame: expected 5 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &f.JoinRef); err != nil {
		return fmt.Errorf("frame: join_ref: %w", err)
	}
	if err := json.Unmarshal(raw[1], &f.EventRef); err != nil {
		return fmt.Errorf("frame: event_ref: %w", err)
	}
	if err := json.Unmarshal(raw[2], &f.Topic); err != nil {
		return fmt.Errorf("frame: topic: %w", err)
	}
	if err := json.Unmarshal(raw[3], &f.Event); err != nil {
		return fmt.Errorf("frame: event: %w", err)
	}
	f.Payload = raw[4]
	return nil
}

func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	return json.Marshal([5]any{f.JoinRef, f.EventRef, f.Topic, f.Event, payload})
}

// ServerMessage is one outbound server->client message.
type ServerMessage struct {
	JoinRef  *string
	EventRef string
	Topic    string
	Event    string
	Payload  any
}

func (m ServerMessage) MarshalJSON() ([]byte, error) {
	payload := m.Payload
	if payload == nil {
		payload = struct{}{}
	}
	return json.Marshal([5]any{m.JoinRef, m.EventRef, m.Topic, m.Event, payload})
}

func (m *ServerMessage) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("server message: not a json array: %w", err)
	}
	if len(raw) != 5 {
		return fmt.Errorf("server message: expected 5 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &m.JoinRef); err != nil {
		return fmt.Errorf("server message: join_ref: %w", err)
	}
	if err := json.Unmarshal(raw[1], &m.EventRef); err != nil {
		return fmt.Errorf("server message: event_ref: %w", err)
	}
	if err := json.Unmarshal(raw[2], &m.Topic); err != nil {
		return fmt.Errorf("server message: topic: %w", err)
	}
	if err := json.Unmarshal(raw[3], &m.Event); err != nil {
		return fmt.Errorf("server message: event: %w", err)
	}
	var payload any
	if err := json.Unmarshal(raw[4], &payload); err != nil {
		return fmt.Errorf("server message: payload: %w", err)
	}
	m.Payload = payload
	return nil
}

// Reply is the payload shape for phx_reply frames.
type Reply struct {
	Status   string `json:"status"`
	Response any    `json:"response"`
}

// OkReply builds a successful phx_reply payload carrying response.
func OkReply(response any) Reply {
	if response == nil {
		response = struct{}{}
	}
	return Reply{Status: "ok", Response: response}
}

// ErrorReply builds a failed phx_reply payload carrying a reason string.
func ErrorReply(reason string) Reply {
	return Reply{Status: "error", Response: map[string]string{"reason": reason}}
}

type joinResponsePayload struct {
	Token string `json:"token"`
}

// ExtractToken pulls the "token" field out of a phx_join payload.
func ExtractToken(payload json.RawMessage) (string, bool) {
	var p joinResponsePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", false
	}
	return p.Token, p.Token != ""
}

type messagePayload struct {
	Message string `json:"message"`
}

// ExtractMessage pulls the "message" field out of a generic event payload.
func ExtractMessage(payload json.RawMessage) (string, bool) {
	var p messagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", false
	}
	return p.Message, p.Message != ""
}

// AgentMeta is one entry in a presence_state/presence_diff metas list.
type AgentMeta struct {
	PhxRef string `json:"phx_ref"`
}

// PresenceEntry groups the metas sharing one external id.
type PresenceEntry struct {
	Metas []AgentMeta `json:"metas"`
}

// PresenceState is the full join-time presence_state payload, keyed by
// external id.
type PresenceState map[string]PresenceEntry

// PresenceDiff is the incremental presence_diff payload.
type PresenceDiff struct {
	Joins PresenceState `json:"joins"`
	Leaves PresenceState `json:"leaves"`
}
