package realtime

import (
	"log"

	"github.com/emctoo/channel-server/internal/protocol"
)

func replyMessage(joinRef *string, eventRef, topic string, reply protocol.Reply) protocol.ServerMessage {
	return protocol.ServerMessage{
		JoinRef:  joinRef,
		EventRef: eventRef,
		Topic:    topic,
		Event:    protocol.EventPhxReply,
		Payload:  reply,
	}
}

// okReply sends an ok phx_reply to the given connection. joinRef is nil for
// heartbeats (spec.md §9 Open Question (c)).
func (s *Server) okReply(connID string, joinRef *string, eventRef, topic string, response any) {
	msg := replyMessage(joinRef, eventRef, topic, protocol.OkReply(response))
	if _, err := s.Ctl.ConnSend(connID, msg); err != nil {
		log.Printf("reply: send to conn %s failed: %v", connID, err)
	}
}
