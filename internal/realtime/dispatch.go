package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/emctoo/channel-server/internal/metrics"
	"github.com/emctoo/channel-server/internal/protocol"
)

// HandleFrame decodes and dispatches one inbound client frame, spec.md §4.6.
// A frame that fails to decode is logged and dropped; the connection stays
// open. Every dispatched frame, regardless of branch, is mirrored to Redis
// on "from:<topic>:<event>" once handling completes.
func (s *Server) HandleFrame(ctx context.Context, connID, userToken string, raw []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("dispatch: conn %s malformed frame, dropping: %v", connID, err)
		return
	}
	metrics.FramesReceivedTotal.WithLabelValues(frame.Event).Inc()

	switch {
	case frame.Topic == protocol.TopicPhoenix && frame.Event == protocol.EventHeartbeat:
		s.handleHeartbeat(ctx, connID, &frame)
	case frame.Event == protocol.EventPhxJoin:
		s.handleJoin(ctx, connID, userToken, &frame)
	case frame.Event == protocol.EventPhxLeave:
		s.handleLeave(ctx, connID, &frame)
	}

	s.Bridge.PublishInbound(ctx, frame.Topic, frame.Event, frame.Payload)
}

// handleHeartbeat replies ok with an empty response and, on top of the
// universal inbound mirror HandleFrame always performs afterward, publishes
// an extra "from:phoenix:heartbeat" carrying the connection id (spec.md §4.6,
// the double-publish quirk preserved from websocket.rs's handle_heartbeat).
func (s *Server) handleHeartbeat(ctx context.Context, connID string, frame *protocol.Frame) {
	s.okReply(connID, nil, frame.EventRef, frame.Topic, nil)
	s.Bridge.PublishHeartbeat(ctx, connID)
}
