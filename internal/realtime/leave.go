package realtime

import (
	"context"
	"log"

	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/protocol"
)

type leaveResponse struct {
	ID string `json:"id"`
}

// handleLeave runs the leave procedure, spec.md §4.8: remove the agent (its
// relay tasks are cancelled as part of AgentRm), drop channel membership,
// reply ok, and publish a presence_diff leave if the agent had registered an
// external id.
func (s *Server) handleLeave(ctx context.Context, connID string, frame *protocol.Frame) {
	if frame.JoinRef == nil {
		log.Printf("leave: conn %s missing join_ref, abandoning", connID)
		return
	}
	channel := frame.Topic
	agentID := controller.AgentID(connID, channel, *frame.JoinRef)

	externalID, ok := s.Ctl.AgentRm(agentID)

	channelRemoved, err := s.Ctl.ChannelLeave(channel, agentID)
	if err != nil {
		log.Printf("leave: conn %s channel %s leave failed: %v", connID, channel, err)
	}
	_ = channelRemoved

	s.okReply(connID, frame.JoinRef, frame.EventRef, channel, leaveResponse{ID: agentID})

	if !ok {
		log.Printf("leave: agent %s had no external id on file, skipping presence_diff", agentID)
		return
	}
	s.Bridge.PublishPresenceDiff(ctx, channel, singlePresenceDiff(agentID, externalID, false))
}
