package realtime

import (
	"context"
	"log"

	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/protocol"
)

type joinResponse struct {
	ID string `json:"id"`
}

// handleJoin runs the join procedure, spec.md §4.7. A token failure or
// registry error aborts the join silently: no reply, no relay task, the
// connection stays open (spec.md §7).
func (s *Server) handleJoin(ctx context.Context, connID, userToken string, frame *protocol.Frame) {
	if frame.JoinRef == nil {
		log.Printf("join: conn %s missing join_ref, abandoning", connID)
		return
	}
	joinRef := *frame.JoinRef

	token, ok := protocol.ExtractToken(frame.Payload)
	if !ok {
		token = userToken
	}
	if token == "" {
		log.Printf("join: conn %s no token available, abandoning", connID)
		return
	}

	claims, err := s.Verifier.Verify(token)
	if err != nil {
		log.Printf("join: conn %s bad token, abandoning: %v", connID, err)
		return
	}

	channel := frame.Topic
	if !isSpecialChannel(channel) {
		s.Ctl.ChannelAdd(channel)
		s.Bridge.EnsureSubscription(ctx, channel)
	}

	agentID := controller.AgentID(connID, channel, joinRef)
	s.Ctl.AgentAdd(agentID, connID, channel, claims.ID)
	s.Ctl.ChannelJoin(channel, agentID)

	relayCtx, cancel := context.WithCancel(ctx)
	if err := s.Ctl.AgentSetRelay(agentID, cancel); err != nil {
		cancel()
		log.Printf("join: conn %s agent %s vanished before relay spawn: %v", connID, agentID, err)
		return
	}
	go s.channelRelay(relayCtx, channel, agentID)
	go s.relay(relayCtx, connID, agentID, joinRef)

	s.okReply(connID, frame.JoinRef, frame.EventRef, channel, joinResponse{ID: agentID})

	if channel == protocol.TopicAdmin {
		s.publishAdminChannelList(connID, frame.JoinRef, frame.EventRef)
	}

	state := buildPresenceState(s.Ctl, channel)
	stateMsg := protocol.ServerMessage{
		JoinRef:  frame.JoinRef,
		EventRef: frame.EventRef,
		Topic:    channel,
		Event:    protocol.EventPresenceState,
		Payload:  state,
	}
	if _, err := s.Ctl.ConnSend(connID, stateMsg); err != nil {
		log.Printf("join: conn %s presence_state send failed: %v", connID, err)
	}

	s.Bridge.PublishPresenceDiff(ctx, channel, singlePresenceDiff(agentID, claims.ID, true))
}

// relay forwards messages from an agent's mailbox into its connection's
// mailbox, rewriting join_ref along the way. Exits when the agent mailbox
// closes or the connection send fails (spec.md §4.5).
func (s *Server) relay(ctx context.Context, connID, agentID, joinRef string) {
	rx, err := s.Ctl.AgentRx(agentID)
	if err != nil {
		log.Printf("relay: agent %s rx unavailable: %v", agentID, err)
		return
	}
	ref := joinRef
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			return
		}
		msg.JoinRef = &ref
		if _, err := s.Ctl.ConnSend(connID, msg); err != nil {
			log.Printf("relay: agent %s -> conn %s send failed, exiting: %v", agentID, connID, err)
			return
		}
	}
}

// channelRelay forwards messages from a channel's own mailbox into a single
// joined agent's mailbox (spec.md §2's "channel bus -> agent mailbox" hop,
// grounded on channel.rs's channel_sub_to_agent). Exits when the channel
// mailbox closes or the agent mailbox has been torn down.
func (s *Server) channelRelay(ctx context.Context, channel, agentID string) {
	rx, err := s.Ctl.ChannelRx(channel)
	if err != nil {
		log.Printf("channelRelay: channel %s rx unavailable: %v", channel, err)
		return
	}
	for {
		msg, err := rx.Recv(ctx)
		if err != nil {
			return
		}
		if _, err := s.Ctl.AgentSend(agentID, msg); err != nil {
			return
		}
	}
}
