package realtime

import (
	"encoding/json"
	"log"

	"github.com/emctoo/channel-server/internal/protocol"
)

type channelListMeta struct {
	Channel string   `json:"channel"`
	Agents  []string `json:"agents"`
}

// publishAdminChannelList broadcasts one {channel, agents} meta per
// registered channel to the admin channel itself, so every admin-joined
// observer sees the current topology (spec.md §4.7 step 6, grounded in
// websocket.rs's handle_join admin block).
func (s *Server) publishAdminChannelList(connID string, joinRef *string, eventRef string) {
	for _, name := range s.Ctl.ChannelNames() {
		members, err := s.Ctl.ChannelMembers(name)
		if err != nil {
			continue
		}
		meta := channelListMeta{Channel: name, Agents: members}
		body, err := json.Marshal(meta)
		if err != nil {
			continue
		}
		var payload any
		_ = json.Unmarshal(body, &payload)
		msg := protocol.ServerMessage{
			JoinRef:  joinRef,
			EventRef: eventRef,
			Topic:    protocol.TopicAdmin,
			Event:    "channel",
			Payload:  payload,
		}
		if _, err := s.Ctl.ChannelBroadcast(protocol.TopicAdmin, msg); err != nil {
			log.Printf("admin: broadcast channel list for %s failed: %v", name, err)
		}
	}
}
