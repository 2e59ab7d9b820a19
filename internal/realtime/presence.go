package realtime

import (
	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/protocol"
)

// buildPresenceState aggregates every agent currently joined to channel into
// a presence_state payload, grouped by external id (spec.md §9 Open
// Question (a), resolved in SPEC_FULL.md §11(a)): two agents sharing one
// external id surface as two metas under that key.
func buildPresenceState(ctl *controller.Controller, channel string) protocol.PresenceState {
	members, err := ctl.ChannelMembers(channel)
	if err != nil {
		return protocol.PresenceState{}
	}
	state := protocol.PresenceState{}
	for _, agentID := range members {
		externalID, ok := ctl.AgentExternalID(agentID)
		if !ok {
			continue
		}
		entry := state[externalID]
		entry.Metas = append(entry.Metas, protocol.AgentMeta{PhxRef: agentID})
		state[externalID] = entry
	}
	return state
}

// singlePresenceDiff builds a presence_diff payload carrying exactly one
// agent, on either the joins or leaves side.
func singlePresenceDiff(agentID, externalID string, joined bool) protocol.PresenceDiff {
	entry := protocol.PresenceEntry{Metas: []protocol.AgentMeta{{PhxRef: agentID}}}
	if joined {
		return protocol.PresenceDiff{
			Joins:  protocol.PresenceState{externalID: entry},
			Leaves: protocol.PresenceState{},
		}
	}
	return protocol.PresenceDiff{
		Joins:  protocol.PresenceState{},
		Leaves: protocol.PresenceState{externalID: entry},
	}
}
