package controller

import (
	"context"
	"testing"

	"github.com/emctoo/channel-server/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelCreationAndBasicOps(t *testing.T) {
	c := New(10)
	c.ChannelAdd("room")
	assert.True(t, c.ChannelExists("room"))

	members, err := c.ChannelMembers("room")
	require.NoError(t, err)
	assert.Empty(t, members)

	c.ChannelAdd("room") // idempotent
	assert.ElementsMatch(t, []string{"room"}, c.ChannelNames())
}

func TestChannelErrorCases(t *testing.T) {
	c := New(10)

	_, err := c.ChannelMembers("missing")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	_, err = c.ChannelBroadcast("missing", protocol.ServerMessage{})
	assert.ErrorIs(t, err, ErrChannelNotFound)

	c.ChannelAdd("empty")
	_, err = c.ChannelBroadcast("empty", protocol.ServerMessage{})
	assert.ErrorIs(t, err, ErrChannelEmpty)

	_, err = c.AgentRx("nope")
	assert.ErrorIs(t, err, ErrAgentNotInitiated)
}

func TestAgentSubscriptionAndBroadcast(t *testing.T) {
	c := New(10)
	connID := NewConnID()
	c.ConnAdd(connID)

	agentID := AgentID(connID, "room", "1")
	c.AgentAdd(agentID, connID, "room", "user-1")
	c.ChannelJoin("room", agentID)

	rx, err := c.ChannelRx("room")
	require.NoError(t, err)

	n, err := c.ChannelBroadcast("room", protocol.ServerMessage{Topic: "room", Event: "msg"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "msg", msg.Event)
}

func TestJoinAndLeaveRemovesEmptyNonSpecialChannel(t *testing.T) {
	c := New(10)
	connID := NewConnID()
	c.ConnAdd(connID)
	agentID := AgentID(connID, "room", "1")

	c.AgentAdd(agentID, connID, "room", "user-1")
	c.ChannelJoin("room", agentID)
	assert.True(t, c.ChannelExists("room"))

	removed, err := c.ChannelLeave("room", agentID)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, c.ChannelExists("room"))
}

func TestSpecialChannelSurvivesEmptying(t *testing.T) {
	c := New(10)
	c.ChannelAdd(protocol.TopicSystem)
	connID := NewConnID()
	c.ConnAdd(connID)
	agentID := AgentID(connID, protocol.TopicSystem, "1")
	c.AgentAdd(agentID, connID, protocol.TopicSystem, "user-1")
	c.ChannelJoin(protocol.TopicSystem, agentID)

	removed, err := c.ChannelLeave(protocol.TopicSystem, agentID)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, c.ChannelExists(protocol.TopicSystem))
}

func TestMultipleAgentsOnOneChannel(t *testing.T) {
	c := New(10)
	connID := NewConnID()
	c.ConnAdd(connID)

	a1 := AgentID(connID, "room", "1")
	a2 := AgentID(connID, "room", "2")
	c.AgentAdd(a1, connID, "room", "user-1")
	c.AgentAdd(a2, connID, "room", "user-2")
	c.ChannelJoin("room", a1)
	c.ChannelJoin("room", a2)

	members, err := c.ChannelMembers("room")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a1, a2}, members)

	// one channel subscription per agent, as each agent's channel relay holds
	for range members {
		_, err := c.ChannelRx("room")
		require.NoError(t, err)
	}

	n, err := c.ChannelBroadcast("room", protocol.ServerMessage{Event: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestConnCleanupTearsDownOwnedAgents(t *testing.T) {
	c := New(10)
	connID := NewConnID()
	c.ConnAdd(connID)

	a1 := AgentID(connID, "room", "1")
	a2 := AgentID(connID, "other", "2")
	c.AgentAdd(a1, connID, "room", "user-1")
	c.AgentAdd(a2, connID, "other", "user-1")
	c.ChannelJoin("room", a1)
	c.ChannelJoin("other", a2)

	left := c.ConnCleanup(connID)
	assert.Len(t, left, 2)
	assert.False(t, c.ChannelExists("room"))
	assert.False(t, c.ChannelExists("other"))

	_, err := c.AgentRx(a1)
	assert.ErrorIs(t, err, ErrAgentNotInitiated)
}

func TestAgentRelayCancelledOnRemoval(t *testing.T) {
	c := New(10)
	connID := NewConnID()
	c.ConnAdd(connID)
	agentID := AgentID(connID, "room", "1")
	c.AgentAdd(agentID, connID, "room", "user-1")

	cancelled := false
	require.NoError(t, c.AgentSetRelay(agentID, func() { cancelled = true }))

	_, ok := c.AgentRm(agentID)
	assert.True(t, ok)
	assert.True(t, cancelled)
}

func TestChannelRedisRunningIsIdempotent(t *testing.T) {
	c := New(10)
	c.ChannelAdd("room")

	already, err := c.ChannelSetRedisRunning("room", func() {})
	require.NoError(t, err)
	assert.False(t, already)

	already, err = c.ChannelSetRedisRunning("room", func() {})
	require.NoError(t, err)
	assert.True(t, already)
}
