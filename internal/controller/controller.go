// Package controller holds the three registries (connections, agents,
// channels) that make up the multiplexing core, and the locking discipline
// around them: a single outer mutex serializes every registry mutation,
// with a per-channel nested lock for the member list, acquired only while
// already holding the outer lock (controller -> channel-members, never the
// reverse). No lock is ever held across a mailbox send — Bus.Send is a
// non-blocking, in-memory fan-out, so that's cheap to do anyway, but the
// ordering is kept explicit because it's the invariant the rest of the
// system leans on.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/emctoo/channel-server/internal/mailbox"
	"github.com/emctoo/channel-server/internal/metrics"
	"github.com/emctoo/channel-server/internal/protocol"
	"github.com/google/uuid"
)

var specialChannels = map[string]bool{
	protocol.TopicPhoenix: true,
	protocol.TopicAdmin:   true,
	protocol.TopicSystem:  true,
}

type connEntry struct {
	id  string
	bus *mailbox.Bus[protocol.ServerMessage]
}

type agentEntry struct {
	id          string
	connID      string
	channel     string
	externalID  string
	bus         *mailbox.Bus[protocol.ServerMessage]
	relayCancel context.CancelFunc
}

type channelEntry struct {
	name    string
	special bool
	bus     *mailbox.Bus[protocol.ServerMessage]

	membersMu    sync.Mutex
	members      []string // agent ids, join order
	redisRunning bool
	redisCancel  context.CancelFunc
}

// Controller is the process-wide registry facade. It is safe for
// concurrent use; construct one with New and share it.
type Controller struct {
	mu       sync.Mutex
	capacity int

	conns    map[string]*connEntry
	agents   map[string]*agentEntry
	channels map[string]*channelEntry
}

// New creates a Controller whose mailboxes buffer up to capacity messages.
func New(capacity int) *Controller {
	if capacity < 1 {
		capacity = 1
	}
	return &Controller{
		capacity: capacity,
		conns:    make(map[string]*connEntry),
		agents:   make(map[string]*agentEntry),
		channels: make(map[string]*channelEntry),
	}
}

// NewConnID mints an opaque connection id.
func NewConnID() string { return uuid.New().String() }

// AgentID builds the composite agent identity the rest of the system
// treats as opaque: "<connID>:<channel>:<joinRef>".
func AgentID(connID, channel, joinRef string) string {
	return fmt.Sprintf("%s:%s:%s", connID, channel, joinRef)
}

func parseAgentID(id string) (connID string, ok bool) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

// --- connections ---

// ConnAdd registers a new connection mailbox.
func (c *Controller) ConnAdd(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id] = &connEntry{id: id, bus: mailbox.New[protocol.ServerMessage](c.capacity)}
	metrics.ConnectionsActive.Inc()
}

// ConnRx subscribes to a connection's mailbox.
func (c *Controller) ConnRx(id string) (*mailbox.Receiver[protocol.ServerMessage], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ce, ok := c.conns[id]
	if !ok {
		return nil, ErrConnNotFound
	}
	return ce.bus.Subscribe(), nil
}

// ConnSend delivers msg to a connection's mailbox, returning the number of
// subscribers reached (0 or 1 in practice, but mirrors ChannelBroadcast's
// shape).
func (c *Controller) ConnSend(id string, msg protocol.ServerMessage) (int, error) {
	c.mu.Lock()
	ce, ok := c.conns[id]
	c.mu.Unlock()
	if !ok {
		return 0, ErrConnNotFound
	}
	n, err := ce.bus.Send(msg)
	if err != nil {
		return 0, ErrMessageSendError
	}
	return n, nil
}

// LeftAgent describes one agent torn down by ConnCleanup, enough for the
// caller to emit a presence_diff leave and decide whether a channel just
// emptied out.
type LeftAgent struct {
	AgentID        string
	Channel        string
	ExternalID     string
	ChannelRemoved bool
}

// ConnCleanup removes a connection's mailbox and every agent it owns,
// cancelling their relay tasks and leaving their channels. It returns one
// LeftAgent per agent torn down.
func (c *Controller) ConnCleanup(id string) []LeftAgent {
	c.mu.Lock()
	if _, ok := c.conns[id]; ok {
		delete(c.conns, id)
		metrics.ConnectionsActive.Dec()
	}
	var owned []string
	for agentID, ae := range c.agents {
		connID, ok := parseAgentID(agentID)
		if ok && connID == id {
			owned = append(owned, ae.id)
		}
	}
	c.mu.Unlock()

	var left []LeftAgent
	for _, agentID := range owned {
		externalID, channel, ok := c.agentRmLocked(agentID)
		if !ok {
			continue
		}
		removed := false
		if _, err := c.channelLeave(channel, agentID); err == nil {
			removed = c.maybeRemoveEmptyChannel(channel)
		}
		left = append(left, LeftAgent{AgentID: agentID, Channel: channel, ExternalID: externalID, ChannelRemoved: removed})
	}
	return left
}

// --- agents ---

// AgentAdd registers a new agent mailbox under id, owned by channel and
// tagged with the caller-supplied external id.
func (c *Controller) AgentAdd(id, connID, channel, externalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[id] = &agentEntry{
		id:         id,
		connID:     connID,
		channel:    channel,
		externalID: externalID,
		bus:        mailbox.New[protocol.ServerMessage](c.capacity),
	}
	metrics.AgentsActive.Inc()
}

// AgentRx subscribes to an agent's mailbox.
func (c *Controller) AgentRx(id string) (*mailbox.Receiver[protocol.ServerMessage], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ae, ok := c.agents[id]
	if !ok {
		return nil, ErrAgentNotInitiated
	}
	return ae.bus.Subscribe(), nil
}

// AgentSetRelay records the cancel function for the agent's relay goroutine
// so AgentRm / ConnCleanup can tear it down as part of removing the agent.
func (c *Controller) AgentSetRelay(id string, cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ae, ok := c.agents[id]
	if !ok {
		return ErrAgentNotInitiated
	}
	ae.relayCancel = cancel
	return nil
}

// AgentRm removes an agent from the registry and cancels its relay task,
// returning its external id. It does not touch channel membership; callers
// that also need to leave the channel call ChannelLeave separately (see
// ConnCleanup for the combined sequence spec.md §4.8 describes).
func (c *Controller) AgentRm(id string) (externalID string, ok bool) {
	externalID, _, ok = c.agentRmLocked(id)
	return externalID, ok
}

func (c *Controller) agentRmLocked(id string) (externalID, channel string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ae, found := c.agents[id]
	if !found {
		return "", "", false
	}
	delete(c.agents, id)
	metrics.AgentsActive.Dec()
	if ae.relayCancel != nil {
		ae.relayCancel()
	}
	ae.bus.Close()
	return ae.externalID, ae.channel, true
}

// AgentSend delivers msg directly into an agent's own mailbox (used by the
// channel->agent relay, spec.md §2's "channel bus -> agent mailbox" hop).
func (c *Controller) AgentSend(id string, msg protocol.ServerMessage) (int, error) {
	c.mu.Lock()
	ae, ok := c.agents[id]
	c.mu.Unlock()
	if !ok {
		return 0, ErrAgentNotInitiated
	}
	n, err := ae.bus.Send(msg)
	if err != nil {
		return 0, ErrMessageSendError
	}
	return n, nil
}

// AgentExternalID looks up the external id tagged to an agent.
func (c *Controller) AgentExternalID(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ae, ok := c.agents[id]
	if !ok {
		return "", false
	}
	return ae.externalID, true
}

// --- channels ---

// ChannelAdd creates a channel if it doesn't already exist. Idempotent.
// Channels named phoenix/admin/system are marked special: ChannelLeave and
// ConnCleanup never remove them when their member list empties. ChannelRm
// removes whatever channel it is given, special or not.
func (c *Controller) ChannelAdd(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[name]; ok {
		return
	}
	c.channels[name] = &channelEntry{
		name:    name,
		special: specialChannels[name],
		bus:     mailbox.New[protocol.ServerMessage](c.capacity),
	}
	metrics.ChannelsActive.Inc()
}

// ChannelExists reports whether name is currently registered.
func (c *Controller) ChannelExists(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[name]
	return ok
}

// ChannelNames lists every currently registered channel.
func (c *Controller) ChannelNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	return names
}

// ChannelRm removes a channel and cancels its Redis subscription task, if
// any. No-op if the channel doesn't exist.
func (c *Controller) ChannelRm(name string) {
	c.mu.Lock()
	ce, ok := c.channels[name]
	if ok {
		delete(c.channels, name)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	metrics.ChannelsActive.Dec()
	ce.membersMu.Lock()
	if ce.redisCancel != nil {
		ce.redisCancel()
	}
	ce.membersMu.Unlock()
	ce.bus.Close()
}

func (c *Controller) maybeRemoveEmptyChannel(name string) bool {
	c.mu.Lock()
	ce, ok := c.channels[name]
	c.mu.Unlock()
	if !ok {
		return false
	}
	ce.membersMu.Lock()
	empty := len(ce.members) == 0 && !ce.special
	ce.membersMu.Unlock()
	if empty {
		c.ChannelRm(name)
		return true
	}
	return false
}

// ChannelJoin adds an agent to a channel's member list, creating the
// channel first if it doesn't exist (lazy creation, spec.md §4.7 step 1).
func (c *Controller) ChannelJoin(name, agentID string) {
	c.ChannelAdd(name)
	c.mu.Lock()
	ce := c.channels[name]
	c.mu.Unlock()

	ce.membersMu.Lock()
	defer ce.membersMu.Unlock()
	for _, existing := range ce.members {
		if existing == agentID {
			return
		}
	}
	ce.members = append(ce.members, agentID)
}

func (c *Controller) channelLeave(name, agentID string) (remaining int, err error) {
	c.mu.Lock()
	ce, ok := c.channels[name]
	c.mu.Unlock()
	if !ok {
		return 0, ErrChannelNotFound
	}
	ce.membersMu.Lock()
	defer ce.membersMu.Unlock()
	for i, existing := range ce.members {
		if existing == agentID {
			ce.members = append(ce.members[:i], ce.members[i+1:]...)
			break
		}
	}
	return len(ce.members), nil
}

// ChannelLeave removes an agent from a channel's member list and, if that
// leaves a non-special channel empty, removes the channel too (and its
// Redis subscription task with it). Returns whether the channel was
// removed.
func (c *Controller) ChannelLeave(name, agentID string) (channelRemoved bool, err error) {
	if _, err := c.channelLeave(name, agentID); err != nil {
		return false, err
	}
	return c.maybeRemoveEmptyChannel(name), nil
}

// ChannelMembers lists the agent ids currently joined to name, in join
// order.
func (c *Controller) ChannelMembers(name string) ([]string, error) {
	c.mu.Lock()
	ce, ok := c.channels[name]
	c.mu.Unlock()
	if !ok {
		return nil, ErrChannelNotFound
	}
	ce.membersMu.Lock()
	defer ce.membersMu.Unlock()
	out := make([]string, len(ce.members))
	copy(out, ce.members)
	return out, nil
}

// ChannelBroadcast sends msg to every current subscriber of a channel's
// mailbox bus and returns how many were reached. It returns ErrChannelEmpty
// when nothing is subscribed to the bus, whatever the member list holds.
func (c *Controller) ChannelBroadcast(name string, msg protocol.ServerMessage) (int, error) {
	c.mu.Lock()
	ce, ok := c.channels[name]
	c.mu.Unlock()
	if !ok {
		metrics.BroadcastsTotal.WithLabelValues("error").Inc()
		return 0, ErrChannelNotFound
	}
	if ce.bus.SubscriberCount() == 0 {
		metrics.BroadcastsTotal.WithLabelValues("empty").Inc()
		return 0, ErrChannelEmpty
	}
	n, err := ce.bus.Send(msg)
	if err != nil {
		metrics.BroadcastsTotal.WithLabelValues("error").Inc()
		return 0, ErrMessageSendError
	}
	metrics.BroadcastsTotal.WithLabelValues("ok").Inc()
	return n, nil
}

// ChannelRx subscribes to a channel's mailbox bus directly. Used by each
// joined agent's channel->agent relay task, and by tests that want to
// observe a channel's traffic without going through an agent at all.
func (c *Controller) ChannelRx(name string) (*mailbox.Receiver[protocol.ServerMessage], error) {
	c.mu.Lock()
	ce, ok := c.channels[name]
	c.mu.Unlock()
	if !ok {
		return nil, ErrChannelNotFound
	}
	return ce.bus.Subscribe(), nil
}

// ChannelSetRedisRunning records whether a Redis PSubscribe task is already
// running for name, returning the prior value so callers can launch the
// task at most once per channel lifetime (spec.md §4.9's idempotent launch
// requirement).
func (c *Controller) ChannelSetRedisRunning(name string, cancel context.CancelFunc) (already bool, err error) {
	c.mu.Lock()
	ce, ok := c.channels[name]
	c.mu.Unlock()
	if !ok {
		return false, ErrChannelNotFound
	}
	ce.membersMu.Lock()
	defer ce.membersMu.Unlock()
	if ce.redisRunning {
		return true, nil
	}
	ce.redisRunning = true
	ce.redisCancel = cancel
	return false, nil
}
