// Package redisbridge wires channel traffic onto Redis pub/sub, mirroring
// every inbound frame out and relaying external publishes in, per spec.md
// §4.9. Two directions, two Redis topic families:
//
//   - inbound mirror: every dispatched frame is fire-and-forget published to
//     "from:<topic>:<event>" carrying the frame's payload as JSON text.
//   - outbound relay: one pattern subscription per channel on
//     "to:<channel>:*" rebroadcasts whatever arrives there into the
//     channel's mailbox, so an external publisher can push a message into a
//     live channel without a WebSocket connection of its own.
package redisbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/metrics"
	"github.com/emctoo/channel-server/internal/protocol"
	"github.com/emctoo/channel-server/internal/storage"
)

// Bridge ties a Controller to a Redis client.
type Bridge struct {
	redis *storage.Redis
	ctl   *controller.Controller
}

// New builds a Bridge.
func New(redis *storage.Redis, ctl *controller.Controller) *Bridge {
	return &Bridge{redis: redis, ctl: ctl}
}

// PublishInbound mirrors one dispatched frame onto "from:<topic>:<event>".
// Failures are logged and swallowed — the mirror is observability, not a
// delivery guarantee (spec.md Non-goals).
func (b *Bridge) PublishInbound(ctx context.Context, topic, event string, payload json.RawMessage) {
	redisTopic := fmt.Sprintf("from:%s:%s", topic, event)
	message := string(payload)
	if message == "" {
		message = "null"
	}
	if err := b.redis.Publish(ctx, redisTopic, message); err != nil {
		metrics.RedisPublishFailuresTotal.Inc()
		log.Printf("redisbridge: publish %s failed: %v", redisTopic, err)
	}
}

// PublishPresenceDiff publishes a presence_diff onto "to:<channel>:presence_diff",
// consistent with the outbound topic family so it loops back through
// EnsureSubscription the same way an external publisher's message would.
func (b *Bridge) PublishPresenceDiff(ctx context.Context, channel string, diff protocol.PresenceDiff) {
	body, err := json.Marshal(diff)
	if err != nil {
		log.Printf("redisbridge: marshal presence_diff for %s failed: %v", channel, err)
		return
	}
	redisTopic := fmt.Sprintf("to:%s:presence_diff", channel)
	if err := b.redis.Publish(ctx, redisTopic, string(body)); err != nil {
		metrics.RedisPublishFailuresTotal.Inc()
		log.Printf("redisbridge: publish %s failed: %v", redisTopic, err)
	}
}

// PublishHeartbeat publishes the heartbeat's connection id to
// "from:phoenix:heartbeat", in addition to (not instead of) the universal
// PublishInbound mirror of the same frame. Grounded on websocket.rs's
// handle_heartbeat, which does both publishes unconditionally.
func (b *Bridge) PublishHeartbeat(ctx context.Context, connID string) {
	body, err := json.Marshal(map[string]string{"conn_id": connID})
	if err != nil {
		log.Printf("redisbridge: marshal heartbeat for %s failed: %v", connID, err)
		return
	}
	if err := b.redis.Publish(ctx, "from:phoenix:heartbeat", string(body)); err != nil {
		metrics.RedisPublishFailuresTotal.Inc()
		log.Printf("redisbridge: publish heartbeat failed: %v", err)
	}
}

// EnsureSubscription launches, at most once per channel lifetime, a
// goroutine pattern-subscribed to "to:<channel>:*" that rebroadcasts
// whatever it receives into the channel's mailbox. Safe to call on every
// join; idempotence is enforced by the controller's redis-running flag.
func (b *Bridge) EnsureSubscription(ctx context.Context, channel string) {
	subCtx, cancel := context.WithCancel(ctx)
	already, err := b.ctl.ChannelSetRedisRunning(channel, cancel)
	if err != nil {
		cancel()
		return
	}
	if already {
		cancel()
		return
	}
	go b.listen(subCtx, channel)
}

func (b *Bridge) listen(ctx context.Context, channel string) {
	pattern := fmt.Sprintf("to:%s:*", channel)
	pubsub := b.redis.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			event := eventFromTopic(msg.Channel, channel)
			if event == "" {
				continue
			}
			var payload any
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				payload = msg.Payload
			}
			out := protocol.ServerMessage{
				JoinRef:  nil,
				EventRef: "",
				Topic:    channel,
				Event:    event,
				Payload:  payload,
			}
			if _, err := b.ctl.ChannelBroadcast(channel, out); err != nil {
				log.Printf("redisbridge: broadcast into %s failed: %v", channel, err)
			}
		}
	}
}

// eventFromTopic strips the "to:<channel>:" prefix off a Redis message
// channel name, returning the trailing event segment.
func eventFromTopic(redisChannel, channel string) string {
	prefix := fmt.Sprintf("to:%s:", channel)
	if !strings.HasPrefix(redisChannel, prefix) {
		return ""
	}
	return strings.TrimPrefix(redisChannel, prefix)
}
