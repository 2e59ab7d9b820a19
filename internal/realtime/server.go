// Package realtime wires the controller, the Redis bridge, and the token
// verifier into the running system: the frame handler, the join/leave
// procedures, the per-connection ingress/egress pair, the per-join relay
// task, and the periodic system/datetime emitter.
package realtime

import (
	"context"

	"github.com/emctoo/channel-server/internal/auth"
	"github.com/emctoo/channel-server/internal/config"
	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/protocol"
	"github.com/emctoo/channel-server/internal/redisbridge"
	"github.com/emctoo/channel-server/internal/storage"
)

var specialChannels = []string{protocol.TopicPhoenix, protocol.TopicAdmin, protocol.TopicSystem}

// Server holds everything a running connection needs to process frames.
type Server struct {
	Ctl      *controller.Controller
	Bridge   *redisbridge.Bridge
	Verifier *auth.Verifier
	Redis    *storage.Redis
	Cfg      *config.Config
}

// NewServer wires a Server around its dependencies.
func NewServer(cfg *config.Config, rdb *storage.Redis) *Server {
	ctl := controller.New(cfg.MailboxCapacity)
	return &Server{
		Ctl:      ctl,
		Bridge:   redisbridge.New(rdb, ctl),
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Redis:    rdb,
		Cfg:      cfg,
	}
}

// Bootstrap pre-creates the special channels and starts their Redis
// subscription tasks and, for "system", the periodic datetime emitter
// (spec.md §6 / §4.10, mirroring axum-server.rs's boot sequence).
func (s *Server) Bootstrap(ctx context.Context) {
	for _, name := range specialChannels {
		s.Ctl.ChannelAdd(name)
		s.Bridge.EnsureSubscription(ctx, name)
	}
	go s.runDatetimeEmitter(ctx)
}

func isSpecialChannel(name string) bool {
	for _, special := range specialChannels {
		if special == name {
			return true
		}
	}
	return false
}
