package realtime

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/protocol"
)

type datetimeResponse struct {
	Datetime string `json:"datetime"`
	Counter  uint32 `json:"counter"`
}

// runDatetimeEmitter broadcasts a timestamp on the system channel once a
// second, after a ten second warm-up (spec.md §4.10).
func (s *Server) runDatetimeEmitter(ctx context.Context) {
	select {
	case <-time.After(10 * time.Second):
	case <-ctx.Done():
		return
	}

	var counter uint32
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		now := time.Now()
		msg := protocol.ServerMessage{
			JoinRef:  nil,
			EventRef: strconv.FormatUint(uint64(counter), 10),
			Topic:    protocol.TopicSystem,
			Event:    "datetime",
			Payload: protocol.OkReply(datetimeResponse{
				Datetime: now.Format("2006-01-02T15:04:05.000Z07:00"),
				Counter:  counter,
			}),
		}

		_, err := s.Ctl.ChannelBroadcast(protocol.TopicSystem, msg)
		if err != nil && !errors.Is(err, controller.ErrChannelEmpty) {
			log.Printf("datetime emitter: broadcast failed: %v", err)
		}

		counter++

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
