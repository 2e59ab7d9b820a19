package realtime

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/emctoo/channel-server/internal/controller"
	"github.com/emctoo/channel-server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// HandleWebSocket upgrades the HTTP request and runs the connection's
// ingress/egress task pair until either side fails, at which point the
// connection and every agent it owns are torn down (spec.md §4.4).
func (s *Server) HandleWebSocket(c *gin.Context) {
	userToken := c.Query("userToken")
	if vsn := c.Query("vsn"); vsn != "" {
		log.Printf("websocket: client requested protocol vsn=%s", vsn)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}

	connID := controller.NewConnID()
	s.Ctl.ConnAdd(connID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ingress and egress race; whichever returns first aborts the other
	// immediately by closing conn (unblocking a pending ReadMessage/Write)
	// and cancelling ctx (unblocking egress's select), mirroring the
	// tokio::select! + .abort() pattern the original's connection tasks use.
	var abortOnce sync.Once
	abort := func() {
		abortOnce.Do(func() {
			cancel()
			conn.Close()
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.ingress(ctx, conn, connID, userToken)
		abort()
	}()
	go func() {
		defer wg.Done()
		s.egress(ctx, conn, connID)
		abort()
	}()
	wg.Wait()

	s.cleanupConn(connID)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.Cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.Cfg.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// ingress reads frames off the WebSocket and dispatches them until the
// connection closes or a read fails.
func (s *Server) ingress(ctx context.Context, conn *websocket.Conn, connID, userToken string) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.HandleFrame(ctx, connID, userToken, raw)
	}
}

// egress subscribes to the connection's mailbox and writes every message it
// receives to the WebSocket, interleaved with periodic pings.
func (s *Server) egress(ctx context.Context, conn *websocket.Conn, connID string) {
	rx, err := s.Ctl.ConnRx(connID)
	if err != nil {
		log.Printf("websocket: conn %s rx unavailable: %v", connID, err)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	type recvResult struct {
		msg protocol.ServerMessage
		err error
	}
	recv := make(chan recvResult)

	go func() {
		for {
			msg, err := rx.Recv(ctx)
			select {
			case recv <- recvResult{msg, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-recv:
			if item.err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(item.msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// cleanupConn tears down a closed connection's agents and publishes a
// presence_diff leave for each one that had registered an external id.
func (s *Server) cleanupConn(connID string) {
	for _, left := range s.Ctl.ConnCleanup(connID) {
		if left.ExternalID == "" {
			continue
		}
		s.Bridge.PublishPresenceDiff(context.Background(), left.Channel, singlePresenceDiff(left.AgentID, left.ExternalID, false))
	}
}
