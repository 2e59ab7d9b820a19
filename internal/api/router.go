package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emctoo/channel-server/internal/config"
	"github.com/emctoo/channel-server/internal/metrics"
	"github.com/emctoo/channel-server/internal/middleware"
	"github.com/emctoo/channel-server/internal/realtime"
	"github.com/emctoo/channel-server/internal/storage"
)

// NewRouter builds the HTTP router: health/metrics, token minting, and the
// WebSocket upgrade endpoint. srv must already have Bootstrap run on it.
func NewRouter(cfg *config.Config, redis *storage.Redis, srv *realtime.Server) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.Security())

	router.GET("/healthz", healthCheck(redis))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/token", middleware.RateLimit(redis, nil, cfg), mintToken(cfg, srv))
	router.GET("/websocket", srv.HandleWebSocket)

	return router
}

func healthCheck(redis *storage.Redis) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := redis.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"redis":  "down",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"redis":  "up",
		})
	}
}

type tokenRequest struct {
	Channel string `json:"channel" binding:"required"`
}

type tokenResponse struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	ID      string `json:"id"`
	Expires string `json:"expires"`
}

// mintToken issues a join token for an existing channel (spec.md §4.3). It
// does not create the channel: non-special channels only come into being
// when the first client actually joins.
func mintToken(cfg *config.Config, srv *realtime.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channel is required"})
			return
		}

		if !isSpecialChannelName(req.Channel) && !srv.Ctl.ChannelExists(req.Channel) {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
			return
		}

		tokenString, claims, err := srv.Verifier.Mint(req.Channel, cfg.TokenDuration)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint token"})
			return
		}

		c.JSON(http.StatusOK, tokenResponse{
			Token:   tokenString,
			Channel: claims.Channel,
			ID:      claims.ID,
			Expires: time.Unix(claims.Exp, 0).UTC().Format(time.RFC3339),
		})
	}
}

func isSpecialChannelName(name string) bool {
	switch name {
	case "phoenix", "admin", "system":
		return true
	default:
		return false
	}
}
