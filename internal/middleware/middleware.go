package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/emctoo/channel-server/internal/config"
	"github.com/emctoo/channel-server/internal/storage"
	"github.com/gin-gonic/gin"
)

// Logger provides request logging
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// Log after request completes
		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method

		// Minimal logging - no IPs for privacy
		log.Printf("%s %s %d %v", method, path, status, latency)
	}
}

// CORS handles Cross-Origin Resource Sharing
// In production, only allow requests from trusted origins
func CORS(allowedOrigins []string) gin.HandlerFunc {
	// Build a map for O(1) lookup
	originsMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originsMap[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// Check if origin is allowed
		if len(allowedOrigins) > 0 {
			if _, ok := originsMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			} else {
				// Origin not allowed - don't set CORS headers
				if c.Request.Method == "OPTIONS" {
					c.AbortWithStatus(http.StatusForbidden)
					return
				}
			}
		} else {
			// Development mode - allow all origins (empty allowedOrigins list)
			c.Header("Access-Control-Allow-Origin", "*")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security adds security headers
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Header("Server", "")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		c.Next()
	}
}

// RateLimitConfig configures rate limiting behavior
type RateLimitConfig struct {
	RequestsPerMinute int64 // Default: 100
	FailClosedMode    bool  // If true, count in a local in-memory limiter when Redis is unavailable; if false, let requests through
}

// Local in-memory rate limiter as fallback
var localRateLimiter = struct {
	sync.Mutex
	counts map[string]int64
	expiry map[string]time.Time
}{
	counts: make(map[string]int64),
	expiry: make(map[string]time.Time),
}

// RateLimit throttles the /token minting endpoint per requester, identified
// by an HMAC fingerprint of request headers since there's no authenticated
// identity until the WebSocket join itself (spec.md §4.3).
func RateLimit(redis *storage.Redis, rateCfg *RateLimitConfig, serverCfg *config.Config) gin.HandlerFunc {
	if rateCfg == nil {
		rateCfg = &RateLimitConfig{
			RequestsPerMinute: 100,
			FailClosedMode:    true,
		}
	}

	return func(c *gin.Context) {
		identifier := "anon:" + hashFingerprintHMAC(c, serverCfg.JWTSecret)
		key := "ratelimit:" + identifier

		ctx := c.Request.Context()
		count, err := redis.Client().Incr(ctx, key).Result()

		if err != nil {
			log.Printf("WARNING: Redis rate limit check failed: %v", err)

			if rateCfg.FailClosedMode {
				count = localRateLimitCheck(key, rateCfg.RequestsPerMinute)
			} else {
				c.Next()
				return
			}
		} else {
			if count == 1 {
				redis.Client().Expire(ctx, key, time.Minute)
			}
		}

		if count > rateCfg.RequestsPerMinute {
			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// localRateLimitCheck provides a local fallback rate limiter
func localRateLimitCheck(key string, limit int64) int64 {
	localRateLimiter.Lock()
	defer localRateLimiter.Unlock()

	now := time.Now()
	if len(localRateLimiter.counts) > 10000 {
		for k, exp := range localRateLimiter.expiry {
			if now.After(exp) {
				delete(localRateLimiter.counts, k)
				delete(localRateLimiter.expiry, k)
			}
		}
	}

	if exp, ok := localRateLimiter.expiry[key]; ok && now.After(exp) {
		delete(localRateLimiter.counts, key)
		delete(localRateLimiter.expiry, key)
	}

	count := localRateLimiter.counts[key] + 1
	localRateLimiter.counts[key] = count

	if _, ok := localRateLimiter.expiry[key]; !ok {
		localRateLimiter.expiry[key] = now.Add(time.Minute)
	}

	return count
}

// hashFingerprintHMAC creates a privacy-preserving identifier from request headers
func hashFingerprintHMAC(c *gin.Context, secret []byte) string {
	data := c.GetHeader("User-Agent") + "|" + c.GetHeader("Accept-Language") + "|" + c.GetHeader("Accept-Encoding")

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
