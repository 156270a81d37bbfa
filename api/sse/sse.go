package sse

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/config"
	"github.com/learnbuddy/questbuddy/game/quest"
	mw "github.com/learnbuddy/questbuddy/middleware"
	"go.uber.org/zap"
)

const AnnounceChannel = "announce"

// Handler streams quest updates and announcements as server-sent events.
type Handler struct {
	pubsub    cache.PubSub
	c         cache.Cache
	sec       config.SecurityConfig
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates an SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, keepalive: 30 * time.Second, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>. Browsers' EventSource cannot set
// headers, so the session token travels in the query string.
func (h *Handler) ServeSSE(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.Authenticate(c.Request.Context(), token, h.sec, h.c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()
	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, quest.UserChannel(claims.UserID), AnnounceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Int64("user_id", claims.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "subscribe failed"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprint(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "quest_update"
			if msg.Channel == AnnounceChannel {
				event = "announce"
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Logout and bans take effect on open streams at the next tick.
			if _, err := mw.Authenticate(c.Request.Context(), token, h.sec, h.c); err != nil {
				h.logger.Info("sse session ended", zap.Int64("user_id", claims.UserID), zap.Error(err))
				fmt.Fprint(c.Writer, "event: session_ended\ndata: {}\n\n")
				c.Writer.Flush()
				return
			}
			fmt.Fprint(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes a message to every connected client.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, AnnounceChannel, message)
}
