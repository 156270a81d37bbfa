package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/config"
)

const UserIDKey = "user_id"

// SessionKey is the cache key marking a token as logged in.
func SessionKey(token string) string { return "session:" + token }

// BannedKey marks a user whose sessions are refused until the ban is lifted.
func BannedKey(userID int64) string { return fmt.Sprintf("banned:%d", userID) }

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// Authenticate parses token and checks that its session is still live.
func Authenticate(ctx context.Context, token string, sec config.SecurityConfig, c cache.Cache) (*Claims, error) {
	claims, err := ParseToken(token, sec.JWTSecret)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	ok, err := c.Exists(ctx, SessionKey(token))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionExpired
	}
	banned, err := c.Exists(ctx, BannedKey(claims.UserID))
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, ErrUserBanned
	}
	return claims, nil
}

// ErrSessionExpired means the token is valid but its session was revoked
// or has lapsed.
var ErrSessionExpired = errors.New("session expired")

// ErrUserBanned means the token belongs to a banned user.
var ErrUserBanned = errors.New("account banned")

// Auth validates the Bearer token and its cached session.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, ok := BearerToken(ctx)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := Authenticate(ctx.Request.Context(), token, sec, c)
		if errors.Is(err, ErrUserBanned) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, ErrSessionExpired) {
				msg = err.Error()
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		ctx.Set(UserIDKey, claims.UserID)
		ctx.Next()
	}
}

// GetUserID returns the authenticated user id, or 0 outside Auth.
func GetUserID(c *gin.Context) int64 {
	if v, exists := c.Get(UserIDKey); exists {
		return v.(int64)
	}
	return 0
}

// AdminAuth checks the X-Admin-Key header. An empty adminKey disables the
// routes it guards (503).
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		if c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
