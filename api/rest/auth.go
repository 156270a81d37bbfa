package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/audit"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/config"
	"github.com/learnbuddy/questbuddy/game/learner"
	mw "github.com/learnbuddy/questbuddy/middleware"
	"go.uber.org/zap"
)

// AuthHandler handles login and session endpoints.
type AuthHandler struct {
	learners *learner.Service
	cache    cache.Cache
	sec      config.SecurityConfig
	audit    *audit.Service
	logger   *zap.Logger
}

// NewAuthHandler creates an AuthHandler. auditSvc may be nil.
func NewAuthHandler(learners *learner.Service, c cache.Cache, sec config.SecurityConfig, auditSvc *audit.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{learners: learners, cache: c, sec: sec, audit: auditSvc, logger: logger}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=4,max=64"`
}

// Login handles POST /api/auth/login. Unknown usernames are registered.
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, created, err := h.learners.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if h.audit != nil {
		e := audit.Entry{
			TraceID:  mw.GetTraceID(c),
			Action:   audit.ActionLogin,
			Request:  gin.H{"username": req.Username},
			Err:      err,
			IP:       c.ClientIP(),
			Duration: time.Since(start),
		}
		if user != nil {
			e.UserID = user.ID
		}
		h.audit.Log(e)
	}
	if err != nil {
		fail(c, err)
		return
	}

	token, err := h.issue(c.Request.Context(), user.ID, user.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": user.ID,
		"created": created,
	})
}

func (h *AuthHandler) issue(ctx context.Context, userID int64, username string) (string, error) {
	token, err := mw.GenerateToken(userID, username, h.sec.JWTSecret, h.sec.JWTTTL)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKey(token), strconv.FormatInt(userID, 10), h.sec.JWTTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := mw.BearerToken(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Del(ctx, mw.SessionKey(token)); err != nil {
		h.logger.Warn("logout: session delete failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh: the old session ends and a new
// token is issued.
func (h *AuthHandler) Refresh(c *gin.Context) {
	old, _ := mw.BearerToken(c)
	claims, err := mw.ParseToken(old, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(old))

	token, err := h.issue(c.Request.Context(), claims.UserID, claims.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
