package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/config"
	mw "github.com/learnbuddy/questbuddy/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handlers groups everything NewRouter mounts.
type Handlers struct {
	Auth    *AuthHandler
	Quest   *QuestHandler
	User    *UserHandler
	Ranking *RankingHandler
	Admin   *AdminHandler
	SSE     gin.HandlerFunc
}

// NewRouter builds the HTTP API.
func NewRouter(cfg *config.Config, c cache.Cache, h Handlers, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.SSE != nil {
		r.GET("/sse", h.SSE)
	}

	limit := mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst)
	auth := mw.Auth(cfg.Security, c)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", limit, h.Auth.Login)
		authG.POST("/logout", auth, h.Auth.Logout)
		authG.POST("/refresh", auth, h.Auth.Refresh)

		questsG := api.Group("/quests", auth, limit)
		questsG.GET("", h.Quest.List)
		questsG.GET("/summary", h.Quest.Summary)
		questsG.POST("/generate", h.Quest.Generate)
		questsG.POST("/:id/progress", h.Quest.Progress)

		api.GET("/users/me", auth, limit, h.User.Me)
		api.GET("/ranking/xp", auth, limit, h.Ranking.TopXP)

		adminG := api.Group("/admin", mw.IPWhitelist(cfg.Server.AdminIPs), mw.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", h.Admin.Metrics)
		adminG.GET("/scheduler", h.Admin.ListSchedulerTasks)
		adminG.POST("/ranking/refresh", h.Admin.RefreshRanking)
		adminG.POST("/users/:id/ban", h.Admin.BanUser)
		adminG.POST("/announce", h.Admin.Announce)
	}
	return r
}
