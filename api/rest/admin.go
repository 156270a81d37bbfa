package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/audit"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/game/ranking"
	mw "github.com/learnbuddy/questbuddy/middleware"
	"github.com/learnbuddy/questbuddy/model"
	"github.com/learnbuddy/questbuddy/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Announcer broadcasts a message to connected clients.
type Announcer interface {
	Announce(ctx context.Context, message string) error
}

// AdminHandler handles admin-only endpoints. Routes are guarded by
// middleware.AdminAuth and middleware.IPWhitelist.
type AdminHandler struct {
	db       *gorm.DB
	cache    cache.Cache
	board    *ranking.Board
	sched    *scheduler.Scheduler
	announce Announcer
	audit    *audit.Service
	logger   *zap.Logger
}

// NewAdminHandler creates an AdminHandler. announce and auditSvc may be nil.
func NewAdminHandler(db *gorm.DB, c cache.Cache, board *ranking.Board, sched *scheduler.Scheduler,
	announce Announcer, auditSvc *audit.Service, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{db: db, cache: c, board: board, sched: sched, announce: announce, audit: auditSvc, logger: logger}
}

// Metrics handles GET /api/admin/metrics.
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	var users int64
	if err := h.db.WithContext(ctx).Model(&model.User{}).Count(&users).Error; err != nil {
		fail(c, err)
		return
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := h.db.WithContext(ctx).Model(&model.Quest{}).
		Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		fail(c, err)
		return
	}
	quests := make(map[string]int64, len(rows))
	for _, r := range rows {
		quests[r.Status] = r.Count
	}
	ranked, _ := h.cache.ZCard(ctx, quest.RankingKey)

	c.JSON(http.StatusOK, gin.H{
		"users":           users,
		"quests":          quests,
		"ranked_users":    ranked,
		"scheduler_tasks": h.sched.ListTickers(),
	})
}

// ListSchedulerTasks handles GET /api/admin/scheduler.
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RefreshRanking handles POST /api/admin/ranking/refresh.
func (h *AdminHandler) RefreshRanking(c *gin.Context) {
	start := time.Now()
	n, err := h.board.Refresh(c.Request.Context())
	if h.audit != nil {
		h.audit.Log(audit.Entry{
			TraceID:  mw.GetTraceID(c),
			Action:   audit.ActionRankingReset,
			Response: gin.H{"refreshed": n},
			Err:      err,
			IP:       c.ClientIP(),
			Duration: time.Since(start),
		})
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// BanUser handles POST /api/admin/users/:id/ban {"ban": bool}. A banned
// user leaves the leaderboard and their open sessions are refused.
func (h *AdminHandler) BanUser(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := model.UserStatusNormal
	if req.Ban {
		status = model.UserStatusBanned
	}
	res := h.db.WithContext(c.Request.Context()).Model(&model.User{}).Where("id = ?", userID).Update("status", status)
	if res.Error != nil {
		fail(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	ctx := c.Request.Context()
	if req.Ban {
		err = h.cache.Set(ctx, mw.BannedKey(userID), "1", 0)
		if err == nil {
			err = h.cache.ZRem(ctx, quest.RankingKey, strconv.FormatInt(userID, 10))
		}
	} else {
		err = h.cache.Del(ctx, mw.BannedKey(userID))
	}
	if err != nil {
		fail(c, err)
		return
	}
	h.logger.Info("admin changed user status", zap.Int64("user_id", userID), zap.Bool("ban", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// Announce handles POST /api/admin/announce {"message": "..."}.
func (h *AdminHandler) Announce(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if h.announce == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "announcements unavailable"})
		return
	}
	payload, _ := json.Marshal(req.Message)
	if err := h.announce.Announce(c.Request.Context(), string(payload)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
