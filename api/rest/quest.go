package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/audit"
	"github.com/learnbuddy/questbuddy/game/quest"
	mw "github.com/learnbuddy/questbuddy/middleware"
)

// QuestHandler exposes a learner's quests.
type QuestHandler struct {
	svc   *quest.Service
	audit *audit.Service
}

// NewQuestHandler creates a QuestHandler. auditSvc may be nil.
func NewQuestHandler(svc *quest.Service, auditSvc *audit.Service) *QuestHandler {
	return &QuestHandler{svc: svc, audit: auditSvc}
}

// List handles GET /api/quests?status=active.
func (h *QuestHandler) List(c *gin.Context) {
	status := quest.Status(c.DefaultQuery("status", string(quest.StatusActive)))
	qs, err := h.svc.List(c.Request.Context(), mw.GetUserID(c), status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": qs, "count": len(qs)})
}

type progressRequest struct {
	// Decoded as a float so fractional input reaches the integer check.
	Delta *float64 `json:"delta" binding:"required"`
}

// Progress handles POST /api/quests/:id/progress {"delta": n}.
func (h *QuestHandler) Progress(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)
	questID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid quest id")
		return
	}
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	out, err := func() (quest.Outcome, error) {
		delta, err := quest.DeltaFromFloat(*req.Delta)
		if err != nil {
			return quest.Outcome{}, err
		}
		return h.svc.ApplyProgress(c.Request.Context(), userID, questID, delta)
	}()

	if h.audit != nil {
		e := audit.Entry{
			TraceID:  mw.GetTraceID(c),
			UserID:   userID,
			QuestID:  questID,
			Action:   audit.ActionQuestProgress,
			Request:  gin.H{"delta": *req.Delta},
			Err:      err,
			IP:       c.ClientIP(),
			Duration: time.Since(start),
		}
		if err == nil {
			e.Response = gin.H{"progress": out.Quest.Progress, "status": out.Quest.Status, "xp": out.CreditedXP()}
		}
		h.audit.Log(e)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Summary handles GET /api/quests/summary.
func (h *QuestHandler) Summary(c *gin.Context) {
	sum, err := h.svc.Summary(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Generate handles POST /api/quests/generate.
func (h *QuestHandler) Generate(c *gin.Context) {
	start := time.Now()
	userID := mw.GetUserID(c)
	q, err := h.svc.Generate(c.Request.Context(), userID)
	if h.audit != nil {
		e := audit.Entry{
			TraceID:  mw.GetTraceID(c),
			UserID:   userID,
			QuestID:  q.ID,
			Action:   audit.ActionQuestGenerate,
			Err:      err,
			IP:       c.ClientIP(),
			Duration: time.Since(start),
		}
		h.audit.Log(e)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}
