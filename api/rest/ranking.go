package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/game/ranking"
)

const defaultRankingLimit = 20

// RankingHandler serves the XP leaderboard.
type RankingHandler struct {
	board *ranking.Board
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(board *ranking.Board) *RankingHandler {
	return &RankingHandler{board: board}
}

// TopXP handles GET /api/ranking/xp?limit=20.
func (h *RankingHandler) TopXP(c *gin.Context) {
	limit := defaultRankingLimit
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= h.board.Size() {
		limit = l
	}
	entries, err := h.board.Top(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}
