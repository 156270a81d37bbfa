package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/game/learner"
	mw "github.com/learnbuddy/questbuddy/middleware"
)

// UserHandler serves the caller's profile.
type UserHandler struct {
	learners *learner.Service
}

func NewUserHandler(learners *learner.Service) *UserHandler {
	return &UserHandler{learners: learners}
}

// Me handles GET /api/users/me.
func (h *UserHandler) Me(c *gin.Context) {
	p, err := h.learners.Profile(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
