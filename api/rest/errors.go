package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/game/learner"
	"github.com/learnbuddy/questbuddy/game/quest"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, quest.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quest.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, quest.ErrInvalidQuest):
		return http.StatusBadRequest
	case errors.Is(err, learner.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, learner.ErrBanned):
		return http.StatusForbidden
	case errors.Is(err, learner.ErrUsernameTaken):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes {"error": ...} for err. Internal errors are recorded on the
// context for the request logger and not echoed to the client.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
