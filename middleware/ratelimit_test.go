package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newRateLimitRouter(r rate.Limit, b int, userID int64) *gin.Engine {
	eng := gin.New()
	if userID != 0 {
		eng.Use(func(c *gin.Context) { c.Set(UserIDKey, userID) })
	}
	eng.Use(RateLimit(r, b))
	eng.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func hit(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", ip)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := newRateLimitRouter(0.001, 3, 0)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.1.1"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.0.1.1"))
}

func TestRateLimit_PerIP(t *testing.T) {
	r := newRateLimitRouter(0.001, 1, 0)
	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.1"))
	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.2"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.1.1.1"))
}

func TestRateLimit_UserKeyIgnoresIP(t *testing.T) {
	r := newRateLimitRouter(0.001, 1, 7)
	assert.Equal(t, http.StatusOK, hit(r, "10.2.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.2.2.2"))
}

func TestLimiterSet_Sweep(t *testing.T) {
	s := &limiterSet{entries: make(map[string]*limiterEntry), r: 1, b: 1}
	now := time.Now()
	s.get("old", now.Add(-time.Hour))
	s.get("fresh", now)

	s.sweep(now.Add(-10 * time.Minute))
	assert.NotContains(t, s.entries, "old")
	assert.Contains(t, s.entries, "fresh")
}
