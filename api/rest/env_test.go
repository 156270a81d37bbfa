package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/api/rest"
	"github.com/learnbuddy/questbuddy/audit"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/config"
	"github.com/learnbuddy/questbuddy/game/badge"
	"github.com/learnbuddy/questbuddy/game/learner"
	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/game/ranking"
	"github.com/learnbuddy/questbuddy/hook"
	"github.com/learnbuddy/questbuddy/scheduler"
	"github.com/learnbuddy/questbuddy/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const adminKey = "admin-key"

var starter = []quest.Definition{
	{Title: "Fix a bug", Type: quest.TypeDebug, Difficulty: 2, XP: 120, Total: 2},
	{Title: "Focus sprint", Type: quest.TypeFocus, Difficulty: 1, XP: 50, Total: 1},
}

type env struct {
	r         *gin.Engine
	announcer *announcer
	db        *gorm.DB
	cache     cache.Cache
	audit     *audit.Service
	quests    *quest.Service
}

type announcer struct{ got []string }

func (a *announcer) Announce(_ context.Context, msg string) error {
	a.got = append(a.got, msg)
	return nil
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zap.NewNop()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	cfg := &config.Config{
		Server:   config.ServerConfig{AdminKey: adminKey},
		Security: config.SecurityConfig{JWTSecret: "test-secret", JWTTTL: time.Hour, RateLimitRPS: 1000, RateLimitBurst: 1000},
	}

	hooks := hook.NewCenter()
	auditSvc := audit.New(db, audit.Config{FlushInterval: 10 * time.Millisecond}, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	quests := quest.NewService(db, c, ps, hooks, quest.Config{Starter: starter}, logger)
	quests.RegisterHooks()
	badges := badge.NewService(db, logger)
	badges.RegisterHooks(hooks)
	learners := learner.NewService(db, hooks, badges, logger)
	learners.SetPasswordCost(bcrypt.MinCost)
	board := ranking.NewBoard(db, c, 100, logger)
	sched := scheduler.New(logger)
	sched.AddTicker("ranking_refresh", time.Hour, func(ctx context.Context) error {
		_, err := board.Refresh(ctx)
		return err
	})
	ann := &announcer{}
	t.Cleanup(sched.Stop)

	r := rest.NewRouter(cfg, c, rest.Handlers{
		Auth:    rest.NewAuthHandler(learners, c, cfg.Security, auditSvc, logger),
		Quest:   rest.NewQuestHandler(quests, auditSvc),
		User:    rest.NewUserHandler(learners),
		Ranking: rest.NewRankingHandler(board),
		Admin:   rest.NewAdminHandler(db, c, board, sched, ann, auditSvc, logger),
	}, logger)
	return &env{r: r, announcer: ann, db: db, cache: c, audit: auditSvc, quests: quests}
}

func (e *env) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) authed(token, method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, body, "Authorization", "Bearer "+token)
}

// login returns a session token and the user id.
func (e *env) login(t *testing.T, username string) (string, int64) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, resp.UserID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
