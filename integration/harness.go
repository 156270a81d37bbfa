package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/api/rest"
	"github.com/learnbuddy/questbuddy/api/sse"
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

const AdminKey = "integration-admin-key"

// StarterQuests are given to every user registered on a TestServer.
var StarterQuests = []quest.Definition{
	{Title: "Write a unit test", Type: quest.TypeTest, Difficulty: 2, XP: 100, Total: 3},
	{Title: "Deep focus", Type: quest.TypeFocus, Difficulty: 1, XP: 60, Total: 1},
}

// TestServer wraps a real HTTP server with every subsystem wired together
// the way the serve command wires them.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Quests *quest.Service
	Board  *ranking.Board
	Audit  *audit.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	cfg := &config.Config{
		Server: config.ServerConfig{AdminKey: AdminKey},
		Security: config.SecurityConfig{
			JWTSecret:      "integration-test-secret",
			JWTTTL:         72 * time.Hour,
			RateLimitRPS:   1000,
			RateLimitBurst: 2000,
		},
	}

	// ---- Services ----
	hooks := hook.NewCenter()
	auditSvc := audit.New(db, audit.Config{FlushInterval: 10 * time.Millisecond}, logger)
	questSvc := quest.NewService(db, c, pubsub, hooks, quest.Config{Starter: StarterQuests}, logger)
	questSvc.RegisterHooks()
	badgeSvc := badge.NewService(db, logger)
	badgeSvc.RegisterHooks(hooks)
	learners := learner.NewService(db, hooks, badgeSvc, logger)
	learners.SetPasswordCost(bcrypt.MinCost)
	board := ranking.NewBoard(db, c, 100, logger)

	sched := scheduler.New(logger)
	sched.AddTicker("ranking_refresh", time.Hour, func(ctx context.Context) error {
		_, err := board.Refresh(ctx)
		return err
	})

	// ---- HTTP ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r := rest.NewRouter(cfg, c, rest.Handlers{
		Auth:    rest.NewAuthHandler(learners, c, cfg.Security, auditSvc, logger),
		Quest:   rest.NewQuestHandler(questSvc, auditSvc),
		User:    rest.NewUserHandler(learners),
		Ranking: rest.NewRankingHandler(board),
		Admin:   rest.NewAdminHandler(db, c, board, sched, sseH, auditSvc, logger),
		SSE:     sseH.ServeSSE,
	}, logger)

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Quests: questSvc,
		Board:  board,
		Audit:  auditSvc,
		Server: server,
		URL:    server.URL,
		Sec:    cfg.Security,
	}
	t.Cleanup(func() {
		server.Close()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})
	return ts
}

// --- HTTP helpers ---

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, bearer(token))
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, bearer(token))
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.do(t, method, path, body, map[string]string{"X-Admin-Key": AdminKey})
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Auth helpers ---

// Login logs in (auto-registers on first call) and returns the token and user ID.
func (ts *TestServer) Login(t *testing.T, username, password string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Token  string `json:"token"`
		UserID int64  `json:"user_id"`
	}
	ReadJSON(t, resp, &result)
	return result.Token, result.UserID
}

// --- Quest helpers ---

// ActiveQuests lists the caller's active quests.
func (ts *TestServer) ActiveQuests(t *testing.T, token string) []quest.Quest {
	t.Helper()
	resp := ts.Get(t, "/api/quests", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result struct {
		Quests []quest.Quest `json:"quests"`
	}
	ReadJSON(t, resp, &result)
	return result.Quests
}

// Progress posts a delta and returns the response.
func (ts *TestServer) Progress(t *testing.T, token string, questID int64, delta interface{}) *http.Response {
	t.Helper()
	return ts.PostJSON(t, fmt.Sprintf("/api/quests/%d/progress", questID), map[string]interface{}{"delta": delta}, token)
}

// --- SSE client ---

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// SSEClient reads server-sent events in a background goroutine.
type SSEClient struct {
	t      *testing.T
	cancel context.CancelFunc
	events chan Event
}

// ConnectSSE opens the event stream with the given session token and waits
// for the connected event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "SSE connect failed")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{t: t, cancel: cancel, events: make(chan Event, 64)}
	go sc.readLoop(resp.Body)
	t.Cleanup(sc.Close)

	sc.RecvType("connected", 2*time.Second)
	return sc
}

func (sc *SSEClient) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer close(sc.events)
	scanner := bufio.NewScanner(body)
	var ev Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			ev.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		case line == "" && ev.Name != "":
			sc.events <- ev
			ev = Event{}
		}
	}
}

// RecvType reads events until one named name arrives (within timeout).
func (sc *SSEClient) RecvType(name string, timeout time.Duration) Event {
	sc.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-sc.events:
			if !ok {
				sc.t.Fatalf("SSE stream closed while waiting for %q", name)
			}
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			sc.t.Fatalf("timed out waiting for event %q", name)
			return Event{}
		}
	}
}

// Close ends the stream.
func (sc *SSEClient) Close() { sc.cancel() }

var testCounter uint64

// UniqueID returns a short name that is unique within the test binary.
func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
