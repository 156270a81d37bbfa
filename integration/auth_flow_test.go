package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullAuthLifecycle(t *testing.T) {
	ts := NewTestServer(t)

	username := UniqueID("auth")
	password := "testpass1234"

	// 1. First login → auto-registers with the starter quests.
	token1, userID := ts.Login(t, username, password)
	require.NotEmpty(t, token1)
	require.Greater(t, userID, int64(0))
	assert.Len(t, ts.ActiveQuests(t, token1), len(StarterQuests))

	// 2. Login again → same user, new token, no extra quests.
	token2, userID2 := ts.Login(t, username, password)
	assert.Equal(t, userID, userID2)
	assert.NotEqual(t, token1, token2)
	assert.Len(t, ts.ActiveQuests(t, token2), len(StarterQuests))

	// 3. Logout with token2 → token2 rejected, token1 still valid.
	resp := ts.PostJSON(t, "/api/auth/logout", nil, token2)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/users/me", token2)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = ts.Get(t, "/api/users/me", token1)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// 4. Wrong password.
	resp = ts.PostJSON(t, "/api/auth/login", map[string]string{"username": username, "password": "nope1234"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestSSE_RequiresLiveSession(t *testing.T) {
	ts := NewTestServer(t)
	token, _ := ts.Login(t, UniqueID("sse"), "testpass1234")

	resp := ts.PostJSON(t, "/api/auth/logout", nil, token)
	resp.Body.Close()

	resp = ts.Get(t, "/sse?token="+token, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
