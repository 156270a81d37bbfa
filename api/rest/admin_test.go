package rest_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/model"
	"github.com/learnbuddy/questbuddy/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) admin(method, path string, body interface{}) int {
	return e.do(method, path, body, "X-Admin-Key", adminKey).Code
}

func TestAdmin_RequiresKey(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/metrics", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		e.do(http.MethodGet, "/api/admin/metrics", nil, "X-Admin-Key", "wrong").Code)
}

func TestAdmin_Metrics(t *testing.T) {
	e := newEnv(t)
	e.login(t, "ada")
	e.login(t, "grace")

	w := e.do(http.MethodGet, "/api/admin/metrics", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Users  int64            `json:"users"`
		Quests map[string]int64 `json:"quests"`
	}
	decode(t, w, &resp)
	assert.Equal(t, int64(2), resp.Users)
	assert.Equal(t, int64(4), resp.Quests["active"])
}

func TestAdmin_SchedulerTasks(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/admin/scheduler", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Tasks []scheduler.TaskInfo `json:"tasks"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "ranking_refresh", resp.Tasks[0].Name)
}

func TestAdmin_RefreshRankingRebuildsCache(t *testing.T) {
	e := newEnv(t)
	_, id := e.login(t, "ada")
	require.NoError(t, e.db.Model(&model.User{}).Where("id = ?", id).Update("xp", 300).Error)

	w := e.do(http.MethodPost, "/api/admin/ranking/refresh", nil, "X-Admin-Key", adminKey)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Refreshed int `json:"refreshed"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Refreshed)

	ms, err := e.cache.ZRevRangeWithScores(context.Background(), quest.RankingKey, 0, -1)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, 300.0, ms[0].Score)
}

func TestAdmin_BanUser(t *testing.T) {
	e := newEnv(t)
	token, id := e.login(t, "mallory")
	qs := listQuests(t, e, token, "")
	require.Equal(t, http.StatusOK, progress(e, token, qs[1].ID, 1))

	path := fmt.Sprintf("/api/admin/users/%d/ban", id)
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, path, map[string]bool{"ban": true}))

	n, err := e.cache.ZCard(context.Background(), quest.RankingKey)
	require.NoError(t, err)
	assert.Zero(t, n)
	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "mallory", "password": "pass1234"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, http.StatusOK, e.admin(http.MethodPost, path, map[string]bool{"ban": false}))
	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodPost, "/api/admin/users/9999/ban", map[string]bool{"ban": true}))
	assert.Equal(t, http.StatusBadRequest, e.admin(http.MethodPost, "/api/admin/users/x/ban", nil))
}

func TestAdmin_Announce(t *testing.T) {
	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, "/api/admin/announce", map[string]string{"message": `say "hi"`}))
	assert.Equal(t, []string{`"say \"hi\""`}, e.announcer.got)

	assert.Equal(t, http.StatusBadRequest, e.admin(http.MethodPost, "/api/admin/announce", map[string]string{}))
}

func TestAdmin_BannedUserStaysOffRanking(t *testing.T) {
	e := newEnv(t)
	ada, _ := e.login(t, "ada")
	grace, graceID := e.login(t, "grace")
	require.Equal(t, http.StatusOK, progress(e, ada, listQuests(t, e, ada, "")[1].ID, 1))
	focus := listQuests(t, e, grace, "")[1]

	path := fmt.Sprintf("/api/admin/users/%d/ban", graceID)
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, path, map[string]bool{"ban": true}))

	assert.Equal(t, http.StatusForbidden, progress(e, grace, focus.ID, 1), "live session refused after ban")
	_, err := e.quests.ApplyProgress(context.Background(), graceID, focus.ID, 1)
	assert.ErrorIs(t, err, quest.ErrInvalidState)

	entries := topXP(t, e, ada, "")
	require.Len(t, entries, 1)
	assert.Equal(t, "ada", entries[0].Username)

	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, path, map[string]bool{"ban": false}))
	assert.Equal(t, http.StatusOK, progress(e, grace, focus.ID, 1))
	assert.Len(t, topXP(t, e, ada, ""), 2)
}
