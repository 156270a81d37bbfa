package rest_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/learnbuddy/questbuddy/audit"
	"github.com/learnbuddy/questbuddy/game/learner"
	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type questList struct {
	Quests []quest.Quest `json:"quests"`
	Count  int           `json:"count"`
}

func listQuests(t *testing.T, e *env, token, status string) []quest.Quest {
	t.Helper()
	path := "/api/quests"
	if status != "" {
		path += "?status=" + status
	}
	w := e.authed(token, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp questList
	decode(t, w, &resp)
	return resp.Quests
}

func progress(e *env, token string, id int64, delta interface{}) int {
	return e.authed(token, http.MethodPost, fmt.Sprintf("/api/quests/%d/progress", id), map[string]interface{}{"delta": delta}).Code
}

func TestQuests_RequireAuth(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/quests", nil).Code)
}

func TestQuests_ListDefaultsToActive(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "ada")

	qs := listQuests(t, e, token, "")
	require.Len(t, qs, 2)
	assert.Equal(t, "Fix a bug", qs[0].Title)
	assert.Empty(t, listQuests(t, e, token, "completed"))

	w := e.authed(token, http.MethodGet, "/api/quests?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuests_ProgressToCompletion(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "ada")
	q := listQuests(t, e, token, "")[0]

	w := e.authed(token, http.MethodPost, fmt.Sprintf("/api/quests/%d/progress", q.ID), map[string]int{"delta": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out quest.Outcome
	decode(t, w, &out)
	assert.Equal(t, quest.StatusCompleted, out.Quest.Status)
	assert.Equal(t, 120, out.TotalXPEarned)
	assert.Equal(t, int64(120), out.UserXP)
	assert.Equal(t, 2, out.Level)
	require.Len(t, out.Effects, 2)
	assert.Equal(t, quest.EffectCompleted, out.Effects[1].Kind)

	assert.Equal(t, http.StatusConflict, progress(e, token, q.ID, 1), "completed quests are read-only")
	assert.Len(t, listQuests(t, e, token, "completed"), 1)
}

func TestQuests_ProgressErrors(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "ada")
	other, _ := e.login(t, "grace")
	q := listQuests(t, e, token, "")[0]

	assert.Equal(t, http.StatusNotFound, progress(e, token, 9999, 1))
	assert.Equal(t, http.StatusNotFound, progress(e, other, q.ID, 1), "another user's quest")
	assert.Equal(t, http.StatusConflict, progress(e, token, q.ID, 0.5))

	w := e.authed(token, http.MethodPost, "/api/quests/abc/progress", map[string]int{"delta": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.authed(token, http.MethodPost, fmt.Sprintf("/api/quests/%d/progress", q.ID), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuests_SummaryAndGenerate(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "ada")
	qs := listQuests(t, e, token, "")
	require.Equal(t, http.StatusOK, progress(e, token, qs[1].ID, 1))

	w := e.authed(token, http.MethodGet, "/api/quests/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum quest.Summary
	decode(t, w, &sum)
	assert.Equal(t, 1, sum.Active)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 50, sum.TotalXPEarned)

	w = e.authed(token, http.MethodPost, "/api/quests/generate", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var gen quest.Quest
	decode(t, w, &gen)
	assert.Equal(t, "Debug Detective", gen.Title)
	assert.Equal(t, quest.StatusActive, gen.Status)
	assert.Len(t, listQuests(t, e, token, ""), 2)
}

func TestQuests_ProgressAudited(t *testing.T) {
	e := newEnv(t)
	token, uid := e.login(t, "ada")
	q := listQuests(t, e, token, "")[0]
	progress(e, token, q.ID, 1)
	progress(e, token, 9999, 1)
	e.audit.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, e.db.Where("action = ?", audit.ActionQuestProgress).Order("id").Find(&logs).Error)
	require.Len(t, logs, 2)
	assert.Equal(t, uid, *logs[0].UserID)
	assert.Equal(t, q.ID, *logs[0].QuestID)
	assert.Empty(t, logs[0].Error)
	assert.Contains(t, logs[1].Error, "not found")
}

func TestUsersMe(t *testing.T) {
	e := newEnv(t)
	token, uid := e.login(t, "ada")
	qs := listQuests(t, e, token, "")
	require.Equal(t, http.StatusOK, progress(e, token, qs[0].ID, 2))

	w := e.authed(token, http.MethodGet, "/api/users/me", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p learner.Profile
	decode(t, w, &p)
	assert.Equal(t, uid, p.ID)
	assert.Equal(t, "ada", p.Username)
	assert.Equal(t, int64(120), p.XP)
	assert.Equal(t, 1, p.Streak)
	assert.Equal(t, 2, p.Level.Level)
}
