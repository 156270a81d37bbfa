package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnbuddy/questbuddy/model"
	"github.com/learnbuddy/questbuddy/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_FlushedOnStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, testutil.Logger())

	svc.Log(Entry{
		TraceID:  "trace-123",
		UserID:   2,
		QuestID:  7,
		Action:   ActionQuestProgress,
		Request:  map[string]int{"delta": 1},
		Response: map[string]string{"status": "completed"},
		IP:       "127.0.0.1",
		Duration: 42 * time.Millisecond,
	})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	got := logs[0]
	assert.Equal(t, "trace-123", got.TraceID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(2), *got.UserID)
	require.NotNil(t, got.QuestID)
	assert.Equal(t, int64(7), *got.QuestID)
	assert.Equal(t, ActionQuestProgress, got.Action)
	assert.JSONEq(t, `{"delta":1}`, string(got.Request))
	assert.Equal(t, 42, got.DurationMs)
	assert.Empty(t, got.Error)
}

func TestLog_ErrorAndAnonymous(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{}, testutil.Logger())

	svc.Log(Entry{Action: ActionLogin, Err: errors.New("bad password")})
	svc.Stop(context.Background())

	var logs []model.AuditLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].UserID)
	assert.Nil(t, logs[0].QuestID)
	assert.Equal(t, "bad password", logs[0].Error)
}

func TestLog_BatchFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{BatchSize: 10, FlushInterval: time.Hour}, testutil.Logger())
	defer svc.Stop(context.Background())

	for i := 0; i < 10; i++ {
		svc.Log(Entry{Action: "batch"})
	}
	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.AuditLog{}).Count(&n)
		return n == 10
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLog_TimerFlush(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{FlushInterval: 20 * time.Millisecond}, testutil.Logger())
	defer svc.Stop(context.Background())

	svc.Log(Entry{Action: "timer"})
	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.AuditLog{}).Count(&n)
		return n == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestLog_DropsWhenFull(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := New(db, Config{Buffer: 4, BatchSize: 1000, FlushInterval: time.Hour}, testutil.Logger())

	for i := 0; i < 50; i++ {
		svc.Log(Entry{Action: "flood"})
	}
	svc.Stop(context.Background())

	var n int64
	db.Model(&model.AuditLog{}).Count(&n)
	assert.LessOrEqual(t, n, int64(50))
	assert.Positive(t, n)
}

func TestStop_Idempotent(t *testing.T) {
	svc := New(testutil.SetupTestDB(t), Config{}, testutil.Logger())
	svc.Stop(context.Background())
	svc.Stop(context.Background())
}
