package quest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkQuest(id int64, progress, total, xp int) Quest {
	return Quest{
		ID:         id,
		Title:      "Quest",
		Type:       TypeCode,
		Difficulty: 2,
		XP:         xp,
		Progress:   progress,
		Total:      total,
		Status:     StatusActive,
	}
}

func newTestTracker(t *testing.T, quests ...Quest) *Tracker {
	t.Helper()
	tr := NewTracker()
	for _, q := range quests {
		require.NoError(t, tr.Add(q))
	}
	return tr
}

func TestApplyProgressDelta_CompletesAndCreditsXP(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 2, 3, 150))

	res, err := tr.ApplyProgressDelta(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quest.Progress)
	assert.Equal(t, StatusCompleted, res.Quest.Status)
	assert.True(t, res.Completed())
	assert.Equal(t, 150, res.CreditedXP())
	assert.Equal(t, 150, tr.TotalXPEarned())

	require.Len(t, res.Effects, 2)
	assert.Equal(t, EffectProgressed, res.Effects[0].Kind)
	assert.Equal(t, EffectCompleted, res.Effects[1].Kind)
	assert.Equal(t, 150, res.Effects[1].XP)
}

func TestApplyProgressDelta_NegativeClampsAtZero(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 0, 5, 50))

	res, err := tr.ApplyProgressDelta(1, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Quest.Progress)
	assert.Equal(t, StatusActive, res.Quest.Status)
	assert.Empty(t, res.Effects)
	assert.Equal(t, 0, tr.TotalXPEarned())
}

func TestApplyProgressDelta_NotFound(t *testing.T) {
	q := mkQuest(1, 1, 5, 50)
	tr := newTestTracker(t, q)

	_, err := tr.ApplyProgressDelta(999, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := tr.Get(1)
	require.NoError(t, err)
	assert.Equal(t, q, got)
	assert.Equal(t, 0, tr.TotalXPEarned())
}

func TestApplyProgressDelta_CompletedIsReadOnly(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 2, 3, 150))
	_, err := tr.ApplyProgressDelta(1, 1)
	require.NoError(t, err)
	before, _ := tr.Get(1)

	for _, delta := range []int{1, -1, 0} {
		_, err = tr.ApplyProgressDelta(1, delta)
		assert.ErrorIs(t, err, ErrInvalidState, "delta %d", delta)
	}

	after, _ := tr.Get(1)
	assert.Equal(t, before, after)
	assert.Equal(t, 150, tr.TotalXPEarned())
}

func TestApplyProgressDelta_PausedAndFailedRejected(t *testing.T) {
	paused := mkQuest(1, 1, 5, 10)
	paused.Status = StatusPaused
	failed := mkQuest(2, 1, 5, 10)
	failed.Status = StatusFailed
	tr := newTestTracker(t, paused, failed)

	_, err := tr.ApplyProgressDelta(1, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = tr.ApplyProgressDelta(2, 1)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApplyProgressDelta_OvershootClampsAndCompletes(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 7, 10, 50))

	res, err := tr.ApplyProgressDelta(1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Quest.Progress)
	assert.Equal(t, StatusCompleted, res.Quest.Status)
	assert.Equal(t, 50, tr.TotalXPEarned())
}

func TestApplyProgressDelta_ZeroDeltaIsNoop(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 3, 10, 50))

	res, err := tr.ApplyProgressDelta(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quest.Progress)
	assert.Empty(t, res.Effects)
}

func TestApplyProgressDelta_DecrementThenComplete(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 1, 2, 40))

	_, err := tr.ApplyProgressDelta(1, -1)
	require.NoError(t, err)
	_, err = tr.ApplyProgressDelta(1, 1)
	require.NoError(t, err)
	res, err := tr.ApplyProgressDelta(1, 1)
	require.NoError(t, err)
	assert.True(t, res.Completed())
	assert.Equal(t, 40, tr.TotalXPEarned())
}

func TestApply_IsPure(t *testing.T) {
	q := mkQuest(1, 2, 3, 150)
	next, effects, err := Apply(q, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Progress)
	assert.Equal(t, StatusActive, q.Status)
	assert.Equal(t, StatusCompleted, next.Status)
	assert.Len(t, effects, 2)
}

func TestListByStatus_InsertionOrder(t *testing.T) {
	tr := newTestTracker(t,
		mkQuest(30, 0, 1, 10),
		mkQuest(10, 0, 5, 10),
		mkQuest(20, 0, 1, 10),
		mkQuest(5, 0, 5, 10),
	)
	_, err := tr.ApplyProgressDelta(20, 1)
	require.NoError(t, err)
	_, err = tr.ApplyProgressDelta(30, 1)
	require.NoError(t, err)

	ids := func(qs []Quest) []int64 {
		out := make([]int64, len(qs))
		for i, q := range qs {
			out[i] = q.ID
		}
		return out
	}
	assert.Equal(t, []int64{10, 5}, ids(tr.ListByStatus(StatusActive)))
	assert.Equal(t, []int64{30, 20}, ids(tr.ListByStatus(StatusCompleted)))
	assert.Empty(t, tr.ListByStatus(StatusPaused))
	assert.Equal(t, []int64{30, 10, 20, 5}, ids(tr.All()))
}

func TestAdd_RestoredCompletedCountsOnce(t *testing.T) {
	done := mkQuest(1, 3, 3, 200)
	done.Status = StatusCompleted
	tr := newTestTracker(t, done, mkQuest(2, 0, 1, 50))
	assert.Equal(t, 200, tr.TotalXPEarned())

	_, err := tr.ApplyProgressDelta(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 250, tr.TotalXPEarned())
}

func TestAdd_RejectsInvalid(t *testing.T) {
	cases := map[string]func(q *Quest){
		"type":           func(q *Quest) { q.Type = "art" },
		"status":         func(q *Quest) { q.Status = "archived" },
		"difficulty low": func(q *Quest) { q.Difficulty = 0 },
		"difficulty hi":  func(q *Quest) { q.Difficulty = 6 },
		"xp":             func(q *Quest) { q.XP = -1 },
		"total":          func(q *Quest) { q.Total = 0 },
		"progress":       func(q *Quest) { q.Progress = 9 },
		"completed":      func(q *Quest) { q.Status = StatusCompleted },
		"estimate":       func(q *Quest) { v := -5; q.TimeEstimate = &v },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			q := mkQuest(1, 1, 5, 10)
			mutate(&q)
			assert.ErrorIs(t, NewTracker().Add(q), ErrInvalidQuest)
		})
	}
}

func TestAdd_DuplicateID(t *testing.T) {
	tr := newTestTracker(t, mkQuest(1, 0, 1, 10))
	assert.ErrorIs(t, tr.Add(mkQuest(1, 0, 2, 10)), ErrInvalidQuest)
	assert.Equal(t, 1, tr.Len())
}

func TestDeltaFromFloat(t *testing.T) {
	d, err := DeltaFromFloat(-3)
	require.NoError(t, err)
	assert.Equal(t, -3, d)

	for _, f := range []float64{0.5, math.NaN(), math.Inf(1), math.Inf(-1), 1e12} {
		_, err := DeltaFromFloat(f)
		assert.ErrorIs(t, err, ErrInvalidState, "value %v", f)
	}
}

func TestPercent(t *testing.T) {
	assert.InDelta(t, 70.0, mkQuest(1, 7, 10, 0).Percent(), 0.001)
}

// Random delta sequences must keep progress in range and credit each
// completed quest's XP exactly once.
func TestApplyProgressDelta_RandomSequencesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		tr := NewTracker()
		for id := int64(1); id <= 6; id++ {
			require.NoError(t, tr.Add(mkQuest(id, 0, 1+rng.Intn(8), rng.Intn(300))))
		}
		for step := 0; step < 200; step++ {
			id := int64(1 + rng.Intn(7)) // id 7 never exists
			before := tr.TotalXPEarned()
			res, err := tr.ApplyProgressDelta(id, rng.Intn(9)-4)
			switch {
			case err != nil:
				assert.Equal(t, before, tr.TotalXPEarned())
			case res.Completed():
				assert.Equal(t, before+res.Quest.XP, tr.TotalXPEarned())
			default:
				assert.Equal(t, before, tr.TotalXPEarned())
			}
		}

		sum := 0
		for _, q := range tr.All() {
			assert.GreaterOrEqual(t, q.Progress, 0)
			assert.LessOrEqual(t, q.Progress, q.Total)
			if q.Status == StatusCompleted {
				assert.Equal(t, q.Total, q.Progress)
				sum += q.XP
			}
		}
		assert.Equal(t, sum, tr.TotalXPEarned())
	}
}
