package quest

import (
	"errors"
	"fmt"
	"math"
)

// Type categorizes a quest. It only affects display.
type Type string

const (
	TypeCode  Type = "code"
	TypeFocus Type = "focus"
	TypeLearn Type = "learn"
	TypeDebug Type = "debug"
	TypeTest  Type = "test"
)

// Valid reports whether t is one of the known quest types.
func (t Type) Valid() bool {
	switch t {
	case TypeCode, TypeFocus, TypeLearn, TypeDebug, TypeTest:
		return true
	}
	return false
}

// Status is the lifecycle state of a quest.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusPaused, StatusFailed:
		return true
	}
	return false
}

const (
	MinDifficulty = 1
	MaxDifficulty = 5
)

var (
	// ErrNotFound is returned for an unknown quest id.
	ErrNotFound = errors.New("quest not found")
	// ErrInvalidState is returned when a quest cannot take a progress change:
	// it is not active, or the delta is not an integer.
	ErrInvalidState = errors.New("quest in invalid state")
	// ErrInvalidQuest is returned when a quest violates its field constraints.
	ErrInvalidQuest = errors.New("invalid quest")
)

// Quest is an immutable snapshot of one quest. Updates produce a new value.
type Quest struct {
	ID           int64  `json:"id"`
	Slug         string `json:"slug,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Type         Type   `json:"type"`
	Difficulty   int    `json:"difficulty"`
	XP           int    `json:"xp"`
	Progress     int    `json:"progress"`
	Total        int    `json:"total"`
	Status       Status `json:"status"`
	TimeEstimate *int   `json:"time_estimate,omitempty"` // minutes

	// Tasks is the display checklist; it does not drive Progress.
	Tasks []string `json:"tasks,omitempty"`
}

// Validate checks field ranges and the progress/status invariants.
func (q Quest) Validate() error {
	switch {
	case !q.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuest, q.Type)
	case !q.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuest, q.Status)
	case q.Difficulty < MinDifficulty || q.Difficulty > MaxDifficulty:
		return fmt.Errorf("%w: difficulty %d outside [%d,%d]", ErrInvalidQuest, q.Difficulty, MinDifficulty, MaxDifficulty)
	case q.XP < 0:
		return fmt.Errorf("%w: negative xp %d", ErrInvalidQuest, q.XP)
	case q.Total <= 0:
		return fmt.Errorf("%w: total must be positive, got %d", ErrInvalidQuest, q.Total)
	case q.Progress < 0 || q.Progress > q.Total:
		return fmt.Errorf("%w: progress %d outside [0,%d]", ErrInvalidQuest, q.Progress, q.Total)
	case q.Status == StatusCompleted && q.Progress != q.Total:
		return fmt.Errorf("%w: completed with progress %d/%d", ErrInvalidQuest, q.Progress, q.Total)
	case q.TimeEstimate != nil && *q.TimeEstimate < 0:
		return fmt.Errorf("%w: negative time estimate", ErrInvalidQuest)
	}
	return nil
}

// Percent is the completion ratio in [0,100].
func (q Quest) Percent() float64 {
	return float64(q.Progress) / float64(q.Total) * 100
}

// EffectKind names a side effect of a progress update.
type EffectKind string

const (
	EffectProgressed EffectKind = "progressed"
	EffectCompleted  EffectKind = "completed"
)

// Effect is emitted by Apply. For EffectCompleted, XP is the amount credited.
type Effect struct {
	Kind    EffectKind `json:"kind"`
	QuestID int64      `json:"quest_id"`
	From    int        `json:"from"`
	To      int        `json:"to"`
	XP      int        `json:"xp,omitempty"`
}

// Apply computes the result of adding delta to q's progress without mutating
// anything. Progress is clamped to [0, Total]; a positive delta that reaches
// Total completes the quest and emits an EffectCompleted crediting q.XP.
// Only active quests accept deltas.
func Apply(q Quest, delta int) (Quest, []Effect, error) {
	if q.Status != StatusActive {
		return q, nil, fmt.Errorf("%w: quest %d is %s", ErrInvalidState, q.ID, q.Status)
	}

	next := q
	next.Progress = clamp(q.Progress+delta, 0, q.Total)

	var effects []Effect
	if next.Progress != q.Progress {
		effects = append(effects, Effect{Kind: EffectProgressed, QuestID: q.ID, From: q.Progress, To: next.Progress})
	}
	if delta > 0 && next.Progress == q.Total {
		next.Status = StatusCompleted
		effects = append(effects, Effect{Kind: EffectCompleted, QuestID: q.ID, From: q.Progress, To: next.Progress, XP: q.XP})
	}
	return next, effects, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DeltaFromFloat converts a decoded JSON number into a delta. Fractional,
// infinite and out-of-range values are rejected with ErrInvalidState.
func DeltaFromFloat(f float64) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: delta %v is not an integer", ErrInvalidState, f)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: delta %v out of range", ErrInvalidState, f)
	}
	return int(f), nil
}

// Result is what Tracker.ApplyProgressDelta returns on success.
type Result struct {
	Quest   Quest    `json:"quest"`
	Effects []Effect `json:"effects"`
}

// Completed reports whether the update completed the quest.
func (r Result) Completed() bool {
	for _, e := range r.Effects {
		if e.Kind == EffectCompleted {
			return true
		}
	}
	return false
}

// CreditedXP is the XP granted by this update (0 unless it completed the quest).
func (r Result) CreditedXP() int {
	xp := 0
	for _, e := range r.Effects {
		if e.Kind == EffectCompleted {
			xp += e.XP
		}
	}
	return xp
}

// Tracker owns one collection of quests, keyed by id in insertion order, and
// the running XP total credited by completions. It is not safe for
// concurrent use; callers give each tracker a single owner.
type Tracker struct {
	order  []int64
	quests map[int64]Quest
	earned int
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{quests: make(map[int64]Quest)}
}

// Add inserts a quest. A quest restored in completed status has already
// been through its completion transition, so its XP is credited here.
func (t *Tracker) Add(q Quest) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if _, ok := t.quests[q.ID]; ok {
		return fmt.Errorf("%w: duplicate id %d", ErrInvalidQuest, q.ID)
	}
	t.quests[q.ID] = q
	t.order = append(t.order, q.ID)
	if q.Status == StatusCompleted {
		t.earned += q.XP
	}
	return nil
}

// Get returns the quest with the given id.
func (t *Tracker) Get(id int64) (Quest, error) {
	q, ok := t.quests[id]
	if !ok {
		return Quest{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return q, nil
}

// Len returns the number of tracked quests.
func (t *Tracker) Len() int { return len(t.order) }

// ApplyProgressDelta applies delta to the quest with the given id. On error
// nothing changes.
func (t *Tracker) ApplyProgressDelta(id int64, delta int) (Result, error) {
	q, err := t.Get(id)
	if err != nil {
		return Result{}, err
	}
	next, effects, err := Apply(q, delta)
	if err != nil {
		return Result{}, err
	}
	t.quests[id] = next
	for _, e := range effects {
		if e.Kind == EffectCompleted {
			t.earned += e.XP
		}
	}
	return Result{Quest: next, Effects: effects}, nil
}

// ListByStatus returns the quests with status s in insertion order.
func (t *Tracker) ListByStatus(s Status) []Quest {
	out := make([]Quest, 0, len(t.order))
	for _, id := range t.order {
		if q := t.quests[id]; q.Status == s {
			out = append(out, q)
		}
	}
	return out
}

// All returns every quest in insertion order.
func (t *Tracker) All() []Quest {
	out := make([]Quest, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.quests[id])
	}
	return out
}

// TotalXPEarned returns the XP credited by completion transitions.
func (t *Tracker) TotalXPEarned() int { return t.earned }
