package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/game/xp"
	"github.com/learnbuddy/questbuddy/hook"
	"github.com/learnbuddy/questbuddy/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RankingKey is the cache sorted set of user ids scored by total XP.
const RankingKey = "ranking:xp"

// UserChannel is the pub/sub channel carrying quest updates for one user.
func UserChannel(userID int64) string {
	return fmt.Sprintf("user:%d:quests", userID)
}

// Config tunes the Service.
type Config struct {
	// Starter quests are seeded for every newly registered user.
	Starter      []Definition
	StreakWindow time.Duration
}

// Outcome is the result of Service.ApplyProgress.
type Outcome struct {
	Result
	TotalXPEarned int   `json:"total_xp_earned"`
	UserXP        int64 `json:"user_xp"`
	Level         int   `json:"level"`
	LeveledUp     bool  `json:"leveled_up"`
	Streak        int   `json:"streak"`
}

// CompletedEvent is the hook.QuestCompleted payload.
type CompletedEvent struct {
	UserID int64
	Quest  Quest
	UserXP int64
	Level  int
}

// LevelUpEvent is the hook.LevelUp payload.
type LevelUpEvent struct {
	UserID int64
	From   int
	To     int
}

// Update is the JSON published on UserChannel.
type Update struct {
	Type          string   `json:"type"`
	Quest         Quest    `json:"quest"`
	Effects       []Effect `json:"effects"`
	TotalXPEarned int      `json:"total_xp_earned"`
	Level         int      `json:"level"`
}

// Summary aggregates a user's quests.
type Summary struct {
	Active        int         `json:"active"`
	Completed     int         `json:"completed"`
	Paused        int         `json:"paused"`
	Failed        int         `json:"failed"`
	TotalXPEarned int         `json:"total_xp_earned"`
	Level         xp.Progress `json:"level"`
	Streak        int         `json:"streak"`
}

// Service persists each user's quests and drives them through a Tracker.
// Calls for the same user are serialised; the database update is also
// guarded so a concurrent writer from another process yields ErrInvalidState.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	hooks  *hook.Center
	cfg    Config
	logger *zap.Logger

	// One mutex per user id, kept for the life of the process.
	locks sync.Map // int64 -> *sync.Mutex
	now   func() time.Time
}

// NewService creates a quest Service. cache, pubsub and hooks may be nil.
func NewService(db *gorm.DB, c cache.Cache, ps cache.PubSub, hooks *hook.Center, cfg Config, logger *zap.Logger) *Service {
	if cfg.StreakWindow <= 0 {
		cfg.StreakWindow = 48 * time.Hour
	}
	return &Service{
		db:     db,
		cache:  c,
		pubsub: ps,
		hooks:  hooks,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterHooks seeds the starter quests for every new user.
func (svc *Service) RegisterHooks() {
	if svc.hooks == nil {
		return
	}
	svc.hooks.Register(hook.UserRegistered, 10, "quest.starter", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		userID, ok := data.(int64)
		if !ok || len(svc.cfg.Starter) == 0 {
			return data, nil
		}
		if _, err := svc.Seed(ctx, userID, svc.cfg.Starter); err != nil {
			return data, fmt.Errorf("seed starter quests: %w", err)
		}
		return data, nil
	})
}

func (svc *Service) lock(userID int64) func() {
	v, _ := svc.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Seed creates an active, zero-progress quest per definition for userID.
// Either all are created or none.
func (svc *Service) Seed(ctx context.Context, userID int64, defs []Definition) ([]Quest, error) {
	rows := make([]model.Quest, 0, len(defs))
	for i, def := range defs {
		q, err := def.quest()
		if err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
		rows = append(rows, toModel(userID, q))
	}
	if len(rows) == 0 {
		return nil, nil
	}

	defer svc.lock(userID)()
	if err := svc.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Quest, len(rows))
	for i := range rows {
		out[i] = fromModel(&rows[i])
	}
	svc.logger.Info("quests seeded", zap.Int64("user_id", userID), zap.Int("count", len(out)))
	return out, nil
}

// Generate creates one quest for userID from the level-based templates.
func (svc *Service) Generate(ctx context.Context, userID int64) (Quest, error) {
	var user model.User
	if err := svc.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return Quest{}, userErr(userID, err)
	}
	var n int64
	if err := svc.db.WithContext(ctx).Model(&model.Quest{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return Quest{}, err
	}
	qs, err := svc.Seed(ctx, userID, []Definition{Generate(user.Level, int(n)+1)})
	if err != nil {
		return Quest{}, err
	}
	return qs[0], nil
}

// List returns the user's quests with the given status, oldest first.
func (svc *Service) List(ctx context.Context, userID int64, status Status) ([]Quest, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidQuest, status)
	}
	defer svc.lock(userID)()
	tr, err := loadTracker(svc.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	return tr.ListByStatus(status), nil
}

// Summary counts the user's quests per status and reports XP progress.
func (svc *Service) Summary(ctx context.Context, userID int64) (Summary, error) {
	var user model.User
	if err := svc.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return Summary{}, userErr(userID, err)
	}
	defer svc.lock(userID)()
	tr, err := loadTracker(svc.db.WithContext(ctx), userID)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Active:        len(tr.ListByStatus(StatusActive)),
		Completed:     len(tr.ListByStatus(StatusCompleted)),
		Paused:        len(tr.ListByStatus(StatusPaused)),
		Failed:        len(tr.ListByStatus(StatusFailed)),
		TotalXPEarned: tr.TotalXPEarned(),
		Level:         xp.ProgressFor(user.XP),
		Streak:        user.Streak,
	}, nil
}

// ApplyProgress applies delta to one of the user's quests. A completion
// credits the quest's XP to the user in the same transaction, then updates
// the ranking, fires hooks and publishes a quest_update event.
func (svc *Service) ApplyProgress(ctx context.Context, userID, questID int64, delta int) (Outcome, error) {
	unlock := svc.lock(userID)
	var (
		out       Outcome
		prevLevel int
	)
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, userID).Error; err != nil {
			return userErr(userID, err)
		}
		if user.Status == model.UserStatusBanned {
			return fmt.Errorf("%w: user %d is banned", ErrInvalidState, userID)
		}

		tr, err := loadTracker(tx, userID)
		if err != nil {
			return err
		}
		prev, err := tr.Get(questID)
		if err != nil {
			return err
		}
		res, err := tr.ApplyProgressDelta(questID, delta)
		if err != nil {
			return err
		}
		out.Result = res
		out.TotalXPEarned = tr.TotalXPEarned()

		prevLevel = user.Level
		out.UserXP, out.Level, out.Streak = user.XP, user.Level, user.Streak
		if len(res.Effects) == 0 {
			return nil
		}

		now := svc.now()
		updates := map[string]interface{}{
			"progress": res.Quest.Progress,
			"status":   string(res.Quest.Status),
		}
		if res.Completed() {
			updates["completed_at"] = now
		}
		r := tx.Model(&model.Quest{}).
			Where("id = ? AND user_id = ? AND status = ? AND progress = ?", questID, userID, string(StatusActive), prev.Progress).
			Updates(updates)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return fmt.Errorf("%w: quest %d changed concurrently", ErrInvalidState, questID)
		}

		if !res.Completed() {
			return nil
		}
		user.XP += int64(res.CreditedXP())
		user.Level = xp.LevelFor(user.XP)
		user.Streak = xp.NextStreak(user.Streak, user.LastActiveAt, now, svc.cfg.StreakWindow)
		user.LastActiveAt = &now
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"xp":             user.XP,
			"level":          user.Level,
			"streak":         user.Streak,
			"last_active_at": now,
		}).Error; err != nil {
			return err
		}
		out.UserXP, out.Level, out.Streak = user.XP, user.Level, user.Streak
		out.LeveledUp = user.Level > prevLevel
		return nil
	})
	unlock()
	if err != nil {
		return Outcome{}, err
	}
	if len(out.Effects) == 0 {
		return out, nil
	}

	if out.Completed() {
		svc.logger.Info("quest completed",
			zap.Int64("user_id", userID),
			zap.Int64("quest_id", questID),
			zap.Int("xp", out.CreditedXP()),
			zap.Int("level", out.Level))
		svc.updateRanking(ctx, userID, out.UserXP)
	}
	svc.fire(ctx, userID, prevLevel, out)
	svc.publish(ctx, userID, out)
	return out, nil
}

func (svc *Service) updateRanking(ctx context.Context, userID, total int64) {
	if svc.cache == nil {
		return
	}
	if err := svc.cache.ZAdd(ctx, RankingKey, float64(total), strconv.FormatInt(userID, 10)); err != nil {
		svc.logger.Warn("ranking update failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (svc *Service) fire(ctx context.Context, userID int64, prevLevel int, out Outcome) {
	if svc.hooks == nil {
		return
	}
	trigger := func(event string, data interface{}) {
		if _, err := svc.hooks.Trigger(ctx, event, data); err != nil && !errors.Is(err, hook.ErrInterrupt) {
			svc.logger.Warn("hook failed", zap.String("event", event), zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	trigger(hook.QuestProgressed, out.Result)
	if out.Completed() {
		trigger(hook.QuestCompleted, CompletedEvent{UserID: userID, Quest: out.Quest, UserXP: out.UserXP, Level: out.Level})
	}
	if out.LeveledUp {
		trigger(hook.LevelUp, LevelUpEvent{UserID: userID, From: prevLevel, To: out.Level})
	}
}

func (svc *Service) publish(ctx context.Context, userID int64, out Outcome) {
	if svc.pubsub == nil {
		return
	}
	payload, err := json.Marshal(Update{
		Type:          "quest_update",
		Quest:         out.Quest,
		Effects:       out.Effects,
		TotalXPEarned: out.TotalXPEarned,
		Level:         out.Level,
	})
	if err != nil {
		svc.logger.Error("encode quest update failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if err := svc.pubsub.Publish(ctx, UserChannel(userID), string(payload)); err != nil {
		svc.logger.Warn("publish quest update failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// loadTracker rebuilds the user's tracker from the database in id order.
func loadTracker(db *gorm.DB, userID int64) (*Tracker, error) {
	var rows []model.Quest
	if err := db.Where("user_id = ?", userID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	tr := NewTracker()
	for i := range rows {
		if err := tr.Add(fromModel(&rows[i])); err != nil {
			return nil, fmt.Errorf("load quest %d: %w", rows[i].ID, err)
		}
	}
	return tr, nil
}

func userErr(userID int64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return err
}

func toModel(userID int64, q Quest) model.Quest {
	return model.Quest{
		UserID:       userID,
		Slug:         q.Slug,
		Title:        q.Title,
		Description:  q.Description,
		Type:         string(q.Type),
		Difficulty:   q.Difficulty,
		XP:           q.XP,
		Progress:     q.Progress,
		Total:        q.Total,
		Status:       string(q.Status),
		TimeEstimate: q.TimeEstimate,
		Tasks:        datatypes.JSONSlice[string](q.Tasks),
	}
}

func fromModel(m *model.Quest) Quest {
	return Quest{
		ID:           m.ID,
		Slug:         m.Slug,
		Title:        m.Title,
		Description:  m.Description,
		Type:         Type(m.Type),
		Difficulty:   m.Difficulty,
		XP:           m.XP,
		Progress:     m.Progress,
		Total:        m.Total,
		Status:       Status(m.Status),
		TimeEstimate: m.TimeEstimate,
		Tasks:        []string(m.Tasks),
	}
}
