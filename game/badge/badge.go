package badge

import (
	"context"
	"errors"
	"sort"

	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/hook"
	"github.com/learnbuddy/questbuddy/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stat names used by badge requirements.
const (
	StatBugsFixed       = "bugs_fixed"
	StatFocusSessions   = "focus_sessions"
	StatMaxStreak       = "max_streak"
	StatBugsReported    = "bugs_reported"
	StatLevel           = "level"
	StatTotalXP         = "total_xp"
	StatQuestsCompleted = "quests_completed"
	StatConceptsLearned = "concepts_learned"
)

// Catalog maps each badge to the minimum stats it needs.
var Catalog = map[string]map[string]int{
	"Code Warrior":     {StatBugsFixed: 10},
	"Focus Master":     {StatFocusSessions: 50},
	"Streak Champion":  {StatMaxStreak: 30},
	"Bug Hunter":       {StatBugsReported: 5},
	"Level Achiever":   {StatLevel: 10},
	"XP Collector":     {StatTotalXP: 5000},
	"Quest Completer":  {StatQuestsCompleted: 25},
	"Learning Machine": {StatConceptsLearned: 15},
}

// Stats is a user's counters keyed by stat name.
type Stats map[string]int

// Eligible returns the names of every badge stats satisfies, sorted.
func Eligible(stats Stats) []string {
	var out []string
	for name, req := range Catalog {
		ok := true
		for stat, need := range req {
			if stats[stat] < need {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// completion counts feeding per-type stats. Test quests count as bug
// reports; code and debug quests both count as fixes.
var typeStats = map[quest.Type]string{
	quest.TypeCode:  StatBugsFixed,
	quest.TypeDebug: StatBugsFixed,
	quest.TypeTest:  StatBugsReported,
	quest.TypeFocus: StatFocusSessions,
	quest.TypeLearn: StatConceptsLearned,
}

// Service awards badges when quests complete.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a badge Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// RegisterHooks evaluates badges after every quest completion.
func (svc *Service) RegisterHooks(hooks *hook.Center) {
	hooks.Register(hook.QuestCompleted, 50, "badge.award", func(ctx context.Context, _ string, data interface{}) (interface{}, error) {
		ev, ok := data.(quest.CompletedEvent)
		if !ok {
			return data, nil
		}
		_, err := svc.Award(ctx, ev.UserID)
		return data, err
	})
}

// StatsFor derives a user's badge stats from the database.
func (svc *Service) StatsFor(ctx context.Context, userID int64) (Stats, error) {
	var user model.User
	if err := svc.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, quest.ErrNotFound
		}
		return nil, err
	}

	var rows []struct {
		Type  string
		Count int
	}
	err := svc.db.WithContext(ctx).Model(&model.Quest{}).
		Select("type, COUNT(*) AS count").
		Where("user_id = ? AND status = ?", userID, string(quest.StatusCompleted)).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := Stats{
		StatLevel:     user.Level,
		StatTotalXP:   int(user.XP),
		StatMaxStreak: user.Streak,
	}
	for _, r := range rows {
		stats[StatQuestsCompleted] += r.Count
		if stat, ok := typeStats[quest.Type(r.Type)]; ok {
			stats[stat] += r.Count
		}
	}
	return stats, nil
}

// Award grants every eligible badge the user does not hold yet and returns
// the newly awarded names.
func (svc *Service) Award(ctx context.Context, userID int64) ([]string, error) {
	stats, err := svc.StatsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	held, err := svc.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(held))
	for _, b := range held {
		have[b.Badge] = true
	}

	var awarded []string
	for _, name := range Eligible(stats) {
		if have[name] {
			continue
		}
		res := svc.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.UserBadge{UserID: userID, Badge: name})
		if res.Error != nil {
			return awarded, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		awarded = append(awarded, name)
		svc.logger.Info("badge awarded", zap.Int64("user_id", userID), zap.String("badge", name))
	}
	return awarded, nil
}

// List returns the user's badges, oldest first.
func (svc *Service) List(ctx context.Context, userID int64) ([]model.UserBadge, error) {
	var out []model.UserBadge
	err := svc.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&out).Error
	return out, err
}
