package ranking

import (
	"context"
	"strconv"

	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is one leaderboard row.
type Entry struct {
	Rank     int    `json:"rank"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	XP       int64  `json:"xp"`
}

// Board serves the XP leaderboard from the cache sorted set, falling back
// to the database when the set is empty.
type Board struct {
	db     *gorm.DB
	cache  cache.Cache
	size   int
	logger *zap.Logger
}

// NewBoard creates a Board holding at most size users.
func NewBoard(db *gorm.DB, c cache.Cache, size int, logger *zap.Logger) *Board {
	if size <= 0 {
		size = 100
	}
	return &Board{db: db, cache: c, size: size, logger: logger}
}

// Size is the maximum number of ranked users.
func (b *Board) Size() int { return b.size }

// Top returns the best limit users by XP.
func (b *Board) Top(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > b.size {
		limit = b.size
	}

	members, err := b.cache.ZRevRangeWithScores(ctx, quest.RankingKey, 0, int64(limit-1))
	if err != nil {
		b.logger.Warn("ranking cache read failed", zap.Error(err))
	}
	if len(members) == 0 {
		return b.fromDB(ctx, limit)
	}

	entries := make([]Entry, 0, len(members))
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m.Member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		entries = append(entries, Entry{Rank: len(entries) + 1, UserID: id, XP: int64(m.Score)})
	}

	var users []model.User
	if err := b.db.WithContext(ctx).Select("id, username, level, xp").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range entries {
		if u, ok := byID[entries[i].UserID]; ok {
			entries[i].Username = u.Username
			entries[i].Level = u.Level
		}
	}
	return entries, nil
}

func (b *Board) fromDB(ctx context.Context, limit int) ([]Entry, error) {
	users, err := b.load(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(users))
	for i, u := range users {
		entries[i] = Entry{Rank: i + 1, UserID: u.ID, Username: u.Username, Level: u.Level, XP: u.XP}
		_ = b.cache.ZAdd(ctx, quest.RankingKey, float64(u.XP), strconv.FormatInt(u.ID, 10))
	}
	return entries, nil
}

func (b *Board) load(ctx context.Context, limit int) ([]model.User, error) {
	var users []model.User
	err := b.db.WithContext(ctx).
		Select("id, username, level, xp").
		Where("status = ?", model.UserStatusNormal).
		Order("xp DESC, id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// Refresh rebuilds the sorted set from the database and returns the
// number of ranked users.
func (b *Board) Refresh(ctx context.Context) (int, error) {
	users, err := b.load(ctx, b.size)
	if err != nil {
		return 0, err
	}
	if err := b.cache.Del(ctx, quest.RankingKey); err != nil {
		return 0, err
	}
	for _, u := range users {
		if err := b.cache.ZAdd(ctx, quest.RankingKey, float64(u.XP), strconv.FormatInt(u.ID, 10)); err != nil {
			return 0, err
		}
	}
	b.logger.Debug("ranking refreshed", zap.Int("users", len(users)))
	return len(users), nil
}
