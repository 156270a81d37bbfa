package learner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/learnbuddy/questbuddy/game/badge"
	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/game/xp"
	"github.com/learnbuddy/questbuddy/hook"
	"github.com/learnbuddy/questbuddy/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrBanned         = errors.New("account banned")
	ErrUsernameTaken  = errors.New("username already taken")
)

const bcryptCost = 12

// Profile is what a learner sees about themselves.
type Profile struct {
	ID       int64             `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email,omitempty"`
	Mood     string            `json:"mood"`
	XP       int64             `json:"xp"`
	Streak   int               `json:"streak"`
	Level    xp.Progress       `json:"level"`
	Badges   []model.UserBadge `json:"badges"`
}

// Service manages learner accounts.
type Service struct {
	db     *gorm.DB
	hooks  *hook.Center
	badges *badge.Service
	logger *zap.Logger
	cost   int
}

// NewService creates a learner Service. hooks may be nil.
func NewService(db *gorm.DB, hooks *hook.Center, badges *badge.Service, logger *zap.Logger) *Service {
	return &Service{db: db, hooks: hooks, badges: badges, logger: logger, cost: bcryptCost}
}

// SetPasswordCost overrides the bcrypt cost used for new accounts.
func (svc *Service) SetPasswordCost(cost int) { svc.cost = cost }

// Login verifies the password of an existing learner, or registers a new
// one on first login. created reports a registration.
func (svc *Service) Login(ctx context.Context, username, password, ip string) (user *model.User, created bool, err error) {
	db := svc.db.WithContext(ctx)
	user = &model.User{}
	err = db.Where("username = ?", username).First(user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if user, err = svc.register(ctx, username, password); err != nil {
			return nil, false, err
		}
		created = true
	case err != nil:
		return nil, false, err
	default:
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return nil, false, ErrBadCredentials
		}
		if user.Status == model.UserStatusBanned {
			return nil, false, ErrBanned
		}
	}

	now := time.Now()
	if err := db.Model(user).Updates(map[string]interface{}{
		"last_login_at": now,
		"last_login_ip": ip,
	}).Error; err != nil {
		svc.logger.Warn("update last login failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return user, created, nil
}

func (svc *Service) register(ctx context.Context, username, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), svc.cost)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Username:     username,
		PasswordHash: string(hash),
		Status:       model.UserStatusNormal,
		Level:        1,
		Mood:         "mentor",
	}
	if err := svc.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	svc.logger.Info("learner registered", zap.Int64("user_id", user.ID), zap.String("username", username))

	if svc.hooks != nil {
		if _, err := svc.hooks.Trigger(ctx, hook.UserRegistered, user.ID); err != nil {
			svc.logger.Warn("user_registered hook failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return user, nil
}

// Profile returns the learner's profile with badges.
func (svc *Service) Profile(ctx context.Context, userID int64) (Profile, error) {
	var user model.User
	if err := svc.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Profile{}, fmt.Errorf("%w: user %d", quest.ErrNotFound, userID)
		}
		return Profile{}, err
	}
	badges, err := svc.badges.List(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	if badges == nil {
		badges = []model.UserBadge{}
	}
	return Profile{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Mood:     user.Mood,
		XP:       user.XP,
		Streak:   user.Streak,
		Level:    xp.ProgressFor(user.XP),
		Badges:   badges,
	}, nil
}

// DecayStreaks resets the streak of every learner inactive for longer than
// window and returns how many were reset.
func (svc *Service) DecayStreaks(ctx context.Context, now time.Time, window time.Duration) (int64, error) {
	cutoff := now.Add(-window)
	res := svc.db.WithContext(ctx).Model(&model.User{}).
		Where("streak > 0 AND (last_active_at IS NULL OR last_active_at < ?)", cutoff).
		Update("streak", 0)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		svc.logger.Info("streaks reset", zap.Int64("users", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// isUniqueViolation detects duplicate-key errors across the supported drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
