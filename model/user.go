package model

import "time"

// UserStatus values for User.Status.
const (
	UserStatusBanned = 0
	UserStatusNormal = 1
)

// User is a learner account. XP and Level only change through quest completion.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Email        string     `gorm:"size:128" json:"email"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=normal
	Level        int        `gorm:"default:1" json:"level"`
	XP           int64      `gorm:"index:idx_user_xp;default:0" json:"xp"`
	Streak       int        `gorm:"default:0" json:"streak"`
	Mood         string     `gorm:"size:16;default:mentor" json:"mood"`
	LastActiveAt *time.Time `json:"last_active_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
