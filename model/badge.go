package model

import "time"

// UserBadge records a badge awarded to a user. A badge is awarded at most once.
type UserBadge struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_user_badge;not null" json:"user_id"`
	Badge     string    `gorm:"uniqueIndex:idx_user_badge;size:64;not null" json:"badge"`
	AwardedAt time.Time `gorm:"autoCreateTime" json:"awarded_at"`
}
