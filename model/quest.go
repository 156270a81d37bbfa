package model

import (
	"time"

	"gorm.io/datatypes"
)

// Quest is the persisted form of a learner's quest. Status holds the
// tracker's status names (active, completed, paused, failed).
type Quest struct {
	ID           int64                       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64                       `gorm:"index:idx_user_quest;not null" json:"user_id"`
	Slug         string                      `gorm:"size:96" json:"slug"`
	Title        string                      `gorm:"size:128;not null" json:"title"`
	Description  string                      `gorm:"type:text" json:"description"`
	Type         string                      `gorm:"size:16;not null" json:"type"`
	Difficulty   int                         `gorm:"not null" json:"difficulty"`
	XP           int                         `gorm:"not null" json:"xp"`
	Progress     int                         `gorm:"default:0" json:"progress"`
	Total        int                         `gorm:"not null" json:"total"`
	Status       string                      `gorm:"index:idx_user_quest;size:16;default:active" json:"status"`
	TimeEstimate *int                        `json:"time_estimate,omitempty"`
	Tasks        datatypes.JSONSlice[string] `json:"tasks,omitempty"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt  *time.Time                  `json:"completed_at,omitempty"`
}
