package xp

import "time"

// DefaultBase is the base reward for quest types without an entry in BaseByType.
const DefaultBase = 50

// BaseByType is the base XP reward per quest type.
var BaseByType = map[string]int{
	"code":  100,
	"focus": 50,
	"learn": 150,
	"debug": 120,
	"test":  80,
}

const (
	maxStreakBonus = 2.0 // +200%
	levelStep      = 100
)

// GainFor returns the XP reward for a quest of the given type and difficulty
// completed by a user on the given streak. Difficulty scales by 0.5 per
// point with a floor of 1x; each streak day adds 10%, capped at +200%.
func GainFor(questType string, difficulty, streak int) int {
	base, ok := BaseByType[questType]
	if !ok {
		base = DefaultBase
	}

	mult := float64(difficulty) * 0.5
	if mult < 1.0 {
		mult = 1.0
	}
	bonus := float64(streak) * 0.1
	if bonus > maxStreakBonus {
		bonus = maxStreakBonus
	}
	if bonus < 0 {
		bonus = 0
	}
	return int(float64(base) * mult * (1.0 + bonus))
}

// LevelFor returns the level reached with totalXP. Level 1 needs nothing,
// level 2 needs 100 more, and each further level n needs n*100 on top.
func LevelFor(totalXP int64) int {
	level := 1
	need := int64(levelStep)
	for totalXP >= need {
		totalXP -= need
		level++
		need = int64(level) * levelStep
	}
	return level
}

// XPForLevel returns the cumulative XP at which level starts.
func XPForLevel(level int) int64 {
	var total int64
	for l := 1; l < level; l++ {
		total += int64(l) * levelStep
	}
	return total
}

// Progress describes where totalXP sits inside its current level.
type Progress struct {
	Level     int   `json:"level"`
	IntoLevel int64 `json:"into_level"`
	ToNext    int64 `json:"to_next"`
}

// ProgressFor returns level progress for totalXP.
func ProgressFor(totalXP int64) Progress {
	level := LevelFor(totalXP)
	start := XPForLevel(level)
	return Progress{
		Level:     level,
		IntoLevel: totalXP - start,
		ToNext:    XPForLevel(level+1) - totalXP,
	}
}

// NextStreak returns the streak after activity at now. Activity on the same
// calendar day keeps the streak, activity within window of the last one
// extends it, anything later restarts it at 1.
func NextStreak(streak int, last *time.Time, now time.Time, window time.Duration) int {
	if last == nil || streak <= 0 {
		return 1
	}
	if sameDay(*last, now) {
		return streak
	}
	if now.Sub(*last) <= window {
		return streak + 1
	}
	return 1
}

// StreakExpired reports whether a streak anchored at last has lapsed at now.
func StreakExpired(last *time.Time, now time.Time, window time.Duration) bool {
	return last == nil || now.Sub(*last) > window
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
