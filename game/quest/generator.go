package quest

import (
	"fmt"

	"github.com/gosimple/slug"
)

type template struct {
	title       string
	description string
	qtype       Type
	difficulty  int
	xp          int
	tasks       []string
}

var templates = []template{
	{
		title:       "Debug Detective",
		description: "Find and fix bugs in your code",
		qtype:       TypeCode,
		difficulty:  2,
		xp:          150,
		tasks:       []string{"Identify bug", "Write test case", "Fix issue", "Verify fix"},
	},
	{
		title:       "Focus Flow",
		description: "Complete a focused work session",
		qtype:       TypeFocus,
		difficulty:  1,
		xp:          75,
		tasks:       []string{"Set timer", "Eliminate distractions", "Work continuously", "Review progress"},
	},
	{
		title:       "Concept Conqueror",
		description: "Master a new programming concept",
		qtype:       TypeLearn,
		difficulty:  3,
		xp:          200,
		tasks:       []string{"Research concept", "Find examples", "Practice implementation", "Teach someone else"},
	},
}

const (
	veteranLevel = 5
	veteranXP    = 50
)

// Generate returns the quest definition for a user at level. The template
// rotates with level; users past level 5 get one more difficulty point
// (capped) and extra xp. seq distinguishes slugs of repeated generations.
func Generate(level, seq int) Definition {
	if level < 1 {
		level = 1
	}
	t := templates[(level-1)%len(templates)]

	def := Definition{
		Slug:        slug.Make(fmt.Sprintf("%s %d", t.title, seq)),
		Title:       t.title,
		Description: t.description,
		Type:        t.qtype,
		Difficulty:  t.difficulty,
		XP:          t.xp,
		Tasks:       append([]string(nil), t.tasks...),
	}
	if level > veteranLevel {
		def.Difficulty = min(def.Difficulty+1, MaxDifficulty)
		def.XP += veteranXP
	}
	return def
}
