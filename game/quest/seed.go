package quest

import (
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"github.com/learnbuddy/questbuddy/game/xp"
	"gopkg.in/yaml.v3"
)

// Definition describes a quest to create. Total defaults to the number of
// tasks; XP defaults to xp.GainFor the type and difficulty.
type Definition struct {
	Slug         string   `yaml:"slug" json:"slug"`
	Title        string   `yaml:"title" json:"title"`
	Description  string   `yaml:"description" json:"description"`
	Type         Type     `yaml:"type" json:"type"`
	Difficulty   int      `yaml:"difficulty" json:"difficulty"`
	XP           int      `yaml:"xp" json:"xp"`
	Total        int      `yaml:"total" json:"total"`
	Tasks        []string `yaml:"tasks" json:"tasks,omitempty"`
	TimeEstimate *int     `yaml:"time_estimate" json:"time_estimate,omitempty"`
}

type seedFile struct {
	Quests []Definition `yaml:"quests"`
}

// LoadDefinitions reads quest definitions from a YAML file of the form
//
//	quests:
//	  - title: Write a unit test
//	    type: test
//	    difficulty: 2
//	    total: 3
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes YAML quest definitions and validates them.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quest definitions: %w", err)
	}
	for i := range f.Quests {
		def := &f.Quests[i]
		if def.Slug == "" {
			def.Slug = slug.Make(def.Title)
		}
		if _, err := def.quest(); err != nil {
			return nil, fmt.Errorf("quest %d (%q): %w", i, def.Title, err)
		}
	}
	return f.Quests, nil
}

// quest builds the active, zero-progress quest described by def.
func (def Definition) quest() (Quest, error) {
	q := Quest{
		Slug:         def.Slug,
		Title:        def.Title,
		Description:  def.Description,
		Type:         def.Type,
		Difficulty:   def.Difficulty,
		XP:           def.XP,
		Total:        def.Total,
		Status:       StatusActive,
		TimeEstimate: def.TimeEstimate,
		Tasks:        append([]string(nil), def.Tasks...),
	}
	if q.Total == 0 {
		q.Total = len(def.Tasks)
	}
	if q.XP == 0 && q.Type.Valid() {
		q.XP = xp.GainFor(string(q.Type), q.Difficulty, 0)
	}
	if q.Title == "" {
		return q, fmt.Errorf("%w: empty title", ErrInvalidQuest)
	}
	return q, q.Validate()
}
