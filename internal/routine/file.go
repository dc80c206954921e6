package routine

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	yaml "go.yaml.in/yaml/v3"
)

// fileDef is the on-disk YAML shape of a routine.
//
// Durations are minutes (integers) to match how people actually plan
// routines; the engine converts to time.Duration on load.
type fileDef struct {
	Name     string     `yaml:"name"`
	Schedule string     `yaml:"schedule,omitempty"`
	Tasks    []fileTask `yaml:"tasks"`
}

type fileTask struct {
	ID         string     `yaml:"id,omitempty"`
	Name       string     `yaml:"name"`
	MinMinutes int        `yaml:"min_minutes"`
	MaxMinutes int        `yaml:"max_minutes,omitempty"`
	Tier       string     `yaml:"tier,omitempty"`
	Checklist  []fileItem `yaml:"checklist,omitempty"`
	Gated      bool       `yaml:"gated,omitempty"`
}

type fileItem struct {
	ID    string `yaml:"id,omitempty"`
	Title string `yaml:"title"`
}

// LoadFile parses and validates a routine definition from a YAML file.
// Tasks and checklist items without explicit IDs get generated ones, so
// hand-written files stay terse.
func LoadFile(path string) (Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	return parse(b)
}

func parse(b []byte) (Definition, error) {
	var fd fileDef
	if err := yaml.Unmarshal(b, &fd); err != nil {
		return Definition{}, fmt.Errorf("routine yaml: %w", err)
	}

	def := Definition{Name: fd.Name, Schedule: fd.Schedule}
	for i, ft := range fd.Tasks {
		tier, err := ParseTier(ft.Tier)
		if err != nil {
			return Definition{}, fmt.Errorf("routine %s task %d: %w", fd.Name, i, err)
		}
		maxMin := ft.MaxMinutes
		if maxMin == 0 {
			maxMin = ft.MinMinutes
		}
		spec := TaskSpec{
			ID:          orUUID(ft.ID),
			Name:        ft.Name,
			MinDuration: time.Duration(ft.MinMinutes) * time.Minute,
			MaxDuration: time.Duration(maxMin) * time.Minute,
			Tier:        tier,
			Gated:       ft.Gated,
		}
		for _, it := range ft.Checklist {
			spec.Checklist = append(spec.Checklist, ChecklistItem{ID: orUUID(it.ID), Title: it.Title})
		}
		def.Tasks = append(def.Tasks, spec)
	}

	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func orUUID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
