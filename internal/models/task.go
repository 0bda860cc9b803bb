package models

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Difficulty levels accepted on a task.
const (
	TaskDifficultyEasy   = "easy"
	TaskDifficultyMedium = "medium"
	TaskDifficultyHard   = "hard"
)

// TaskDefaultPoints is applied when a task is created without a valid
// points value.
const TaskDefaultPoints = 10

// Task is an admin-authored UI replication challenge. Dependencies,
// assets and test cases are stored as JSON documents; their shape is
// validated at the service boundary.
type Task struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"size:100;not null" json:"title"`
	TitleLower  string `gorm:"size:100;not null;uniqueIndex:uq_tasks_title_lower" json:"-"`
	Description string `gorm:"type:text;not null" json:"description"`
	Difficulty  string `gorm:"size:16;not null;default:medium" json:"difficulty"`
	Points      int    `gorm:"not null;default:10" json:"points"`
	// Dependencies is an ordered JSON array of package names the
	// solution is allowed to rely on.
	Dependencies datatypes.JSON `gorm:"type:json" json:"dependencies"`
	// Assets holds reference material for the replication target:
	// logo, ui_image, images, font_size, font_family.
	Assets datatypes.JSON `gorm:"type:json" json:"assets"`
	// TestCases is a JSON array of {input, expected_output, is_hidden}
	// entries; input and expected_output are arbitrary JSON values.
	TestCases       datatypes.JSON `gorm:"type:json" json:"test_cases,omitempty"`
	SolutionNotes   string         `gorm:"type:text" json:"solution_notes,omitempty"`
	SubmissionCount int            `gorm:"not null;default:0" json:"submission_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ValidDifficulty reports whether the value is an accepted difficulty.
func ValidDifficulty(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case TaskDifficultyEasy, TaskDifficultyMedium, TaskDifficultyHard:
		return true
	default:
		return false
	}
}

// BeforeSave keeps the case-folded title column in sync so the unique
// index enforces case-insensitive title uniqueness at the store level.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	t.Title = strings.TrimSpace(t.Title)
	t.TitleLower = strings.ToLower(t.Title)
	return nil
}

// AssetsMap decodes the assets document into a mutable map. A missing
// or unreadable document yields an empty map.
func (t Task) AssetsMap() map[string]interface{} {
	assets := map[string]interface{}{}
	if len(t.Assets) == 0 {
		return assets
	}
	if err := json.Unmarshal(t.Assets, &assets); err != nil {
		return map[string]interface{}{}
	}
	return assets
}

// DependenciesSlice decodes the dependencies document, preserving order.
func (t Task) DependenciesSlice() []string {
	if len(t.Dependencies) == 0 {
		return []string{}
	}
	var deps []string
	if err := json.Unmarshal(t.Dependencies, &deps); err != nil {
		return []string{}
	}
	return deps
}
