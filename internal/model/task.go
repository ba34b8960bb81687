package model

import "time"

// Difficulty grades a task or, derived from its tasks, a whole plan.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Task is an atomic unit of work within a study plan.
type Task struct {
	// ID is unique within the owning plan.
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description"`

	// EstimatedHours and ActualHours are never negative.
	EstimatedHours float64 `json:"estimated_hours"`
	ActualHours    float64 `json:"actual_hours"`

	Difficulty Difficulty `json:"difficulty"`

	// Completed and CompletedAt move together: CompletedAt is set iff Completed.
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Order is the position of the task in its plan, contiguous from 0.
	Order int `json:"order"`

	// Prerequisites holds IDs of tasks in the same plan.
	Prerequisites []string `json:"prerequisites,omitempty"`

	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.Prerequisites != nil {
		c.Prerequisites = append([]string(nil), t.Prerequisites...)
	}
	return c
}
