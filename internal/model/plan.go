package model

import "time"

// Priority of a study plan.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities so that high > medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Plan status constants. Completed is terminal.
const (
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
)

// ReminderFrequency selects which recurring study reminders a plan gets.
type ReminderFrequency string

const (
	FrequencyDaily  ReminderFrequency = "daily"
	FrequencyWeekly ReminderFrequency = "weekly"
	FrequencyNone   ReminderFrequency = "none"
)

// DefaultReminderHour is used when a plan does not configure one.
const DefaultReminderHour = 18

// ReminderSettings configures reminder generation for one plan.
type ReminderSettings struct {
	Frequency ReminderFrequency `json:"frequency"`

	// Hour is the local hour of day (0-23) at which reminders fire.
	Hour int `json:"hour"`

	Enabled bool `json:"enabled"`
}

// Milestone is a derived progress checkpoint over a plan's tasks.
type Milestone struct {
	Percentage  int        `json:"percentage"`
	Description string     `json:"description"`
	Achieved    bool       `json:"achieved"`
	AchievedAt  *time.Time `json:"achieved_at,omitempty"`

	// TargetDate is the day by which the milestone should be reached,
	// interpolated over the plan's start..deadline span. Nil without a deadline.
	TargetDate *time.Time `json:"target_date,omitempty"`
}

// Plan is a study goal with a deadline and an ordered set of tasks.
type Plan struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`

	// StartDate and Deadline are calendar dates (midnight, local location).
	StartDate time.Time  `json:"start_date"`
	Deadline  *time.Time `json:"deadline,omitempty"`

	Priority Priority `json:"priority"`
	Status   string   `json:"status"`

	// Progress is derived from Tasks and never set directly.
	Progress int `json:"progress"`

	EstimatedHours float64 `json:"estimated_hours"`
	ActualHours    float64 `json:"actual_hours"`

	Reminders ReminderSettings `json:"reminder_settings"`

	Tasks      []Task      `json:"tasks"`
	Difficulty Difficulty  `json:"difficulty"`
	Milestones []Milestone `json:"milestones"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastStudiedAt *time.Time `json:"last_studied_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// IsCompleted reports whether the plan reached its terminal state.
func (p Plan) IsCompleted() bool { return p.Status == PlanStatusCompleted }

// CompletedTaskCount returns how many tasks are marked completed.
func (p Plan) CompletedTaskCount() int {
	n := 0
	for _, t := range p.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// TaskIndex returns the index of the task with the given ID, or -1.
func (p Plan) TaskIndex(taskID string) int {
	for i, t := range p.Tasks {
		if t.ID == taskID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the plan so callers cannot mutate shared state.
func (p Plan) Clone() Plan {
	c := p
	c.Tags = append([]string(nil), p.Tags...)
	c.Deadline = cloneTime(p.Deadline)
	c.LastStudiedAt = cloneTime(p.LastStudiedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)

	if p.Tasks != nil {
		c.Tasks = make([]Task, len(p.Tasks))
		for i, t := range p.Tasks {
			c.Tasks[i] = t.Clone()
		}
	}
	if p.Milestones != nil {
		c.Milestones = make([]Milestone, len(p.Milestones))
		for i, m := range p.Milestones {
			m.AchievedAt = cloneTime(m.AchievedAt)
			m.TargetDate = cloneTime(m.TargetDate)
			c.Milestones[i] = m
		}
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
