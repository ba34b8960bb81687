package plan

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/study-planner/internal/model"
)

// DefaultSubject is used when a plan has none.
const DefaultSubject = "general"

const maxTags = 10

// PlanInput is the user-supplied data for a new plan. Malformed values are
// coerced to safe defaults rather than rejected; only a missing title fails.
type PlanInput struct {
	Title       string
	Subject     string
	Description string

	// StartDate and Deadline are YYYY-MM-DD. An unparseable start date
	// becomes today and an unparseable deadline is dropped.
	StartDate string
	Deadline  string

	Priority       string
	EstimatedHours float64

	// Reminders defaults to daily reminders at DefaultReminderHour.
	Reminders *model.ReminderSettings

	Tasks []TaskInput
}

// PlanPatch changes selected fields of a plan. Nil fields are left alone.
type PlanPatch struct {
	Title       *string
	Subject     *string
	Description *string
	StartDate   *string

	// Deadline set to "" clears the deadline.
	Deadline *string

	Priority       *string
	EstimatedHours *float64
	Reminders      *model.ReminderSettings

	// Tasks replaces the whole task list when non-nil.
	Tasks *[]TaskInput
}

// TaskInput is the user-supplied data for a task.
type TaskInput struct {
	// ID keeps an existing task's identity; empty assigns a new one.
	ID string

	Title       string
	Description string

	// EstimatedHours defaults to 1 when nil.
	EstimatedHours *float64
	ActualHours    float64

	Difficulty string
	Completed  bool

	// Order positions the task; nil appends it.
	Order *int

	Prerequisites []string
	Notes         string
}

// TaskPatch changes selected fields of a task.
type TaskPatch struct {
	Title          *string
	Description    *string
	EstimatedHours *float64
	ActualHours    *float64
	Difficulty     *string
	Order          *int
	Prerequisites  *[]string
	Notes          *string
}

func defaultReminders() model.ReminderSettings {
	return model.ReminderSettings{
		Frequency: model.FrequencyDaily,
		Hour:      model.DefaultReminderHour,
		Enabled:   true,
	}
}

func coerceReminders(r model.ReminderSettings) model.ReminderSettings {
	switch r.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyNone:
	default:
		r.Frequency = model.FrequencyDaily
	}
	if r.Hour < 0 || r.Hour > 23 {
		r.Hour = model.DefaultReminderHour
	}
	return r
}

func coercePriority(s string) model.Priority {
	p := model.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return model.PriorityMedium
	}
	return p
}

func coerceDifficulty(s string) model.Difficulty {
	d := model.Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return model.DifficultyMedium
	}
	return d
}

func nonNegative(v float64) float64 {
	return max(v, 0)
}

// parseStart returns the start date, or today when s is unparseable.
func parseStart(s string, today time.Time, loc *time.Location) time.Time {
	d, err := model.ParseDate(strings.TrimSpace(s), loc)
	if err != nil {
		return today
	}
	return d
}

// parseDeadline returns the deadline, or nil when s is empty or unparseable.
func parseDeadline(s string, loc *time.Location) *time.Time {
	d, err := model.ParseDate(strings.TrimSpace(s), loc)
	if err != nil {
		return nil
	}
	return &d
}

// buildTask turns input into a task with a fresh or kept id.
func buildTask(in TaskInput, now time.Time) (model.Task, bool) {
	title := model.SanitizeText(in.Title)
	if title == "" {
		return model.Task{}, false
	}

	est := 1.0
	if in.EstimatedHours != nil {
		est = nonNegative(*in.EstimatedHours)
	}

	t := model.Task{
		ID:             strings.TrimSpace(in.ID),
		Title:          title,
		Description:    model.SanitizeText(in.Description),
		EstimatedHours: est,
		ActualHours:    nonNegative(in.ActualHours),
		Difficulty:     coerceDifficulty(in.Difficulty),
		Completed:      in.Completed,
		Order:          -1,
		Prerequisites:  append([]string(nil), in.Prerequisites...),
		Notes:          model.SanitizeText(in.Notes),
		CreatedAt:      now,
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if in.Order != nil && *in.Order >= 0 {
		t.Order = *in.Order
	}
	if t.Completed {
		at := now
		t.CompletedAt = &at
	}
	return t, true
}

// buildTasks converts a list of inputs, dropping those without a title.
// A repeated id is replaced with a fresh one.
func buildTasks(ins []TaskInput, now time.Time) []model.Task {
	tasks := make([]model.Task, 0, len(ins))
	seen := make(map[string]bool, len(ins))
	for _, in := range ins {
		t, ok := buildTask(in, now)
		if !ok {
			continue
		}
		if seen[t.ID] {
			t.ID = uuid.New().String()
		}
		seen[t.ID] = true
		tasks = append(tasks, t)
	}
	return tasks
}

// normalizeTasks sorts tasks by order (tasks without one keep their
// position at the end), reindexes orders to 0..n-1 and prunes
// prerequisites that do not name another task of the list.
func normalizeTasks(tasks []model.Task) []model.Task {
	if tasks == nil {
		return []model.Task{}
	}
	for i := range tasks {
		if tasks[i].Order < 0 {
			tasks[i].Order = len(tasks) + i
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Order < tasks[j].Order
	})

	ids := make(map[string]bool, len(tasks))
	for i := range tasks {
		tasks[i].Order = i
		ids[tasks[i].ID] = true
	}
	for i := range tasks {
		t := &tasks[i]
		t.Prerequisites = slices.DeleteFunc(t.Prerequisites, func(id string) bool {
			return id == t.ID || !ids[id]
		})
	}
	return tasks
}

var stopWords = map[string]bool{
	"the": true, "and": true, "or": true, "but": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "a": true, "an": true,
}

// ExtractTags derives up to ten search tags from free text.
func ExtractTags(text string) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) <= 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
