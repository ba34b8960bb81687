package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/study-planner/internal/event"
	"github.com/nhle/study-planner/internal/model"
)

// StudySession records time spent on a plan, optionally on one task.
type StudySession struct {
	PlanID string
	TaskID string
	Hours  float64
	Notes  string
}

// planOp mutates a copy of a plan and returns the events it wants
// published after the derived-field events.
type planOp func(p *model.Plan, stats *model.StudyStats, now time.Time) ([]event.Event, error)

// mutate runs op on a copy of the plan and commits it when op succeeds.
func (m *Manager) mutate(ctx context.Context, planID string, op planOp) (*model.Plan, error) {
	now := m.clock.Now()

	m.mu.Lock()
	idx := m.indexLocked(planID)
	if idx < 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("plan %s: %w", planID, model.ErrNotFound)
	}
	p := m.plans[idx].Clone()
	stats := m.stats.Clone()

	tail, err := op(&p, &stats, now)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	p.UpdatedAt = now
	evs := m.recompute(&p, true, &stats, now)
	m.plans[idx] = p
	m.stats = stats
	m.recountLocked()

	for i := range tail {
		tail[i].Plan = clonePtr(p)
	}
	evs = append(evs, tail...)
	evs = append(evs, m.persistLocked(ctx)...)
	m.scheduler.ScheduleFor(p)
	m.mu.Unlock()

	m.publish(ctx, evs)
	return clonePtr(p), nil
}

func taskNotFound(planID, taskID string) error {
	return fmt.Errorf("task %s in plan %s: %w", taskID, planID, model.ErrNotFound)
}

// ToggleTaskCompletion flips a task between done and not done. Completing
// the last open task completes the plan; un-completing a task of a
// completed plan leaves the plan completed.
func (m *Manager) ToggleTaskCompletion(ctx context.Context, planID, taskID string) (*model.Task, error) {
	var toggled model.Task
	_, err := m.mutate(ctx, planID, func(p *model.Plan, stats *model.StudyStats, now time.Time) ([]event.Event, error) {
		ti := p.TaskIndex(taskID)
		if ti < 0 {
			return nil, taskNotFound(planID, taskID)
		}
		t := &p.Tasks[ti]
		t.Completed = !t.Completed
		if t.Completed {
			at := now
			t.CompletedAt = &at
			p.LastStudiedAt = &at
			m.studiedToday(stats, now)
		} else {
			t.CompletedAt = nil
		}
		toggled = t.Clone()
		return []event.Event{{Kind: event.TaskToggled, PlanID: planID, Task: &toggled}}, nil
	})
	if err != nil {
		return nil, err
	}
	out := toggled.Clone()
	return &out, nil
}

// AddTask appends a task, or inserts it at in.Order.
func (m *Manager) AddTask(ctx context.Context, planID string, in TaskInput) (*model.Task, error) {
	var added model.Task
	_, err := m.mutate(ctx, planID, func(p *model.Plan, _ *model.StudyStats, now time.Time) ([]event.Event, error) {
		in.ID = ""
		t, ok := buildTask(in, now)
		if !ok {
			return nil, fmt.Errorf("adding task: title is required: %w", model.ErrValidation)
		}
		if in.Order != nil && *in.Order >= 0 {
			// Shift later tasks so the new one lands at the requested slot.
			for i := range p.Tasks {
				if p.Tasks[i].Order >= t.Order {
					p.Tasks[i].Order++
				}
			}
		}
		p.Tasks = normalizeTasks(append(p.Tasks, t))
		added = p.Tasks[p.TaskIndex(t.ID)].Clone()
		return []event.Event{{Kind: event.TaskAdded, PlanID: planID, Task: &added}}, nil
	})
	if err != nil {
		return nil, err
	}
	out := added.Clone()
	return &out, nil
}

// UpdateTask applies patch to a task.
func (m *Manager) UpdateTask(ctx context.Context, planID, taskID string, patch TaskPatch) (*model.Task, error) {
	var updated model.Task
	_, err := m.mutate(ctx, planID, func(p *model.Plan, _ *model.StudyStats, _ time.Time) ([]event.Event, error) {
		ti := p.TaskIndex(taskID)
		if ti < 0 {
			return nil, taskNotFound(planID, taskID)
		}
		t := &p.Tasks[ti]
		if patch.Title != nil {
			if title := model.SanitizeText(*patch.Title); title != "" {
				t.Title = title
			}
		}
		if patch.Description != nil {
			t.Description = model.SanitizeText(*patch.Description)
		}
		if patch.EstimatedHours != nil {
			t.EstimatedHours = nonNegative(*patch.EstimatedHours)
		}
		if patch.ActualHours != nil {
			t.ActualHours = nonNegative(*patch.ActualHours)
		}
		if patch.Difficulty != nil {
			t.Difficulty = coerceDifficulty(*patch.Difficulty)
		}
		if patch.Prerequisites != nil {
			t.Prerequisites = append([]string(nil), (*patch.Prerequisites)...)
		}
		if patch.Notes != nil {
			t.Notes = model.SanitizeText(*patch.Notes)
		}
		if patch.Order != nil && *patch.Order != t.Order {
			moveTask(p.Tasks, ti, *patch.Order)
		}
		p.Tasks = normalizeTasks(p.Tasks)
		updated = p.Tasks[p.TaskIndex(taskID)].Clone()
		return []event.Event{{Kind: event.TaskUpdated, PlanID: planID, Task: &updated}}, nil
	})
	if err != nil {
		return nil, err
	}
	out := updated.Clone()
	return &out, nil
}

// moveTask gives tasks[from] the target order and shifts the tasks in
// between by one, leaving orders ready for normalizeTasks.
func moveTask(tasks []model.Task, from, to int) {
	to = max(0, min(to, len(tasks)-1))
	cur := tasks[from].Order
	for i := range tasks {
		o := tasks[i].Order
		switch {
		case i == from:
			continue
		case cur < to && o > cur && o <= to:
			tasks[i].Order--
		case cur > to && o >= to && o < cur:
			tasks[i].Order++
		}
	}
	tasks[from].Order = to
}

// DeleteTask removes a task and reindexes the remaining ones.
func (m *Manager) DeleteTask(ctx context.Context, planID, taskID string) error {
	_, err := m.mutate(ctx, planID, func(p *model.Plan, _ *model.StudyStats, _ time.Time) ([]event.Event, error) {
		ti := p.TaskIndex(taskID)
		if ti < 0 {
			return nil, taskNotFound(planID, taskID)
		}
		removed := p.Tasks[ti].Clone()
		p.Tasks = append(p.Tasks[:ti:ti], p.Tasks[ti+1:]...)
		for i := range p.Tasks {
			p.Tasks[i].Prerequisites = removeString(p.Tasks[i].Prerequisites, taskID)
		}
		p.Tasks = normalizeTasks(p.Tasks)
		return []event.Event{{Kind: event.TaskDeleted, PlanID: planID, Task: &removed}}, nil
	})
	return err
}

// RecordStudySession adds studied hours to the plan and, when given, to
// one of its tasks, appending a timestamped note.
func (m *Manager) RecordStudySession(ctx context.Context, s StudySession) (*model.Plan, error) {
	if s.Hours < 0 {
		return nil, fmt.Errorf("recording session: negative duration: %w", model.ErrValidation)
	}
	return m.mutate(ctx, s.PlanID, func(p *model.Plan, stats *model.StudyStats, now time.Time) ([]event.Event, error) {
		if s.TaskID != "" {
			ti := p.TaskIndex(s.TaskID)
			if ti < 0 {
				return nil, taskNotFound(s.PlanID, s.TaskID)
			}
			t := &p.Tasks[ti]
			t.ActualHours += s.Hours
			if note := model.SanitizeText(s.Notes); note != "" {
				entry := fmt.Sprintf("%s: %s", now.In(m.loc).Format("2006-01-02 15:04"), note)
				if t.Notes == "" {
					t.Notes = entry
				} else {
					t.Notes += "\n" + entry
				}
			}
		}
		p.ActualHours += s.Hours
		at := now
		p.LastStudiedAt = &at
		m.studiedToday(stats, now)
		return []event.Event{{Kind: event.PlanUpdated, PlanID: p.ID}}, nil
	})
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
