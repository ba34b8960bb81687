// Package plan owns the collection of study plans and the study
// statistics. Every mutation runs on a copy and replaces the stored plan
// only on success, then persists, reschedules reminders and publishes
// events.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nhle/study-planner/internal/event"
	"github.com/nhle/study-planner/internal/model"
	"github.com/nhle/study-planner/internal/progress"
	"github.com/nhle/study-planner/internal/store"
)

// Scheduler is the reminder capability the manager drives.
type Scheduler interface {
	ScheduleFor(plan model.Plan) int
	CancelFor(planID string)
}

// Publisher receives plan events.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event)
}

// Documents persists the plan collection and statistics.
type Documents interface {
	LoadPlans(ctx context.Context) ([]model.Plan, error)
	SavePlans(ctx context.Context, plans []model.Plan) error
	LoadStats(ctx context.Context) (model.StudyStats, bool, error)
	SaveStats(ctx context.Context, stats model.StudyStats) error
}

// Config collects the Manager's collaborators.
type Config struct {
	Documents Documents
	Scheduler Scheduler
	Events    Publisher
	Clock     clockwork.Clock
	Location  *time.Location
	Logger    *slog.Logger
}

// Manager is the plan store.
type Manager struct {
	mu    sync.Mutex
	plans []model.Plan
	stats model.StudyStats

	docs      Documents
	scheduler Scheduler
	events    Publisher
	clock     clockwork.Clock
	loc       *time.Location
	logger    *slog.Logger
}

// NewManager creates an empty manager. Call Load to restore saved state.
func NewManager(cfg Config) *Manager {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Manager{
		plans:     []model.Plan{},
		docs:      cfg.Documents,
		scheduler: cfg.Scheduler,
		events:    cfg.Events,
		clock:     cfg.Clock,
		loc:       loc,
		logger:    cfg.Logger,
	}
}

// today returns midnight of the current local day.
func (m *Manager) today() time.Time {
	return model.DateOf(m.clock.Now(), m.loc)
}

// Load restores plans and statistics and schedules reminders for every
// active plan. A storage failure leaves the manager empty and is reported
// through a StorageFailed event; the session still works in memory.
func (m *Manager) Load(ctx context.Context) error {
	var evs []event.Event

	plans, err := m.docs.LoadPlans(ctx)
	if err != nil {
		m.logger.Error("loading plans", slog.String("error", err.Error()))
		evs = append(evs, event.Event{Kind: event.StorageFailed, Err: err})
		plans = []model.Plan{}
	}
	stats, _, err := m.docs.LoadStats(ctx)
	if err != nil {
		m.logger.Error("loading statistics", slog.String("error", err.Error()))
		evs = append(evs, event.Event{Kind: event.StorageFailed, Err: err})
	}

	m.mu.Lock()
	for i := range plans {
		plans[i].Tasks = normalizeTasks(plans[i].Tasks)
		m.refreshDerived(&plans[i], m.clock.Now())
		if plans[i].Subject == "" {
			plans[i].Subject = DefaultSubject
		}
	}
	m.plans = plans
	m.stats = stats
	m.recountLocked()
	for _, p := range m.plans {
		m.scheduler.ScheduleFor(p)
	}
	n := len(m.plans)
	m.mu.Unlock()

	m.logger.Info("plans loaded", slog.Int("count", n))
	m.publish(ctx, evs)
	return nil
}

// CreatePlan validates in, stores a new plan and schedules its reminders.
func (m *Manager) CreatePlan(ctx context.Context, in PlanInput) (*model.Plan, error) {
	title := model.SanitizeText(in.Title)
	if title == "" {
		return nil, fmt.Errorf("creating plan: title is required: %w", model.ErrValidation)
	}

	now := m.clock.Now()
	subject := model.SanitizeText(in.Subject)
	if subject == "" {
		subject = DefaultSubject
	}
	reminders := defaultReminders()
	if in.Reminders != nil {
		reminders = coerceReminders(*in.Reminders)
	}

	p := model.Plan{
		ID:             uuid.New().String(),
		Title:          title,
		Subject:        subject,
		Description:    model.SanitizeText(in.Description),
		StartDate:      parseStart(in.StartDate, m.today(), m.loc),
		Deadline:       parseDeadline(in.Deadline, m.loc),
		Priority:       coercePriority(in.Priority),
		Status:         model.PlanStatusActive,
		EstimatedHours: nonNegative(in.EstimatedHours),
		Reminders:      reminders,
		Tasks:          normalizeTasks(buildTasks(in.Tasks, now)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p.Tags = ExtractTags(p.Title + " " + p.Description)

	m.mu.Lock()
	stats := m.stats.Clone()
	m.recompute(&p, false, &stats, now)
	m.plans = append(m.plans, p)
	m.stats = stats
	m.recountLocked()

	evs := []event.Event{{Kind: event.PlanCreated, PlanID: p.ID, Plan: clonePtr(p)}}
	if p.IsCompleted() {
		evs = append(evs, event.Event{Kind: event.PlanCompleted, PlanID: p.ID, Plan: clonePtr(p)})
	}
	evs = append(evs, m.persistLocked(ctx)...)
	m.scheduler.ScheduleFor(p)
	m.mu.Unlock()

	m.logger.Info("plan created", slog.String("plan_id", p.ID), slog.Int("tasks", len(p.Tasks)))
	m.publish(ctx, evs)
	return clonePtr(p), nil
}

// UpdatePlan applies patch to the plan with the given id.
func (m *Manager) UpdatePlan(ctx context.Context, id string, patch PlanPatch) (*model.Plan, error) {
	now := m.clock.Now()

	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("updating plan %s: %w", id, model.ErrNotFound)
	}
	p := m.plans[idx].Clone()

	if patch.Title != nil {
		if t := model.SanitizeText(*patch.Title); t != "" {
			p.Title = t
		}
	}
	if patch.Subject != nil {
		p.Subject = model.SanitizeText(*patch.Subject)
		if p.Subject == "" {
			p.Subject = DefaultSubject
		}
	}
	if patch.Description != nil {
		p.Description = model.SanitizeText(*patch.Description)
	}
	if patch.StartDate != nil {
		p.StartDate = parseStart(*patch.StartDate, m.today(), m.loc)
	}
	if patch.Deadline != nil {
		p.Deadline = parseDeadline(*patch.Deadline, m.loc)
	}
	if patch.Priority != nil {
		p.Priority = coercePriority(*patch.Priority)
	}
	if patch.EstimatedHours != nil {
		p.EstimatedHours = nonNegative(*patch.EstimatedHours)
	}
	if patch.Reminders != nil {
		p.Reminders = coerceReminders(*patch.Reminders)
	}
	if patch.Tasks != nil {
		p.Tasks = buildTasks(*patch.Tasks, now)
	}
	p.Tasks = normalizeTasks(p.Tasks)
	p.Tags = ExtractTags(p.Title + " " + p.Description)
	p.UpdatedAt = now

	stats := m.stats.Clone()
	evs := m.recompute(&p, true, &stats, now)
	m.plans[idx] = p
	m.stats = stats
	m.recountLocked()

	evs = append([]event.Event{{Kind: event.PlanUpdated, PlanID: p.ID, Plan: clonePtr(p)}}, evs...)
	evs = append(evs, m.persistLocked(ctx)...)
	m.scheduler.ScheduleFor(p)
	m.mu.Unlock()

	m.publish(ctx, evs)
	return clonePtr(p), nil
}

// DeletePlan removes the plan and cancels its reminders.
func (m *Manager) DeletePlan(ctx context.Context, id string) error {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("deleting plan %s: %w", id, model.ErrNotFound)
	}
	m.plans = append(m.plans[:idx:idx], m.plans[idx+1:]...)
	m.recountLocked()

	evs := []event.Event{{Kind: event.PlanDeleted, PlanID: id}}
	evs = append(evs, m.persistLocked(ctx)...)
	m.scheduler.CancelFor(id)
	m.mu.Unlock()

	m.logger.Info("plan deleted", slog.String("plan_id", id))
	m.publish(ctx, evs)
	return nil
}

// GetPlan returns a copy of the plan.
func (m *Manager) GetPlan(id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexLocked(id)
	if idx < 0 {
		return nil, fmt.Errorf("getting plan %s: %w", id, model.ErrNotFound)
	}
	return clonePtr(m.plans[idx]), nil
}

// ListPlans returns copies of every plan in insertion order.
func (m *Manager) ListPlans() []model.Plan {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Plan, len(m.plans))
	for i, p := range m.plans {
		out[i] = p.Clone()
	}
	return out
}

// Statistics returns a copy of the study statistics.
func (m *Manager) Statistics() model.StudyStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.Clone()
}

// RecomputeStats recounts the statistics from the plan collection and
// persists them.
func (m *Manager) RecomputeStats(ctx context.Context) {
	m.mu.Lock()
	m.recountLocked()
	evs := m.saveStatsLocked(ctx)
	m.mu.Unlock()

	m.publish(ctx, evs)
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.plans {
		if m.plans[i].ID == id {
			return i
		}
	}
	return -1
}

// refreshDerived recomputes progress, difficulty and milestones without
// any completion side effects. Already achieved milestones stay achieved.
func (m *Manager) refreshDerived(p *model.Plan, now time.Time) []model.Milestone {
	prev := p.Milestones
	p.Progress = progress.ComputeProgress(p.Tasks)
	p.Difficulty = progress.ComputeDifficulty(p.Tasks)

	fresh := progress.DeriveMilestones(p.Tasks)
	progress.AssignTargetDates(fresh, p.StartDate, p.Deadline)

	was := make(map[int]model.Milestone, len(prev))
	for _, ms := range prev {
		was[ms.Percentage] = ms
	}

	var reached []model.Milestone
	for i := range fresh {
		old, existed := was[fresh[i].Percentage]
		switch {
		case existed && old.Achieved:
			fresh[i].Achieved = true
			fresh[i].AchievedAt = old.AchievedAt
		case fresh[i].Achieved:
			at := now
			fresh[i].AchievedAt = &at
			reached = append(reached, fresh[i])
		}
	}
	if p.IsCompleted() {
		for i := range fresh {
			if !fresh[i].Achieved {
				at := now
				fresh[i].Achieved = true
				fresh[i].AchievedAt = &at
			}
		}
	}
	p.Milestones = fresh
	return reached
}

// recompute refreshes derived fields and completes the plan when it
// reached 100%. With announce set, the returned events report newly
// reached milestones and the completion.
func (m *Manager) recompute(p *model.Plan, announce bool, stats *model.StudyStats, now time.Time) []event.Event {
	reached := m.refreshDerived(p, now)

	var evs []event.Event
	if announce {
		for _, ms := range reached {
			evs = append(evs, event.Event{
				Kind:      event.MilestoneAchieved,
				PlanID:    p.ID,
				Plan:      clonePtr(*p),
				Milestone: &ms,
			})
		}
	}

	if p.Progress == 100 && !p.IsCompleted() {
		m.completePlan(p, stats, now)
		if announce {
			evs = append(evs, event.Event{Kind: event.PlanCompleted, PlanID: p.ID, Plan: clonePtr(*p)})
		}
	}
	return evs
}

// completePlan moves p to its terminal state. It never runs twice for a plan.
func (m *Manager) completePlan(p *model.Plan, stats *model.StudyStats, now time.Time) {
	p.Status = model.PlanStatusCompleted
	at := now
	p.CompletedAt = &at
	for i := range p.Milestones {
		if !p.Milestones[i].Achieved {
			p.Milestones[i].Achieved = true
			p.Milestones[i].AchievedAt = &at
		}
	}

	stats.CompletedPlans++
	m.studiedToday(stats, now)
	stats.Achievements = append(stats.Achievements, model.Achievement{
		ID:          "plan_completed_" + p.ID,
		Type:        model.AchievementPlanCompleted,
		Title:       "Plan Completed!",
		Description: fmt.Sprintf("Completed %q", p.Title),
		PlanID:      p.ID,
		EarnedAt:    now,
	})

	m.logger.Info("plan completed", slog.String("plan_id", p.ID))
}

// studiedToday extends the streak and records any streak achievements.
func (m *Manager) studiedToday(stats *model.StudyStats, now time.Time) {
	*stats = progress.UpdateStreak(*stats, model.DateOf(now, m.loc))
	stats.Achievements = append(stats.Achievements, progress.StreakAchievements(*stats, now)...)
}

// recountLocked rebuilds the aggregate counters from the plans.
func (m *Manager) recountLocked() {
	var total, done, completedPlans int
	var hours float64
	for _, p := range m.plans {
		total += len(p.Tasks)
		for _, t := range p.Tasks {
			if t.Completed {
				done++
			}
			hours += t.ActualHours
		}
		if p.IsCompleted() {
			completedPlans++
		}
	}
	m.stats.TotalTasks = total
	m.stats.CompletedTasks = done
	m.stats.CompletedPlans = completedPlans
	m.stats.TotalStudyTime = hours
}

// persistLocked writes plans and stats. Failures are logged and returned
// as StorageFailed events; in-memory state stays authoritative.
func (m *Manager) persistLocked(ctx context.Context) []event.Event {
	var evs []event.Event
	plans := m.plans
	if err := m.retrySave(ctx, func() error { return m.docs.SavePlans(ctx, plans) }); err != nil {
		m.logger.Error("saving plans", slog.String("error", err.Error()))
		evs = append(evs, event.Event{Kind: event.StorageFailed, Err: err})
	}
	return append(evs, m.saveStatsLocked(ctx)...)
}

func (m *Manager) saveStatsLocked(ctx context.Context) []event.Event {
	stats := m.stats
	if err := m.retrySave(ctx, func() error { return m.docs.SaveStats(ctx, stats) }); err != nil {
		m.logger.Error("saving statistics", slog.String("error", err.Error()))
		return []event.Event{{Kind: event.StorageFailed, Err: err}}
	}
	return nil
}

// retrySave runs save once more after a quota error, which frees space
// by dropping backups.
func (m *Manager) retrySave(ctx context.Context, save func() error) error {
	err := save()
	if errors.Is(err, store.ErrQuotaExceeded) && ctx.Err() == nil {
		m.logger.Warn("retrying save after quota error")
		err = save()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	return nil
}

func (m *Manager) publish(ctx context.Context, evs []event.Event) {
	if m.events == nil {
		return
	}
	for _, ev := range evs {
		m.events.Publish(ctx, ev)
	}
}

func clonePtr(p model.Plan) *model.Plan {
	c := p.Clone()
	return &c
}
