package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/study-planner/internal/event"
	"github.com/nhle/study-planner/internal/model"
	"github.com/nhle/study-planner/internal/store"
)

type fakeDocs struct {
	mu        sync.Mutex
	plans     []model.Plan
	stats     model.StudyStats
	saveErrs  []error // consumed one per SavePlans call
	saveCalls int
	loadErr   error
}

func (d *fakeDocs) LoadPlans(context.Context) ([]model.Plan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	out := make([]model.Plan, len(d.plans))
	for i, p := range d.plans {
		out[i] = p.Clone()
	}
	return out, nil
}

func (d *fakeDocs) SavePlans(_ context.Context, plans []model.Plan) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saveCalls++
	if len(d.saveErrs) > 0 {
		err := d.saveErrs[0]
		d.saveErrs = d.saveErrs[1:]
		if err != nil {
			return err
		}
	}
	d.plans = make([]model.Plan, len(plans))
	for i, p := range plans {
		d.plans[i] = p.Clone()
	}
	return nil
}

func (d *fakeDocs) LoadStats(context.Context) (model.StudyStats, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats.Clone(), true, nil
}

func (d *fakeDocs) SaveStats(_ context.Context, stats model.StudyStats) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = stats.Clone()
	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (s *fakeScheduler) ScheduleFor(p model.Plan) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, p.ID)
	return 0
}

func (s *fakeScheduler) CancelFor(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, planID)
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(_ context.Context, ev event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) count(k event.Kind) int {
	n := 0
	for _, got := range r.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fixture struct {
	m     *Manager
	docs  *fakeDocs
	sched *fakeScheduler
	rec   *recorder
	clock *clockwork.FakeClock
}

// Friday 2025-10-10, 10:00 UTC.
var fixtureNow = time.Date(2025, 10, 10, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		docs:  &fakeDocs{},
		sched: &fakeScheduler{},
		rec:   &recorder{},
		clock: clockwork.NewFakeClockAt(fixtureNow),
	}
	bus := event.NewBus(logger)
	bus.Subscribe(f.rec.handle)
	f.m = NewManager(Config{
		Documents: f.docs,
		Scheduler: f.sched,
		Events:    bus,
		Clock:     f.clock,
		Location:  time.UTC,
		Logger:    logger,
	})
	return f
}

func hours(v float64) *float64 { return &v }

func fourTasks(done int) []TaskInput {
	diffs := []string{"easy", "medium", "hard", "hard"}
	tasks := make([]TaskInput, 4)
	for i := range tasks {
		tasks[i] = TaskInput{
			Title:          fmt.Sprintf("Chapter %d", i+1),
			EstimatedHours: hours(2),
			Difficulty:     diffs[i],
			Completed:      i < done,
		}
	}
	return tasks
}

func (f *fixture) create(t *testing.T, done int) *model.Plan {
	t.Helper()
	p, err := f.m.CreatePlan(context.Background(), PlanInput{
		Title:       "Organic Chemistry",
		Subject:     "chemistry",
		Description: "Reactions and mechanisms for the final exam",
		StartDate:   "2025-09-15",
		Deadline:    "2025-12-15",
		Priority:    "high",
		Tasks:       fourTasks(done),
	})
	require.NoError(t, err)
	return p
}

func TestCreatePlan_Scenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.create(t, 2)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, 50, p.Progress)
	assert.Equal(t, model.DifficultyMedium, p.Difficulty, "scores 1,2,3,3 average 2.25")
	assert.Equal(t, model.PlanStatusActive, p.Status)
	assert.Equal(t, model.PriorityHigh, p.Priority)
	assert.Equal(t, time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC), p.StartDate)
	require.NotNil(t, p.Deadline)
	assert.Equal(t, time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), *p.Deadline)

	require.Len(t, p.Milestones, 4)
	achieved := map[int]bool{}
	for _, ms := range p.Milestones {
		achieved[ms.Percentage] = ms.Achieved
		require.NotNil(t, ms.TargetDate)
	}
	assert.Equal(t, map[int]bool{25: true, 50: true, 75: false, 100: false}, achieved)
	assert.Equal(t, *p.Deadline, *p.Milestones[3].TargetDate)

	for i, task := range p.Tasks {
		assert.Equal(t, i, task.Order)
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, task.Completed, task.CompletedAt != nil)
	}

	assert.Contains(t, p.Tags, "organic")
	assert.Contains(t, p.Tags, "reactions")
	assert.NotContains(t, p.Tags, "and")

	assert.Equal(t, []event.Kind{event.PlanCreated}, f.rec.kinds())
	assert.Equal(t, []string{p.ID}, f.sched.scheduled)

	stats := f.m.Statistics()
	assert.Equal(t, 4, stats.TotalTasks)
	assert.Equal(t, 2, stats.CompletedTasks)

	require.Len(t, f.docs.plans, 1, "persisted")
}

func TestCreatePlan_CoercesInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p, err := f.m.CreatePlan(context.Background(), PlanInput{
		Title:     "  <b>Physics</b>  ",
		StartDate: "not a date",
		Deadline:  "31/12/2025",
		Priority:  "urgent",
		Reminders: &model.ReminderSettings{Frequency: "hourly", Hour: 42, Enabled: true},
		Tasks:     []TaskInput{{Title: "  "}, {Title: "Kinematics", EstimatedHours: hours(-3), Difficulty: "brutal"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "bPhysics/b", p.Title)
	assert.Equal(t, DefaultSubject, p.Subject)
	assert.Equal(t, time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC), p.StartDate, "bad start date becomes today")
	assert.Nil(t, p.Deadline)
	assert.Equal(t, model.PriorityMedium, p.Priority)
	assert.Equal(t, model.FrequencyDaily, p.Reminders.Frequency)
	assert.Equal(t, model.DefaultReminderHour, p.Reminders.Hour)

	require.Len(t, p.Tasks, 1)
	assert.Zero(t, p.Tasks[0].EstimatedHours)
	assert.Equal(t, model.DifficultyMedium, p.Tasks[0].Difficulty)

	empty, err := f.m.CreatePlan(context.Background(), PlanInput{Title: "Empty"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Tasks)
	assert.Empty(t, empty.Tasks)
	assert.Zero(t, empty.Progress)

	_, err = f.m.CreatePlan(context.Background(), PlanInput{Title: "<>"})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestDeleteTask_Reindexes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.create(t, 2)
	target := p.Tasks[1]

	require.NoError(t, f.m.DeleteTask(context.Background(), p.ID, target.ID))

	got, err := f.m.GetPlan(p.ID)
	require.NoError(t, err)
	require.Len(t, got.Tasks, 3)
	for i, task := range got.Tasks {
		assert.Equal(t, i, task.Order)
		assert.NotEqual(t, target.ID, task.ID)
	}
	assert.Equal(t, 33, got.Progress, "one of three tasks remains done")
	assert.Equal(t, 3, f.m.Statistics().TotalTasks)
	assert.Contains(t, f.rec.kinds(), event.TaskDeleted)
}

func TestToggleTaskCompletion_CompletesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 2)
	f.rec.reset()

	_, err := f.m.ToggleTaskCompletion(ctx, p.ID, p.Tasks[2].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rec.count(event.MilestoneAchieved), "75 percent reached")
	assert.Zero(t, f.rec.count(event.PlanCompleted))

	task, err := f.m.ToggleTaskCompletion(ctx, p.ID, p.Tasks[3].ID)
	require.NoError(t, err)
	assert.True(t, task.Completed)
	require.NotNil(t, task.CompletedAt)

	got, err := f.m.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, model.PlanStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	for _, ms := range got.Milestones {
		assert.True(t, ms.Achieved)
	}
	assert.Equal(t, 1, f.rec.count(event.PlanCompleted))

	kinds := f.rec.kinds()
	assert.Equal(t, event.TaskToggled, kinds[len(kinds)-1], "task event follows completion")

	stats := f.m.Statistics()
	assert.Equal(t, 1, stats.CompletedPlans)
	assert.Equal(t, 4, stats.CompletedTasks)
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, "2025-10-10", stats.LastStudyDate)
	require.Len(t, stats.Achievements, 1)
	assert.Equal(t, model.AchievementPlanCompleted, stats.Achievements[0].Type)

	// Un-completing a task keeps the plan completed.
	task, err = f.m.ToggleTaskCompletion(ctx, p.ID, p.Tasks[3].ID)
	require.NoError(t, err)
	assert.False(t, task.Completed)
	assert.Nil(t, task.CompletedAt)

	got, err = f.m.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.Progress)
	assert.Equal(t, model.PlanStatusCompleted, got.Status)

	_, err = f.m.ToggleTaskCompletion(ctx, p.ID, p.Tasks[3].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rec.count(event.PlanCompleted), "completion fires exactly once")
	assert.Equal(t, 1, f.m.Statistics().CompletedPlans)
}

func TestToggleTaskCompletion_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 0)
	f.rec.reset()
	saves := f.docs.saveCalls

	_, err := f.m.ToggleTaskCompletion(ctx, "missing", p.Tasks[0].ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.m.ToggleTaskCompletion(ctx, p.ID, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)

	got, err := f.m.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.CompletedTaskCount())
	assert.Empty(t, f.rec.kinds())
	assert.Equal(t, saves, f.docs.saveCalls)
}

func TestUpdatePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 1)
	f.clock.Advance(time.Hour)

	title := "Inorganic Chemistry"
	noDeadline := ""
	weekly := model.ReminderSettings{Frequency: model.FrequencyWeekly, Hour: 9, Enabled: true}
	got, err := f.m.UpdatePlan(ctx, p.ID, PlanPatch{Title: &title, Deadline: &noDeadline, Reminders: &weekly})
	require.NoError(t, err)

	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.Equal(t, fixtureNow.Add(time.Hour), got.UpdatedAt)
	assert.Equal(t, title, got.Title)
	assert.Contains(t, got.Tags, "inorganic")
	assert.Nil(t, got.Deadline)
	assert.Equal(t, weekly, got.Reminders)
	for _, ms := range got.Milestones {
		assert.Nil(t, ms.TargetDate)
	}
	assert.Equal(t, []string{p.ID, p.ID}, f.sched.scheduled)
	assert.Contains(t, f.rec.kinds(), event.PlanUpdated)

	_, err = f.m.UpdatePlan(ctx, "missing", PlanPatch{Title: &title})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdatePlan_ReplacingTasksKeepsAchievedMilestones(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 1)
	require.True(t, p.Milestones[0].Achieved)

	tasks := fourTasks(0)
	got, err := f.m.UpdatePlan(ctx, p.ID, PlanPatch{Tasks: &tasks})
	require.NoError(t, err)

	assert.Zero(t, got.Progress)
	assert.True(t, got.Milestones[0].Achieved, "achieved milestones never revert")
}

func TestDeletePlan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 0)

	require.NoError(t, f.m.DeletePlan(ctx, p.ID))
	assert.Equal(t, []string{p.ID}, f.sched.cancelled)
	assert.Contains(t, f.rec.kinds(), event.PlanDeleted)
	assert.Empty(t, f.m.ListPlans())
	assert.Empty(t, f.docs.plans)

	require.ErrorIs(t, f.m.DeletePlan(ctx, p.ID), model.ErrNotFound)
	_, err := f.m.GetPlan(p.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestAddAndUpdateTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 0)

	first := 0
	added, err := f.m.AddTask(ctx, p.ID, TaskInput{Title: "Warm-up", Order: &first})
	require.NoError(t, err)
	assert.Equal(t, 0, added.Order)
	assert.Equal(t, 1.0, added.EstimatedHours)

	got, _ := f.m.GetPlan(p.ID)
	require.Len(t, got.Tasks, 5)
	assert.Equal(t, "Warm-up", got.Tasks[0].Title)
	assert.Equal(t, "Chapter 1", got.Tasks[1].Title)

	appended, err := f.m.AddTask(ctx, p.ID, TaskInput{Title: "Review"})
	require.NoError(t, err)
	assert.Equal(t, 5, appended.Order)

	_, err = f.m.AddTask(ctx, p.ID, TaskInput{Title: ""})
	require.ErrorIs(t, err, model.ErrValidation)

	last := 5
	notes := "see lecture 4"
	moved, err := f.m.UpdateTask(ctx, p.ID, added.ID, TaskPatch{Order: &last, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 5, moved.Order)
	assert.Equal(t, notes, moved.Notes)

	got, _ = f.m.GetPlan(p.ID)
	titles := make([]string, len(got.Tasks))
	for i, task := range got.Tasks {
		titles[i] = task.Title
		assert.Equal(t, i, task.Order)
	}
	assert.Equal(t, []string{"Chapter 1", "Chapter 2", "Chapter 3", "Chapter 4", "Review", "Warm-up"}, titles)

	_, err = f.m.UpdateTask(ctx, p.ID, "missing", TaskPatch{Notes: &notes})
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 2, f.rec.count(event.TaskAdded))
	assert.Equal(t, 1, f.rec.count(event.TaskUpdated))
}

func TestPersistenceFailures(t *testing.T) {
	t.Parallel()

	t.Run("quota retried once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.docs.saveErrs = []error{store.ErrQuotaExceeded, nil}

		p := f.create(t, 0)
		assert.Zero(t, f.rec.count(event.StorageFailed))
		assert.Equal(t, 2, f.docs.saveCalls)
		require.Len(t, f.docs.plans, 1)
		assert.Equal(t, p.ID, f.docs.plans[0].ID)
	})

	t.Run("persistent failure keeps memory state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.docs.saveErrs = []error{store.ErrQuotaExceeded, store.ErrQuotaExceeded}

		p := f.create(t, 0)
		assert.Equal(t, 1, f.rec.count(event.StorageFailed))
		_, err := f.m.GetPlan(p.ID)
		require.NoError(t, err)
		assert.Empty(t, f.docs.plans)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.docs.saveErrs = []error{errors.New("disk gone")}

		f.create(t, 0)
		assert.Equal(t, 1, f.docs.saveCalls)
		assert.Equal(t, 1, f.rec.count(event.StorageFailed))
	})
}

func TestRecordStudySession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 0)

	got, err := f.m.RecordStudySession(ctx, StudySession{PlanID: p.ID, TaskID: p.Tasks[0].ID, Hours: 1.5, Notes: "did exercises"})
	require.NoError(t, err)

	assert.Equal(t, 1.5, got.ActualHours)
	assert.Equal(t, 1.5, got.Tasks[0].ActualHours)
	assert.Equal(t, "2025-10-10 10:00: did exercises", got.Tasks[0].Notes)
	require.NotNil(t, got.LastStudiedAt)

	stats := f.m.Statistics()
	assert.Equal(t, 1.5, stats.TotalStudyTime)
	assert.Equal(t, 1, stats.CurrentStreak)

	_, err = f.m.RecordStudySession(ctx, StudySession{PlanID: p.ID, Hours: -1})
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = f.m.RecordStudySession(ctx, StudySession{PlanID: p.ID, TaskID: "missing", Hours: 1})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestStreakAcrossDays(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.create(t, 0)

	for day := range 3 {
		_, err := f.m.RecordStudySession(ctx, StudySession{PlanID: p.ID, Hours: 1})
		require.NoError(t, err, "day %d", day)
		f.clock.Advance(24 * time.Hour)
	}
	assert.Equal(t, 3, f.m.Statistics().CurrentStreak)

	f.clock.Advance(48 * time.Hour)
	_, err := f.m.RecordStudySession(ctx, StudySession{PlanID: p.ID, Hours: 1})
	require.NoError(t, err)
	stats := f.m.Statistics()
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 3, stats.LongestStreak)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.docs.plans = []model.Plan{
		{ID: "a", Title: "Algebra", Status: model.PlanStatusActive, Tasks: []model.Task{
			{ID: "t1", Title: "One", Order: 3, Completed: true},
			{ID: "t2", Title: "Two", Order: 1},
		}},
		{ID: "b", Title: "Biology", Status: model.PlanStatusCompleted},
	}
	f.docs.stats = model.StudyStats{CurrentStreak: 4, LongestStreak: 9}

	require.NoError(t, f.m.Load(ctx))

	plans := f.m.ListPlans()
	require.Len(t, plans, 2)
	assert.Equal(t, "t2", plans[0].Tasks[0].ID)
	assert.Equal(t, 50, plans[0].Progress)
	assert.Equal(t, DefaultSubject, plans[0].Subject)
	assert.Equal(t, []string{"a", "b"}, f.sched.scheduled)

	stats := f.m.Statistics()
	assert.Equal(t, 9, stats.LongestStreak)
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.CompletedPlans)
}

func TestLoad_StorageFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.docs.loadErr = model.ErrStorage

	require.NoError(t, f.m.Load(context.Background()))
	assert.Empty(t, f.m.ListPlans())
	assert.Equal(t, 1, f.rec.count(event.StorageFailed))
}

func TestMutationsReturnCopies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := f.create(t, 0)
	p.Tasks[0].Title = "tampered"
	p.Milestones[0].Achieved = true

	got, err := f.m.GetPlan(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chapter 1", got.Tasks[0].Title)
	assert.False(t, got.Milestones[0].Achieved)
}
