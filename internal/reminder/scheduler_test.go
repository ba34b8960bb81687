package reminder

import (
	"context"
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
)

type recordingDispatcher struct {
	mu         sync.Mutex
	dispatched []model.Occurrence
	delivered  map[string]bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, occ model.Occurrence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, occ)
}

func (d *recordingDispatcher) Delivered(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered[id]
}

func (d *recordingDispatcher) ids() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.dispatched))
	for i, o := range d.dispatched {
		out[i] = o.ID
	}
	return out
}

func newTestScheduler(now time.Time) (*Scheduler, *clockwork.FakeClock, *recordingDispatcher) {
	clock := clockwork.NewFakeClockAt(now)
	d := &recordingDispatcher{delivered: make(map[string]bool)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(clock, d, DeriveOptions{Location: time.UTC, HorizonDays: 30, Types: allTypes()}, logger)
	return s, clock, d
}

// Thursday 2025-10-09 noon.
var schedulerNow = time.Date(2025, 10, 9, 12, 0, 0, 0, time.UTC)

func dailyPlan() model.Plan {
	deadline := date(2025, 10, 20)
	return testPlan(model.FrequencyDaily, date(2025, 10, 6), &deadline)
}

func TestScheduler_ScheduleForIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(schedulerNow)
	plan := dailyPlan()

	first := s.ScheduleFor(plan)
	second := s.ScheduleFor(plan)

	assert.Equal(t, 11, first, "8 daily and 3 deadline reminders")
	assert.Equal(t, first, second)
	assert.Equal(t, first, s.PendingCount())
	assert.Len(t, s.Pending(plan.ID), first)
	assert.Equal(t, Scheduled, s.PlanState(plan.ID))

	seen := make(map[string]bool)
	for _, o := range s.Pending(plan.ID) {
		assert.False(t, seen[o.ID], "duplicate %s", o.ID)
		seen[o.ID] = true
	}
}

func TestScheduler_ScheduleDropsPast(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(schedulerNow)

	assert.False(t, s.Schedule(model.Occurrence{ID: "a", PlanID: "p", ScheduledTime: schedulerNow.Add(-time.Minute)}))
	assert.False(t, s.Schedule(model.Occurrence{ID: "b", PlanID: "p", ScheduledTime: schedulerNow}))
	assert.True(t, s.Schedule(model.Occurrence{ID: "c", PlanID: "p", ScheduledTime: schedulerNow.Add(time.Minute)}))
	assert.Equal(t, 1, s.PendingCount())
}

func TestScheduler_ScheduleReplacesSameID(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(schedulerNow)

	occ := model.Occurrence{ID: "x", PlanID: "p", Title: "old", ScheduledTime: schedulerNow.Add(time.Hour)}
	require.True(t, s.Schedule(occ))
	occ.Title = "new"
	occ.ScheduledTime = schedulerNow.Add(2 * time.Hour)
	require.True(t, s.Schedule(occ))

	pending := s.Pending("p")
	require.Len(t, pending, 1)
	assert.Equal(t, "new", pending[0].Title)
}

func TestScheduler_CancelForIsIdempotent(t *testing.T) {
	t.Parallel()

	s, clock, d := newTestScheduler(schedulerNow)
	plan := dailyPlan()
	require.Positive(t, s.ScheduleFor(plan))

	s.CancelFor(plan.ID)
	s.CancelFor(plan.ID)

	assert.Empty(t, s.Pending(plan.ID))
	assert.Zero(t, s.PendingCount())
	assert.Equal(t, Cancelled, s.PlanState(plan.ID))

	clock.Advance(30 * 24 * time.Hour)
	assert.Zero(t, s.Tick(context.Background()))
	assert.Empty(t, d.ids())

	s.CancelFor("unknown")
	assert.Equal(t, Unscheduled, s.PlanState("unknown"))
}

func TestScheduler_Snooze(t *testing.T) {
	t.Parallel()

	s, clock, d := newTestScheduler(schedulerNow)
	plan := dailyPlan()
	s.ScheduleFor(plan)

	var before model.Occurrence
	for _, o := range s.Pending(plan.ID) {
		if o.ID == "plan1_daily_2025-10-10" {
			before = o
		}
	}
	require.NotEmpty(t, before.ID)

	require.True(t, s.Snooze("plan1_daily_2025-10-10", 30))

	pending := s.Pending(plan.ID)
	require.Len(t, pending, 11)
	snoozed := pending[0]
	assert.Equal(t, "plan1_daily_2025-10-10", snoozed.ID)
	assert.Equal(t, schedulerNow.Add(30*time.Minute), snoozed.ScheduledTime)
	assert.Equal(t, before.Title, snoozed.Title)
	assert.Equal(t, before.Message, snoozed.Message)

	clock.Advance(29 * time.Minute)
	assert.Zero(t, s.Tick(context.Background()))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.Tick(context.Background()))
	assert.Equal(t, []string{"plan1_daily_2025-10-10"}, d.ids())

	assert.False(t, s.Snooze("plan1_daily_2025-10-10", 30), "already fired")
	assert.False(t, s.Snooze("nope", 30), "unknown id")
}

func TestScheduler_TickFiresInOrder(t *testing.T) {
	t.Parallel()

	s, clock, d := newTestScheduler(schedulerNow)
	s.Schedule(model.Occurrence{ID: "late", PlanID: "p", ScheduledTime: schedulerNow.Add(3 * time.Hour)})
	s.Schedule(model.Occurrence{ID: "early", PlanID: "p", ScheduledTime: schedulerNow.Add(time.Hour)})
	s.Schedule(model.Occurrence{ID: "later", PlanID: "q", ScheduledTime: schedulerNow.Add(5 * time.Hour)})

	next, ok := s.NextFireTime()
	require.True(t, ok)
	assert.Equal(t, schedulerNow.Add(time.Hour), next)

	clock.Advance(4 * time.Hour)
	assert.Equal(t, 2, s.Tick(context.Background()))
	assert.Equal(t, []string{"early", "late"}, d.ids())
	assert.Empty(t, s.Pending("p"))
	assert.Len(t, s.Pending("q"), 1)
}

func TestScheduler_SweepSkipsDelivered(t *testing.T) {
	t.Parallel()

	s, clock, d := newTestScheduler(schedulerNow)
	s.Schedule(model.Occurrence{ID: "one", PlanID: "p", ScheduledTime: schedulerNow.Add(time.Minute)})
	s.Schedule(model.Occurrence{ID: "two", PlanID: "p", ScheduledTime: schedulerNow.Add(2 * time.Minute)})
	s.Schedule(model.Occurrence{ID: "three", PlanID: "p", ScheduledTime: schedulerNow.Add(time.Hour)})
	d.delivered["one"] = true

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, s.SweepOverdue(context.Background()))
	assert.Equal(t, []string{"two"}, d.ids())
	assert.Len(t, s.Pending("p"), 1)
}

func TestScheduler_SetReminderTypes(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(schedulerNow)
	s.SetReminderTypes(model.ReminderTypes{Deadline: true})

	assert.Equal(t, 3, s.ScheduleFor(dailyPlan()))
}

func TestScheduler_ForgetsDeletedPlans(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestScheduler(schedulerNow)
	plan := dailyPlan()
	require.Positive(t, s.ScheduleFor(plan))

	require.NoError(t, s.HandleEvent(context.Background(), event.Event{Kind: event.PlanUpdated, PlanID: plan.ID}))
	assert.Equal(t, Scheduled, s.PlanState(plan.ID), "only deletions are handled")

	require.NoError(t, s.HandleEvent(context.Background(), event.Event{Kind: event.PlanDeleted, PlanID: plan.ID}))
	assert.Equal(t, Unscheduled, s.PlanState(plan.ID))
	assert.Zero(t, s.PendingCount())

	s.mu.Lock()
	_, kept := s.states[plan.ID]
	s.mu.Unlock()
	assert.False(t, kept)
}
