// Package reminder derives reminder occurrences from study plans and fires
// them in time order from a single priority queue.
package reminder

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nhle/study-planner/internal/event"
	"github.com/nhle/study-planner/internal/model"
)

// Dispatcher receives occurrences once they are due.
type Dispatcher interface {
	Dispatch(ctx context.Context, occ model.Occurrence)

	// Delivered reports whether the occurrence already reached the user.
	Delivered(occurrenceID string) bool
}

// PlanState tracks a plan's scheduling lifecycle.
type PlanState int

const (
	Unscheduled PlanState = iota
	Scheduled
	Cancelled
)

func (s PlanState) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Cancelled:
		return "cancelled"
	default:
		return "unscheduled"
	}
}

// Scheduler owns every pending occurrence. All methods are safe for
// concurrent use; dispatching always happens outside the lock.
type Scheduler struct {
	mu      sync.Mutex
	queue   fireQueue
	pending map[string]map[string]*entry // planID -> occurrenceID -> entry
	states  map[string]PlanState
	opts    DeriveOptions

	clock      clockwork.Clock
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewScheduler creates an empty scheduler.
func NewScheduler(
	clock clockwork.Clock,
	dispatcher Dispatcher,
	opts DeriveOptions,
	logger *slog.Logger,
) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Scheduler{
		pending:    make(map[string]map[string]*entry),
		states:     make(map[string]PlanState),
		opts:       opts,
		clock:      clock,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SetReminderTypes changes which reminder families future derivations produce.
func (s *Scheduler) SetReminderTypes(types model.ReminderTypes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Types = types
}

// Schedule registers occ. An occurrence already due is dropped and false
// is returned. An occurrence with the same id replaces the pending one.
func (s *Scheduler) Schedule(occ model.Occurrence) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(occ)
}

func (s *Scheduler) scheduleLocked(occ model.Occurrence) bool {
	if !occ.ScheduledTime.After(s.clock.Now()) {
		s.logger.Debug("reminder in the past, skipping",
			slog.String("occurrence_id", occ.ID),
			slog.Time("scheduled_time", occ.ScheduledTime),
		)
		return false
	}

	byID := s.pending[occ.PlanID]
	if byID == nil {
		byID = make(map[string]*entry)
		s.pending[occ.PlanID] = byID
	}
	if old, ok := byID[occ.ID]; ok {
		old.occ = occ
		heap.Fix(&s.queue, old.index)
	} else {
		e := &entry{occ: occ}
		heap.Push(&s.queue, e)
		byID[occ.ID] = e
	}
	s.states[occ.PlanID] = Scheduled
	return true
}

// ScheduleFor cancels the plan's pending occurrences, derives them afresh
// and registers every future one. It returns how many were registered.
func (s *Scheduler) ScheduleFor(plan model.Plan) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(plan.ID)

	n := 0
	for _, occ := range Derive(plan, s.clock.Now(), s.opts) {
		if s.scheduleLocked(occ) {
			n++
		}
	}

	s.logger.Debug("reminders scheduled",
		slog.String("plan_id", plan.ID),
		slog.Int("count", n),
	)
	return n
}

// CancelFor removes every pending occurrence of the plan. Idempotent.
func (s *Scheduler) CancelFor(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(planID)
}

func (s *Scheduler) cancelLocked(planID string) {
	for _, e := range s.pending[planID] {
		heap.Remove(&s.queue, e.index)
	}
	delete(s.pending, planID)
	if _, known := s.states[planID]; known {
		s.states[planID] = Cancelled
	}
}

// Forget cancels the plan's occurrences and drops its state, so PlanState
// reports Unscheduled again.
func (s *Scheduler) Forget(planID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(planID)
	delete(s.states, planID)
}

// HandleEvent forgets deleted plans. It is meant to be subscribed on the
// event bus.
func (s *Scheduler) HandleEvent(_ context.Context, ev event.Event) error {
	if ev.Kind == event.PlanDeleted {
		s.Forget(ev.PlanID)
	}
	return nil
}

// Snooze moves a pending occurrence to now+minutes, keeping its id and
// content. It reports false and does nothing when the id is not pending.
func (s *Scheduler) Snooze(occurrenceID string, minutes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.findLocked(occurrenceID)
	if e == nil {
		return false
	}
	e.occ.ScheduledTime = s.clock.Now().Add(time.Duration(minutes) * time.Minute)
	heap.Fix(&s.queue, e.index)

	s.logger.Info("reminder snoozed",
		slog.String("occurrence_id", occurrenceID),
		slog.Time("scheduled_time", e.occ.ScheduledTime),
	)
	return true
}

func (s *Scheduler) findLocked(occurrenceID string) *entry {
	for _, byID := range s.pending {
		if e, ok := byID[occurrenceID]; ok {
			return e
		}
	}
	return nil
}

// Pending returns the plan's pending occurrences in fire order.
func (s *Scheduler) Pending(planID string) []model.Occurrence {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Occurrence, 0, len(s.pending[planID]))
	for _, e := range s.pending[planID] {
		out = append(out, e.occ)
	}
	sortByTime(out)
	return out
}

// PendingCount returns the number of queued occurrences across all plans.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// PlanState returns the plan's scheduling state.
func (s *Scheduler) PlanState(planID string) PlanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[planID]
}

// NextFireTime returns the earliest pending fire time, if any.
func (s *Scheduler) NextFireTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.queue.peek(); e != nil {
		return e.occ.ScheduledTime, true
	}
	return time.Time{}, false
}

// popDueLocked removes and returns every occurrence due at now, in order.
func (s *Scheduler) popDueLocked(now time.Time) []model.Occurrence {
	var due []model.Occurrence
	for {
		e := s.queue.peek()
		if e == nil || e.occ.ScheduledTime.After(now) {
			break
		}
		heap.Pop(&s.queue)
		if byID := s.pending[e.occ.PlanID]; byID != nil {
			delete(byID, e.occ.ID)
			if len(byID) == 0 {
				delete(s.pending, e.occ.PlanID)
			}
		}
		due = append(due, e.occ)
	}
	return due
}

// Tick fires every occurrence whose time has come and returns how many.
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	due := s.popDueLocked(s.clock.Now())
	s.mu.Unlock()

	for _, occ := range due {
		s.dispatcher.Dispatch(ctx, occ)
	}
	return len(due)
}

// SweepOverdue dispatches pending occurrences whose time has passed and
// that the dispatcher has not delivered yet. It recovers from a tick loop
// that was suspended, for example while the machine slept.
func (s *Scheduler) SweepOverdue(ctx context.Context) int {
	s.mu.Lock()
	due := s.popDueLocked(s.clock.Now())
	s.mu.Unlock()

	n := 0
	for _, occ := range due {
		if s.dispatcher.Delivered(occ.ID) {
			continue
		}
		s.logger.Info("dispatching overdue reminder",
			slog.String("occurrence_id", occ.ID),
			slog.Time("scheduled_time", occ.ScheduledTime),
		)
		s.dispatcher.Dispatch(ctx, occ)
		n++
	}
	return n
}
