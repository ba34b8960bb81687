// Package event provides the synchronous in-process bus the plan manager
// publishes lifecycle events on.
package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nhle/study-planner/internal/model"
)

// Kind names an event published by the plan manager or the app.
type Kind string

const (
	PlanCreated       Kind = "planCreated"
	PlanUpdated       Kind = "planUpdated"
	PlanDeleted       Kind = "planDeleted"
	PlanCompleted     Kind = "planCompleted"
	TaskToggled       Kind = "taskToggled"
	TaskAdded         Kind = "taskAdded"
	TaskUpdated       Kind = "taskUpdated"
	TaskDeleted       Kind = "taskDeleted"
	MilestoneAchieved Kind = "milestoneAchieved"
	StorageFailed     Kind = "storageFailed"
	ReminderSnoozed   Kind = "reminderSnoozed"
)

// Event is one notification about a state change. Plan is a snapshot taken
// after the change; it is nil for PlanDeleted and StorageFailed.
type Event struct {
	Kind   Kind
	PlanID string
	Plan   *model.Plan

	// Task is set for task events.
	Task *model.Task

	// Milestone is set for MilestoneAchieved.
	Milestone *model.Milestone

	// Err is set for StorageFailed.
	Err error

	// OccurrenceID and Minutes are set for ReminderSnoozed.
	OccurrenceID string
	Minutes      int
}

// Handler reacts to an event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, ev Event) error

// Bus delivers events synchronously, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	all      []Handler
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

// Subscribe registers h for the given kinds. With no kinds, h receives
// every event.
func (b *Bus) Subscribe(h Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(kinds) == 0 {
		b.all = append(b.all, h)
		return
	}
	for _, k := range kinds {
		b.handlers[k] = append(b.handlers[k], h)
	}
}

// Publish runs every matching handler in order. A failing or panicking
// handler is logged and does not stop the rest.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[ev.Kind])+len(b.all))
	hs = append(hs, b.handlers[ev.Kind]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.call(ctx, h, ev)
	}
}

func (b *Bus) call(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				slog.String("event", string(ev.Kind)),
				slog.Any("panic", r),
			)
		}
	}()

	if err := h(ctx, ev); err != nil {
		b.logger.Warn("event handler failed",
			slog.String("event", string(ev.Kind)),
			slog.String("plan_id", ev.PlanID),
			slog.String("error", err.Error()),
		)
	}
}
