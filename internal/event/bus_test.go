package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_DeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(quietLogger())
	var got []string

	bus.Subscribe(func(_ context.Context, ev Event) error {
		got = append(got, "first:"+string(ev.Kind))
		return nil
	}, PlanCreated)
	bus.Subscribe(func(_ context.Context, ev Event) error {
		got = append(got, "all:"+string(ev.Kind))
		return nil
	})
	bus.Subscribe(func(_ context.Context, ev Event) error {
		got = append(got, "second:"+string(ev.Kind))
		return nil
	}, PlanCreated, PlanDeleted)

	bus.Publish(context.Background(), Event{Kind: PlanCreated, PlanID: "p1"})
	bus.Publish(context.Background(), Event{Kind: PlanDeleted, PlanID: "p1"})

	assert.Equal(t, []string{
		"first:planCreated",
		"second:planCreated",
		"all:planCreated",
		"second:planDeleted",
		"all:planDeleted",
	}, got)
}

func TestBus_HandlerFailuresDoNotPropagate(t *testing.T) {
	t.Parallel()

	bus := NewBus(quietLogger())
	calls := 0

	bus.Subscribe(func(context.Context, Event) error { return errors.New("boom") }, TaskToggled)
	bus.Subscribe(func(context.Context, Event) error { panic("worse") }, TaskToggled)
	bus.Subscribe(func(context.Context, Event) error {
		calls++
		return nil
	}, TaskToggled)

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Kind: TaskToggled})
	})
	assert.Equal(t, 1, calls)
}

func TestBus_NoSubscribers(t *testing.T) {
	t.Parallel()

	bus := NewBus(quietLogger())
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Kind: StorageFailed})
	})
}
