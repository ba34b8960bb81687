// Package app wires the planner's components together and runs their
// background jobs.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nhle/study-planner/internal/event"
	"github.com/nhle/study-planner/internal/model"
	"github.com/nhle/study-planner/internal/notify"
	"github.com/nhle/study-planner/internal/plan"
	"github.com/nhle/study-planner/internal/reminder"
	"github.com/nhle/study-planner/internal/store"
	appsync "github.com/nhle/study-planner/internal/sync"
)

// AppName is shown on OS notifications.
const AppName = "Study Planner"

// Job names.
const (
	JobReminderTick  = "reminder.tick"
	JobReminderSweep = "reminder.sweep"
	JobNotifyDrain   = "notify.drain"
	JobNotifyCleanup = "notify.cleanup"
	JobStatsRecount  = "stats.recount"
)

const cleanupInterval = time.Hour

// Options overrides the collaborators New would otherwise create.
type Options struct {
	Clock  clockwork.Clock
	Logger *slog.Logger

	// OS defaults to a desktop notifier on the session bus.
	OS notify.OSNotifier

	// BannerOut receives in-app banners; defaults to os.Stdout.
	BannerOut io.Writer
}

// App is the composition root.
type App struct {
	Config     *model.AppConfig
	Store      *store.SQLiteStore
	Documents  *store.Documents
	Events     *event.Bus
	Dispatcher *notify.Dispatcher
	Scheduler  *reminder.Scheduler
	Plans      *plan.Manager
	Jobs       *appsync.Poller

	os     notify.OSNotifier
	clock  clockwork.Clock
	logger *slog.Logger
}

// New opens the store, restores saved state and registers background
// jobs. Call Run to start the jobs and Close when done.
func New(ctx context.Context, cfg *model.AppConfig, opts Options) (*App, error) {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	osn := opts.OS
	if osn == nil {
		osn = notify.NewDesktopNotifier(AppName)
	}
	out := opts.BannerOut
	if out == nil {
		out = os.Stdout
	}
	loc := cfg.Location()

	if cfg.Storage.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.Storage.Path, store.Options{
		MaxBytes:   cfg.Storage.MaxBytes,
		MaxBackups: cfg.Storage.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	docs := store.NewDocuments(st, clock, logger.With(slog.String("component", "store")))

	settings, found, err := docs.LoadSettings(ctx)
	if err != nil {
		logger.Warn("loading notification settings", slog.String("error", err.Error()))
	}
	if !found {
		settings = cfg.Notifications
	}

	dispatcher := notify.NewDispatcher(notify.Config{
		Settings:      settings,
		Location:      loc,
		OS:            osn,
		Banner:        notify.NewTerminalBanner(out),
		SettingsStore: docs,
		Clock:         clock,
		Logger:        logger.With(slog.String("component", "notify")),
	})
	scheduler := reminder.NewScheduler(clock, dispatcher, reminder.DeriveOptions{
		Location:    loc,
		HorizonDays: cfg.Scheduler.HorizonDays,
		Types:       settings.ReminderTypes,
	}, logger.With(slog.String("component", "reminder")))

	bus := event.NewBus(logger.With(slog.String("component", "event")))
	bus.Subscribe(dispatcher.HandleEvent,
		event.TaskToggled,
		event.MilestoneAchieved,
		event.PlanCompleted,
		event.StorageFailed,
		event.ReminderSnoozed,
	)
	bus.Subscribe(scheduler.HandleEvent, event.PlanDeleted)

	plans := plan.NewManager(plan.Config{
		Documents: docs,
		Scheduler: scheduler,
		Events:    bus,
		Clock:     clock,
		Location:  loc,
		Logger:    logger.With(slog.String("component", "plan")),
	})

	a := &App{
		Config:     cfg,
		Store:      st,
		Documents:  docs,
		Events:     bus,
		Dispatcher: dispatcher,
		Scheduler:  scheduler,
		Plans:      plans,
		Jobs:       appsync.New(clock, logger.With(slog.String("component", "jobs"))),
		os:         osn,
		clock:      clock,
		logger:     logger,
	}
	if err := a.registerJobs(); err != nil {
		st.Close()
		return nil, err
	}

	if err := plans.Load(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("loading plans: %w", err)
	}

	logger.Info("planner ready",
		slog.String("data", cfg.Storage.Path),
		slog.Int("plans", len(plans.ListPlans())),
		slog.Int("reminders", scheduler.PendingCount()),
		slog.String("os_notifications", osn.Permission().String()),
	)
	return a, nil
}

func (a *App) registerJobs() error {
	sc := a.Config.Scheduler
	jobs := []appsync.Job{
		appsync.Every(JobReminderTick, seconds(sc.TickIntervalSec), func(ctx context.Context) {
			a.Scheduler.Tick(ctx)
		}),
		{
			Name:      JobReminderSweep,
			Interval:  seconds(sc.SweepIntervalSec),
			Immediate: true,
			Step: func(ctx context.Context) (time.Duration, error) {
				a.Scheduler.SweepOverdue(ctx)
				return 0, nil
			},
		},
		{
			Name:     JobNotifyDrain,
			Interval: notify.DrainSpacing,
			Step: func(ctx context.Context) (time.Duration, error) {
				return a.Dispatcher.DrainStep(ctx), nil
			},
		},
		appsync.Every(JobNotifyCleanup, cleanupInterval, func(context.Context) {
			a.Dispatcher.CleanupHistory()
		}),
		appsync.Every(JobStatsRecount, seconds(sc.StatsIntervalSec), a.Plans.RecomputeStats),
	}
	for _, job := range jobs {
		if err := a.Jobs.Register(job); err != nil {
			return fmt.Errorf("registering jobs: %w", err)
		}
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Run runs the background jobs until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Jobs.Run(ctx)
}

// UpdateSettings applies and persists new notification settings, then
// re-derives every plan's reminders for the enabled reminder types.
func (a *App) UpdateSettings(ctx context.Context, settings model.NotificationSettings) error {
	if err := a.Dispatcher.UpdateSettings(ctx, settings); err != nil {
		return err
	}
	a.Scheduler.SetReminderTypes(settings.ReminderTypes)
	for _, p := range a.Plans.ListPlans() {
		a.Scheduler.ScheduleFor(p)
	}
	a.Jobs.Trigger(JobNotifyDrain)
	return nil
}

// Snooze delays a pending reminder by minutes and confirms it with a
// banner. It reports false when the reminder is not pending.
func (a *App) Snooze(ctx context.Context, occurrenceID string, minutes int) bool {
	if !a.Scheduler.Snooze(occurrenceID, minutes) {
		return false
	}
	a.Events.Publish(ctx, event.Event{
		Kind:         event.ReminderSnoozed,
		OccurrenceID: occurrenceID,
		Minutes:      minutes,
	})
	return true
}

// Close releases the store and the OS notification surface. Timers of
// pending banners are left to expire.
func (a *App) Close() error {
	if c, ok := a.os.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("closing os notifier", slog.String("error", err.Error()))
		}
	}
	if err := a.Store.Close(); err != nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return nil
}
