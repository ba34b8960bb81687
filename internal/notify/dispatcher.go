// Package notify delivers due reminders to the user, holding them back
// during quiet hours, and turns plan events into in-app banners.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nhle/study-planner/internal/event"
	"github.com/nhle/study-planner/internal/model"
)

const (
	// DrainSpacing separates deliveries of queued reminders.
	DrainSpacing = 2 * time.Second

	// QuietRecheck is how long the drain waits while still in quiet hours.
	QuietRecheck = 5 * time.Minute

	// HistoryRetention is how long delivered notifications are remembered.
	HistoryRetention = 24 * time.Hour

	osCloseDefault  = 6 * time.Second
	osCloseCritical = 10 * time.Second
)

var bannerDurations = map[model.BannerKind]time.Duration{
	model.BannerSuccess: 4 * time.Second,
	model.BannerInfo:    5 * time.Second,
	model.BannerWarning: 7 * time.Second,
	model.BannerError:   8 * time.Second,
}

// BannerDuration returns how long a banner of kind stays up.
func BannerDuration(kind model.BannerKind) time.Duration {
	if d, ok := bannerDurations[kind]; ok {
		return d
	}
	return bannerDurations[model.BannerInfo]
}

// osNotice is a shown OS notification. seq tells apart notices for which
// the surface reused a handle.
type osNotice struct {
	handle Handle
	seq    uint64
}

// Dispatcher delivers occurrences to the OS and in-app surfaces.
type Dispatcher struct {
	mu        sync.Mutex
	settings  model.NotificationSettings
	queue     []model.Occurrence
	delivered map[string]time.Time
	history   []model.Notification
	handles   map[string]osNotice // tag -> current OS notification
	shown     uint64
	timers    map[string]clockwork.Timer
	paused    bool

	loc           *time.Location
	os            OSNotifier
	banner        BannerSurface
	settingsStore SettingsStore
	clock         clockwork.Clock
	logger        *slog.Logger
}

// Config collects the Dispatcher's collaborators. OS and SettingsStore may be nil.
type Config struct {
	Settings      model.NotificationSettings
	Location      *time.Location
	OS            OSNotifier
	Banner        BannerSurface
	SettingsStore SettingsStore
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Dispatcher{
		settings:      cfg.Settings,
		delivered:     make(map[string]time.Time),
		handles:       make(map[string]osNotice),
		timers:        make(map[string]clockwork.Timer),
		loc:           loc,
		os:            cfg.OS,
		banner:        cfg.Banner,
		settingsStore: cfg.SettingsStore,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
	}
}

// InQuietHours reports whether the current local time is inside the
// configured quiet-hours window.
func (d *Dispatcher) InQuietHours() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inQuietHoursLocked()
}

func (d *Dispatcher) inQuietHoursLocked() bool {
	return d.settings.QuietHours.Contains(d.clock.Now().In(d.loc).Hour())
}

// Dispatch delivers occ now, or queues it when quiet hours are on.
func (d *Dispatcher) Dispatch(ctx context.Context, occ model.Occurrence) {
	d.mu.Lock()
	if d.inQuietHoursLocked() {
		d.queue = append(d.queue, occ)
		d.mu.Unlock()
		d.logger.Info("quiet hours, reminder queued",
			slog.String("occurrence_id", occ.ID),
		)
		return
	}
	d.mu.Unlock()

	d.deliver(ctx, occ)
}

// DrainStep delivers the oldest queued reminder when quiet hours are over.
// It returns how long to wait before the next step: DrainSpacing while
// more are queued, QuietRecheck during quiet hours and 0 when empty.
func (d *Dispatcher) DrainStep(ctx context.Context) time.Duration {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return 0
	}
	if d.inQuietHoursLocked() {
		d.mu.Unlock()
		return QuietRecheck
	}
	occ := d.queue[0]
	d.queue = d.queue[1:]
	remaining := len(d.queue)
	d.mu.Unlock()

	d.deliver(ctx, occ)

	if remaining > 0 {
		return DrainSpacing
	}
	return 0
}

// QueueLength returns how many reminders wait for quiet hours to end.
func (d *Dispatcher) QueueLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Delivered reports whether the occurrence was already shown.
func (d *Dispatcher) Delivered(occurrenceID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.delivered[occurrenceID]
	return ok
}

func (d *Dispatcher) deliver(ctx context.Context, occ model.Occurrence) {
	d.mu.Lock()
	osEnabled := d.settings.OSNotifications
	d.mu.Unlock()

	if osEnabled {
		d.showOS(ctx, Notice{
			Title:              occ.Title,
			Body:               occ.Message,
			Tag:                ReminderTag(occ),
			Urgency:            occ.Urgency,
			RequireInteraction: occ.Urgency == model.UrgencyCritical,
		})
	}

	kind := model.BannerInfo
	if occ.Type == model.ReminderDeadline {
		kind = model.BannerWarning
	}
	d.showBanner(model.Notification{
		OccurrenceID: occ.ID,
		PlanID:       occ.PlanID,
		Kind:         kind,
		Title:        occ.Title,
		Message:      occ.Message,
	})

	d.mu.Lock()
	d.delivered[occ.ID] = d.clock.Now()
	d.mu.Unlock()

	d.logger.Info("reminder delivered",
		slog.String("occurrence_id", occ.ID),
		slog.String("plan_id", occ.PlanID),
		slog.String("type", string(occ.Type)),
	)
}

// ReminderTag groups OS notices so each plan keeps at most one active
// notice per reminder type.
func ReminderTag(occ model.Occurrence) string {
	return "study-reminder-" + occ.PlanID + "-" + string(occ.Type)
}

// showOS shows n on the platform surface, replacing the previous notice
// with the same tag. Failures are logged.
func (d *Dispatcher) showOS(ctx context.Context, n Notice) {
	if d.os == nil {
		return
	}
	if perm := d.os.Permission(); perm != PermissionGranted {
		d.logger.Debug("os notifications unavailable", slog.String("permission", perm.String()))
		return
	}

	h, err := d.os.Show(ctx, n)
	if err != nil {
		d.logger.Warn("showing os notification", slog.String("error", err.Error()))
		return
	}

	d.mu.Lock()
	prev := d.handles[n.Tag]
	d.shown++
	cur := osNotice{handle: h, seq: d.shown}
	d.handles[n.Tag] = cur
	d.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	if prev.handle != "" && prev.handle != h {
		d.closeOS(bg, prev.handle)
	}

	delay := osCloseDefault
	if n.Urgency == model.UrgencyCritical {
		delay = osCloseCritical
	}
	d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		current := d.handles[n.Tag] == cur
		if current {
			delete(d.handles, n.Tag)
		}
		d.mu.Unlock()
		if current {
			d.closeOS(bg, h)
		}
	})
}

func (d *Dispatcher) closeOS(ctx context.Context, h Handle) {
	if err := d.os.Dismiss(ctx, h); err != nil {
		d.logger.Debug("closing os notification", slog.String("error", err.Error()))
	}
}

// showBanner records n in the history, shows it unless banners are
// paused and arms its auto-dismiss timer.
func (d *Dispatcher) showBanner(n model.Notification) {
	n.ID = uuid.New().String()
	n.CreatedAt = d.clock.Now()

	d.mu.Lock()
	d.history = append(d.history, n)
	paused := d.paused
	id := n.ID
	d.timers[id] = d.clock.AfterFunc(BannerDuration(n.Kind), func() {
		d.DismissBanner(id)
	})
	d.mu.Unlock()

	if !paused && d.banner != nil {
		d.banner.ShowBanner(n)
	}
}

// DismissBanner closes a banner early or on timeout.
func (d *Dispatcher) DismissBanner(id string) {
	d.mu.Lock()
	found := false
	for i := range d.history {
		if d.history[i].ID == id {
			d.history[i].Dismissed = true
			found = true
			break
		}
	}
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
	d.mu.Unlock()

	if found && d.banner != nil {
		d.banner.DismissBanner(id)
	}
}

// PauseBanners stops showing new banners; they are still recorded.
func (d *Dispatcher) PauseBanners() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
}

// ResumeBanners undoes PauseBanners.
func (d *Dispatcher) ResumeBanners() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
}

// Notifications returns the notification history, oldest first.
func (d *Dispatcher) Notifications() []model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Notification(nil), d.history...)
}

// ClearNotifications empties the history and stops pending auto-dismissals.
func (d *Dispatcher) ClearNotifications() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	d.history = nil
}

// CleanupHistory drops notifications and delivery records older than
// HistoryRetention. It returns how many notifications were removed.
func (d *Dispatcher) CleanupHistory() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.clock.Now().Add(-HistoryRetention)
	kept := d.history[:0]
	for _, n := range d.history {
		if n.CreatedAt.After(cutoff) {
			kept = append(kept, n)
		}
	}
	removed := len(d.history) - len(kept)
	d.history = kept

	for id, at := range d.delivered {
		if !at.After(cutoff) {
			delete(d.delivered, id)
		}
	}
	return removed
}

// Settings returns the current notification settings.
func (d *Dispatcher) Settings() model.NotificationSettings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// UpdateSettings replaces the settings and persists them.
func (d *Dispatcher) UpdateSettings(ctx context.Context, settings model.NotificationSettings) error {
	if q := settings.QuietHours; q.Start < 0 || q.Start > 23 || q.End < 0 || q.End > 23 {
		return fmt.Errorf("quiet hours %d-%d: %w", q.Start, q.End, model.ErrValidation)
	}

	d.mu.Lock()
	d.settings = settings
	d.mu.Unlock()

	if d.settingsStore == nil {
		return nil
	}
	if err := d.settingsStore.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("saving notification settings: %w: %w", model.ErrStorage, err)
	}
	return nil
}

// HandleEvent turns plan events into banners. It is meant to be
// subscribed on the event bus.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev event.Event) error {
	switch ev.Kind {
	case event.TaskToggled:
		d.encourage(ev)
	case event.MilestoneAchieved:
		d.milestoneAchieved(ctx, ev)
	case event.PlanCompleted:
		if ev.Plan != nil {
			d.showBanner(model.Notification{
				PlanID:  ev.PlanID,
				Kind:    model.BannerSuccess,
				Title:   "Plan Completed!",
				Message: fmt.Sprintf("Congratulations! You completed %q!", ev.Plan.Title),
			})
		}
	case event.ReminderSnoozed:
		d.showBanner(model.Notification{
			OccurrenceID: ev.OccurrenceID,
			PlanID:       ev.PlanID,
			Kind:         model.BannerInfo,
			Title:        "Reminder Snoozed",
			Message:      fmt.Sprintf("Reminder snoozed for %d minutes", ev.Minutes),
		})
	case event.StorageFailed:
		d.showBanner(model.Notification{
			Kind:    model.BannerError,
			Title:   "Storage Error",
			Message: "Your changes could not be saved. They are kept until you close the planner.",
		})
	}
	return nil
}

// encourage reacts to a task being completed. A plan that just reached
// 100% is congratulated by its PlanCompleted event instead.
func (d *Dispatcher) encourage(ev event.Event) {
	if ev.Plan == nil || ev.Task == nil || !ev.Task.Completed {
		return
	}
	d.mu.Lock()
	enabled := d.settings.ReminderTypes.Encouragement
	d.mu.Unlock()
	if !enabled || ev.Plan.Progress >= 100 {
		return
	}

	d.showBanner(model.Notification{
		PlanID:  ev.PlanID,
		Kind:    model.BannerSuccess,
		Title:   "Task Completed",
		Message: EncouragementMessage(ev.Plan.Title, ev.Plan.Progress),
	})
}

// EncouragementMessage picks a message for the given plan progress.
func EncouragementMessage(title string, progress int) string {
	switch {
	case progress >= 100:
		return fmt.Sprintf("Congratulations! You completed %q!", title)
	case progress >= 75:
		return fmt.Sprintf("Almost there! %d%% left on %q.", 100-progress, title)
	case progress >= 50:
		return fmt.Sprintf("Great progress! You're halfway through %q.", title)
	case progress >= 25:
		return fmt.Sprintf("Nice work! Keep going with %q.", title)
	default:
		return fmt.Sprintf("Great start on %q! Every task completed is progress.", title)
	}
}

func (d *Dispatcher) milestoneAchieved(ctx context.Context, ev event.Event) {
	if ev.Plan == nil || ev.Milestone == nil {
		return
	}
	msg := fmt.Sprintf("%s for %q", ev.Milestone.Description, ev.Plan.Title)

	d.showBanner(model.Notification{
		PlanID:  ev.PlanID,
		Kind:    model.BannerSuccess,
		Title:   "Milestone Achieved!",
		Message: "Milestone achieved! " + msg,
	})

	d.mu.Lock()
	osEnabled := d.settings.OSNotifications
	d.mu.Unlock()
	if osEnabled {
		d.showOS(ctx, Notice{
			Title: "Milestone Achieved!",
			Body:  msg,
			Tag:   "study-milestone-" + ev.PlanID,
		})
	}
}
