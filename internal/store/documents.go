package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nhle/study-planner/internal/model"
)

// Document keys.
const (
	KeyPlans    = "studyPlans"
	KeyStats    = "studyStats"
	KeySettings = "notificationSettings"
)

// DocumentVersion is written into every envelope.
const DocumentVersion = "1.0.0"

// envelope wraps every persisted document.
type envelope struct {
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Count     int             `json:"count,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Documents reads and writes the planner's whole-document JSON blobs.
type Documents struct {
	store  Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewDocuments creates a Documents over store.
func NewDocuments(store Store, clock clockwork.Clock, logger *slog.Logger) *Documents {
	return &Documents{store: store, clock: clock, logger: logger}
}

// LoadPlans returns the validated plan collection. A missing document is
// an empty collection. An unreadable document falls back to its newest backup.
func (d *Documents) LoadPlans(ctx context.Context) ([]model.Plan, error) {
	var plans []model.Plan
	found, err := d.load(ctx, KeyPlans, &plans)
	if err != nil {
		return nil, err
	}
	if !found {
		return []model.Plan{}, nil
	}
	return ValidatePlans(plans), nil
}

// SavePlans persists the full plan collection.
func (d *Documents) SavePlans(ctx context.Context, plans []model.Plan) error {
	return d.save(ctx, KeyPlans, plans, len(plans))
}

// LoadStats returns the stored statistics and whether they existed.
func (d *Documents) LoadStats(ctx context.Context) (model.StudyStats, bool, error) {
	var stats model.StudyStats
	found, err := d.load(ctx, KeyStats, &stats)
	if err != nil || !found {
		return model.StudyStats{}, false, err
	}
	return stats, true, nil
}

// SaveStats persists the statistics document.
func (d *Documents) SaveStats(ctx context.Context, stats model.StudyStats) error {
	return d.save(ctx, KeyStats, stats, 0)
}

// LoadSettings returns the stored notification settings, or defaults.
func (d *Documents) LoadSettings(ctx context.Context) (model.NotificationSettings, bool, error) {
	settings := model.DefaultNotificationSettings()
	found, err := d.load(ctx, KeySettings, &settings)
	if err != nil || !found {
		return model.DefaultNotificationSettings(), false, err
	}
	return settings, true, nil
}

// SaveSettings persists the notification settings document.
func (d *Documents) SaveSettings(ctx context.Context, settings model.NotificationSettings) error {
	return d.save(ctx, KeySettings, settings, 0)
}

func (d *Documents) save(ctx context.Context, key string, v any, count int) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	blob, err := json.Marshal(envelope{
		Version:   DocumentVersion,
		Timestamp: d.clock.Now().UTC(),
		Count:     count,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("encoding %s envelope: %w", key, err)
	}

	err = d.store.Save(ctx, key, blob)
	if errors.Is(err, ErrQuotaExceeded) {
		d.logger.Warn("storage quota exceeded, clearing backups", slog.String("key", key))
		if cerr := d.store.ClearBackups(ctx); cerr != nil {
			d.logger.Error("clearing backups", slog.String("error", cerr.Error()))
		}
	}
	return err
}

func (d *Documents) load(ctx context.Context, key string, v any) (bool, error) {
	blob, err := d.store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	derr := decode(blob, v)
	if derr == nil {
		return true, nil
	}
	d.logger.Warn("document unreadable, trying backup",
		slog.String("key", key),
		slog.String("error", derr.Error()),
	)

	backup, err := d.store.LatestBackup(ctx, key)
	if err != nil {
		return false, fmt.Errorf("recovering %s: %w", key, model.ErrStorage)
	}
	if err := decode(backup, v); err != nil {
		return false, fmt.Errorf("decoding backup of %s: %w: %w", key, model.ErrStorage, err)
	}

	d.logger.Info("document recovered from backup", slog.String("key", key))
	return true, nil
}

// decode accepts both the envelope and the legacy bare-array format.
func decode(blob []byte, v any) error {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, v)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 {
		return errors.New("envelope has no data")
	}
	return json.Unmarshal(env.Data, v)
}

// ValidatePlans drops plans and tasks that lack an id or title and clamps
// the remaining fields into range.
func ValidatePlans(plans []model.Plan) []model.Plan {
	out := make([]model.Plan, 0, len(plans))
	for _, p := range plans {
		if p.ID == "" || p.Title == "" {
			continue
		}
		p.Title = model.SanitizeText(p.Title)
		p.Description = model.SanitizeText(p.Description)
		if p.Status != model.PlanStatusCompleted {
			p.Status = model.PlanStatusActive
		}
		if !p.Priority.Valid() {
			p.Priority = model.PriorityMedium
		}
		p.Progress = clamp(p.Progress, 0, 100)
		p.EstimatedHours = max(p.EstimatedHours, 0)
		p.ActualHours = max(p.ActualHours, 0)
		if p.Reminders.Hour < 0 || p.Reminders.Hour > 23 {
			p.Reminders.Hour = model.DefaultReminderHour
		}
		p.Tasks = validateTasks(p.Tasks)
		out = append(out, p)
	}
	return out
}

func validateTasks(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID == "" || t.Title == "" {
			continue
		}
		t.Title = model.SanitizeText(t.Title)
		t.Description = model.SanitizeText(t.Description)
		if t.EstimatedHours == 0 {
			t.EstimatedHours = 1
		}
		t.EstimatedHours = max(t.EstimatedHours, 0)
		t.ActualHours = max(t.ActualHours, 0)
		if !t.Difficulty.Valid() {
			t.Difficulty = model.DifficultyMedium
		}
		if !t.Completed {
			t.CompletedAt = nil
		}
		out = append(out, t)
	}
	return out
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
