package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageConfig holds settings for the local key-value store.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path"`

	// MaxBytes caps the total stored payload size; 0 disables the quota.
	MaxBytes int64 `mapstructure:"max_bytes" yaml:"max_bytes"`

	// MaxBackups is how many backup copies are kept per document.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// SchedulerConfig holds reminder scheduling intervals.
type SchedulerConfig struct {
	TickIntervalSec  int `mapstructure:"tick_interval_sec" yaml:"tick_interval_sec"`
	SweepIntervalSec int `mapstructure:"sweep_interval_sec" yaml:"sweep_interval_sec"`

	// HorizonDays bounds daily/weekly reminders for plans without a deadline.
	HorizonDays int `mapstructure:"horizon_days" yaml:"horizon_days"`

	// StatsIntervalSec is how often statistics are recounted from the plans.
	StatsIntervalSec int `mapstructure:"stats_interval_sec" yaml:"stats_interval_sec"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Timezone names the location used for local wall-clock scheduling.
	// Empty means the system local zone.
	Timezone      string               `mapstructure:"timezone" yaml:"timezone"`
	Storage       StorageConfig        `mapstructure:"storage" yaml:"storage"`
	Scheduler     SchedulerConfig      `mapstructure:"scheduler" yaml:"scheduler"`
	Notifications NotificationSettings `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig            `mapstructure:"log" yaml:"log"`
}

// Location resolves Timezone, falling back to time.Local.
func (c *AppConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/studyplanner/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "studyplanner", "config.yaml")
}

// defaultDataPath returns the default database location next to the config.
func defaultDataPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "planner.db")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Storage: StorageConfig{
			Path:       defaultDataPath(),
			MaxBytes:   5 << 20,
			MaxBackups: 5,
		},
		Scheduler: SchedulerConfig{
			TickIntervalSec:  1,
			SweepIntervalSec: 300,
			HorizonDays:      30,
			StatsIntervalSec: 60,
		},
		Notifications: DefaultNotificationSettings(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with STUDYPLANNER_ override file values.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("STUDYPLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	def := DefaultAppConfig()
	v.SetDefault("timezone", def.Timezone)
	v.SetDefault("storage.path", def.Storage.Path)
	v.SetDefault("storage.max_bytes", def.Storage.MaxBytes)
	v.SetDefault("storage.max_backups", def.Storage.MaxBackups)
	v.SetDefault("scheduler.tick_interval_sec", def.Scheduler.TickIntervalSec)
	v.SetDefault("scheduler.sweep_interval_sec", def.Scheduler.SweepIntervalSec)
	v.SetDefault("scheduler.horizon_days", def.Scheduler.HorizonDays)
	v.SetDefault("scheduler.stats_interval_sec", def.Scheduler.StatsIntervalSec)
	v.SetDefault("notifications.os_notifications", def.Notifications.OSNotifications)
	v.SetDefault("notifications.quiet_hours.enabled", def.Notifications.QuietHours.Enabled)
	v.SetDefault("notifications.quiet_hours.start", def.Notifications.QuietHours.Start)
	v.SetDefault("notifications.quiet_hours.end", def.Notifications.QuietHours.End)
	v.SetDefault("notifications.reminder_types.daily", true)
	v.SetDefault("notifications.reminder_types.deadline", true)
	v.SetDefault("notifications.reminder_types.milestone", true)
	v.SetDefault("notifications.reminder_types.encouragement", true)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize clamps values that would break scheduling.
func (c *AppConfig) normalize() {
	def := DefaultAppConfig()
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.MaxBackups <= 0 {
		c.Storage.MaxBackups = def.Storage.MaxBackups
	}
	if c.Scheduler.TickIntervalSec <= 0 {
		c.Scheduler.TickIntervalSec = def.Scheduler.TickIntervalSec
	}
	if c.Scheduler.SweepIntervalSec <= 0 {
		c.Scheduler.SweepIntervalSec = def.Scheduler.SweepIntervalSec
	}
	if c.Scheduler.HorizonDays <= 0 {
		c.Scheduler.HorizonDays = def.Scheduler.HorizonDays
	}
	if c.Scheduler.StatsIntervalSec <= 0 {
		c.Scheduler.StatsIntervalSec = def.Scheduler.StatsIntervalSec
	}
	q := &c.Notifications.QuietHours
	if q.Start < 0 || q.Start > 23 {
		q.Start = def.Notifications.QuietHours.Start
	}
	if q.End < 0 || q.End > 23 {
		q.End = def.Notifications.QuietHours.End
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("timezone", cfg.Timezone)
	v.Set("storage", cfg.Storage)
	v.Set("scheduler", cfg.Scheduler)
	v.Set("notifications", cfg.Notifications)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
