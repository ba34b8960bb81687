package model

// QuietHours is a local-time window during which notifications are queued.
// When Start > End the window wraps past midnight.
type QuietHours struct {
	Enabled bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Start   int  `json:"start" mapstructure:"start" yaml:"start"`
	End     int  `json:"end" mapstructure:"end" yaml:"end"`
}

// Contains reports whether hour (0-23) falls inside the window.
func (q QuietHours) Contains(hour int) bool {
	if !q.Enabled {
		return false
	}
	if q.Start > q.End {
		return hour >= q.Start || hour < q.End
	}
	return hour >= q.Start && hour < q.End
}

// ReminderTypes toggles reminder families globally.
type ReminderTypes struct {
	Daily         bool `json:"daily" mapstructure:"daily" yaml:"daily"`
	Deadline      bool `json:"deadline" mapstructure:"deadline" yaml:"deadline"`
	Milestone     bool `json:"milestone" mapstructure:"milestone" yaml:"milestone"`
	Encouragement bool `json:"encouragement" mapstructure:"encouragement" yaml:"encouragement"`
}

// NotificationSettings are the user's delivery preferences.
type NotificationSettings struct {
	// OSNotifications enables the platform notification surface.
	OSNotifications bool          `json:"os_notifications" mapstructure:"os_notifications" yaml:"os_notifications"`
	QuietHours      QuietHours    `json:"quiet_hours" mapstructure:"quiet_hours" yaml:"quiet_hours"`
	ReminderTypes   ReminderTypes `json:"reminder_types" mapstructure:"reminder_types" yaml:"reminder_types"`
}

// DefaultNotificationSettings mirrors the out-of-the-box preferences.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		OSNotifications: true,
		QuietHours:      QuietHours{Enabled: false, Start: 22, End: 8},
		ReminderTypes: ReminderTypes{
			Daily:         true,
			Deadline:      true,
			Milestone:     true,
			Encouragement: true,
		},
	}
}
