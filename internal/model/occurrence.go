package model

import "time"

// ReminderType identifies how an occurrence was derived.
type ReminderType string

const (
	ReminderDaily     ReminderType = "daily_study"
	ReminderWeekly    ReminderType = "weekly_study"
	ReminderDeadline  ReminderType = "deadline_reminder"
	ReminderMilestone ReminderType = "milestone_reminder"
)

// Urgency escalates deadline reminders as the deadline approaches.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyUpcoming Urgency = "upcoming"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// OccurrencePayload carries the plan context a delivered reminder refers to.
type OccurrencePayload struct {
	PlanTitle     string `json:"plan_title"`
	Progress      int    `json:"progress"`
	DaysRemaining int    `json:"days_remaining,omitempty"`
	Milestone     int    `json:"milestone,omitempty"`
}

// Occurrence is one concrete scheduled instance of a reminder for a plan.
// It is ephemeral and lives only inside the scheduler and dispatcher.
type Occurrence struct {
	// ID is deterministic (plan + type + date), so re-deriving a plan's
	// reminders replaces occurrences instead of duplicating them.
	ID            string            `json:"id"`
	PlanID        string            `json:"plan_id"`
	Type          ReminderType      `json:"type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	ScheduledTime time.Time         `json:"scheduled_time"`
	Urgency       Urgency           `json:"urgency"`
	Payload       OccurrencePayload `json:"payload"`
}
