package model

import "time"

// BannerKind selects styling and auto-dismiss time of an in-app notification.
type BannerKind string

const (
	BannerInfo    BannerKind = "info"
	BannerSuccess BannerKind = "success"
	BannerWarning BannerKind = "warning"
	BannerError   BannerKind = "error"
)

// Notification is an alert surfaced to the user inside the application,
// either for a delivered reminder or for a status message.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id"`

	// OccurrenceID links the notification to the reminder that produced it.
	// Empty for status messages.
	OccurrenceID string `json:"occurrence_id,omitempty"`

	// PlanID is the plan the notification refers to, if any.
	PlanID string `json:"plan_id,omitempty"`

	Kind    BannerKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`

	// Dismissed is set when the banner was closed, by the user or by timeout.
	Dismissed bool `json:"dismissed"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at"`
}
