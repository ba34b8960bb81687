package notify

import (
	"context"

	"github.com/nhle/study-planner/internal/model"
)

// Permission is the state of the platform notification permission.
type Permission int

const (
	PermissionGranted Permission = iota
	PermissionDenied
	PermissionUnsupported
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unsupported"
	}
}

// Notice is what gets shown on the platform notification surface.
type Notice struct {
	Title string
	Body  string

	// Tag groups notices; a new notice replaces the previous one with the same tag.
	Tag string

	Urgency            model.Urgency
	RequireInteraction bool
}

// Handle identifies a shown platform notification.
type Handle string

// OSNotifier is the platform notification surface.
type OSNotifier interface {
	Permission() Permission
	Show(ctx context.Context, n Notice) (Handle, error)
	Dismiss(ctx context.Context, h Handle) error
}

// BannerSurface renders in-app banners.
type BannerSurface interface {
	ShowBanner(n model.Notification)
	DismissBanner(id string)
}

// SettingsStore persists notification settings.
type SettingsStore interface {
	SaveSettings(ctx context.Context, settings model.NotificationSettings) error
}
