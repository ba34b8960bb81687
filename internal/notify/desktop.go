package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nhle/study-planner/internal/model"
)

const (
	notificationsDest = "org.freedesktop.Notifications"
	notificationsPath = dbus.ObjectPath("/org/freedesktop/Notifications")

	methodNotify = notificationsDest + ".Notify"
	methodClose  = notificationsDest + ".CloseNotification"

	dbusTimeout = 5 * time.Second
)

// busObject is the part of dbus.BusObject the notifier calls.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DesktopNotifier shows notifications through the freedesktop
// notification service on the session bus. Without a session bus it
// reports PermissionUnsupported.
type DesktopNotifier struct {
	appName string
	obj     busObject
	conn    *dbus.Conn
	support Permission

	mu   sync.Mutex
	tags map[string]uint32 // tag -> id of the notice it last showed
}

var _ OSNotifier = (*DesktopNotifier)(nil)

// NewDesktopNotifier connects to the session bus and returns a notifier.
func NewDesktopNotifier(appName string) *DesktopNotifier {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return newDesktopNotifier(appName, nil, PermissionUnsupported)
	}
	n := newDesktopNotifier(appName, conn.Object(notificationsDest, notificationsPath), PermissionGranted)
	n.conn = conn
	return n
}

func newDesktopNotifier(appName string, obj busObject, support Permission) *DesktopNotifier {
	return &DesktopNotifier{
		appName: appName,
		obj:     obj,
		support: support,
		tags:    make(map[string]uint32),
	}
}

// Permission reports whether notifications can be shown.
func (n *DesktopNotifier) Permission() Permission { return n.support }

// Show displays a notification and returns its server id as the handle.
// A notice replaces the one previously shown with the same tag.
func (n *DesktopNotifier) Show(ctx context.Context, notice Notice) (Handle, error) {
	if n.support != PermissionGranted {
		return "", fmt.Errorf("showing notification: %w", model.ErrPermissionDenied)
	}

	n.mu.Lock()
	replaces := n.tags[notice.Tag]
	n.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(osUrgency(notice.Urgency)),
	}
	timeout := int32(-1)
	if notice.RequireInteraction {
		timeout = 0
	}

	ctx, cancel := context.WithTimeout(ctx, dbusTimeout)
	defer cancel()

	var id uint32
	err := n.obj.CallWithContext(ctx, methodNotify, 0,
		n.appName, replaces, "", notice.Title, notice.Body,
		[]string{}, hints, timeout,
	).Store(&id)
	if err != nil {
		return "", fmt.Errorf("sending notification: %w", err)
	}

	if notice.Tag != "" {
		n.mu.Lock()
		n.tags[notice.Tag] = id
		n.mu.Unlock()
	}
	return Handle(strconv.FormatUint(uint64(id), 10)), nil
}

// Dismiss closes a notification shown earlier.
func (n *DesktopNotifier) Dismiss(ctx context.Context, h Handle) error {
	if h == "" || n.obj == nil {
		return nil
	}
	id, err := strconv.ParseUint(string(h), 10, 32)
	if err != nil {
		return fmt.Errorf("closing notification %s: bad handle", h)
	}

	n.mu.Lock()
	for tag, shown := range n.tags {
		if shown == uint32(id) {
			delete(n.tags, tag)
		}
	}
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, dbusTimeout)
	defer cancel()

	if call := n.obj.CallWithContext(ctx, methodClose, 0, uint32(id)); call.Err != nil {
		return fmt.Errorf("closing notification %s: %w", h, call.Err)
	}
	return nil
}

// Close releases the session bus connection.
func (n *DesktopNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// osUrgency maps to the freedesktop urgency levels: 0 low, 1 normal, 2 critical.
func osUrgency(u model.Urgency) byte {
	switch u {
	case model.UrgencyCritical:
		return 2
	case model.UrgencyNone:
		return 0
	default:
		return 1
	}
}
