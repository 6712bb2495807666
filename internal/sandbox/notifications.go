package sandbox

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/policy"
)

// NotificationOptions configures Show. Tag is prefixed with the instance id
// when it does not already carry it.
type NotificationOptions struct {
	Body string
	Icon string
	Tag  string
}

// Notifications is the gated notification accessor.
type Notifications struct {
	gate
	notifier platform.Notifier
}

// RequestPermission asks the platform for permission. Platform errors are
// logged and reported as not granted.
func (n *Notifications) RequestPermission(ctx context.Context) (bool, error) {
	if err := n.check(policy.NotificationsCreate, "notifications.request_permission"); err != nil {
		return false, err
	}
	return n.request(ctx), nil
}

func (n *Notifications) request(ctx context.Context) bool {
	perm, err := n.notifier.RequestPermission(ctx)
	if err != nil {
		slog.Warn("Notification permission request failed", "instance", n.instanceID, "error", err)
		return false
	}
	return perm == platform.PermissionGranted
}

// Show displays a notification and returns its tag. shown is false when the
// platform did not grant permission or failed to display it.
func (n *Notifications) Show(ctx context.Context, title string, opts NotificationOptions) (tag string, shown bool, err error) {
	if err := n.check(policy.NotificationsCreate, "notifications.show"); err != nil {
		return "", false, err
	}
	if n.notifier.Permission() != platform.PermissionGranted && !n.request(ctx) {
		return "", false, nil
	}

	tag = opts.Tag
	switch {
	case tag == "":
		tag = n.instanceID + ":" + uuid.NewString()
	case !strings.HasPrefix(tag, n.instanceID+":"):
		tag = n.instanceID + ":" + tag
	}
	note := platform.Notification{Title: title, Body: opts.Body, Icon: opts.Icon, Tag: tag}
	if err := n.notifier.Show(ctx, note); err != nil {
		slog.Warn("Notification display failed", "instance", n.instanceID, "tag", tag, "error", err)
		return "", false, nil
	}
	return tag, true, nil
}

// Close dismisses the notification for tag when the platform supports it.
func (n *Notifications) Close(ctx context.Context, tag string) error {
	if err := n.check(policy.NotificationsCreate, "notifications.close"); err != nil {
		return err
	}
	closer, ok := n.notifier.(platform.NotificationCloser)
	if !ok {
		return nil
	}
	if err := closer.Close(ctx, tag); err != nil {
		slog.Warn("Notification close failed", "instance", n.instanceID, "tag", tag, "error", err)
	}
	return nil
}
