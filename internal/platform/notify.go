package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// LogNotifier writes notifications to the structured log. Permission is
// always granted and there is no dismissal channel.
type LogNotifier struct{}

func (LogNotifier) Permission() NotificationPermission { return PermissionGranted }

func (LogNotifier) RequestPermission(ctx context.Context) (NotificationPermission, error) {
	return PermissionGranted, nil
}

func (LogNotifier) Show(ctx context.Context, n Notification) error {
	slog.Info("Notification", "title", n.Title, "body", n.Body, "tag", n.Tag)
	return nil
}

// maxPostedTags bounds how many tagged messages a SlackNotifier can still
// close. The oldest tag is forgotten first; its message stays in the channel.
const maxPostedTags = 256

// SlackNotifier posts notifications to a Slack channel. Permission is granted
// once the bot token passes an auth test; Close deletes the posted message.
type SlackNotifier struct {
	api     *slack.Client
	channel string

	mu         sync.Mutex
	permission NotificationPermission
	posted     map[string]string // tag -> message timestamp
	order      []string          // tags in posting order, oldest first
}

// NewSlackNotifier creates a notifier for channel. apiBase may be empty.
func NewSlackNotifier(token, channel, apiBase string, client *http.Client) (*SlackNotifier, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("missing slack bot token")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, errors.New("missing slack channel")
	}
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	base = strings.TrimRight(base, "/") + "/"
	return &SlackNotifier{
		api:        slack.New(token, slack.OptionHTTPClient(client), slack.OptionAPIURL(base)),
		channel:    channel,
		permission: PermissionDefault,
		posted:     make(map[string]string),
	}, nil
}

// Permission returns the cached permission state.
func (n *SlackNotifier) Permission() NotificationPermission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

// RequestPermission verifies the bot token with Slack.
func (n *SlackNotifier) RequestPermission(ctx context.Context) (NotificationPermission, error) {
	if _, err := n.api.AuthTestContext(ctx); err != nil {
		n.mu.Lock()
		n.permission = PermissionDenied
		n.mu.Unlock()
		return PermissionDenied, fmt.Errorf("slack auth test: %w", err)
	}
	n.mu.Lock()
	n.permission = PermissionGranted
	n.mu.Unlock()
	return PermissionGranted, nil
}

// Show posts the notification as a channel message.
func (n *SlackNotifier) Show(ctx context.Context, note Notification) error {
	text := "*" + note.Title + "*"
	if body := strings.TrimSpace(note.Body); body != "" {
		text += "\n" + body
	}
	_, ts, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	if note.Tag != "" {
		n.mu.Lock()
		n.remember(note.Tag, ts)
		n.mu.Unlock()
	}
	return nil
}

// remember records ts for tag and evicts the oldest tags past
// maxPostedTags. Callers hold n.mu.
func (n *SlackNotifier) remember(tag, ts string) {
	if _, ok := n.posted[tag]; ok {
		n.forget(tag)
	}
	n.posted[tag] = ts
	n.order = append(n.order, tag)
	for len(n.order) > maxPostedTags {
		oldest := n.order[0]
		n.order = n.order[1:]
		delete(n.posted, oldest)
		slog.Debug("Slack notification no longer closable", "tag", oldest)
	}
}

// forget drops tag. Callers hold n.mu.
func (n *SlackNotifier) forget(tag string) {
	delete(n.posted, tag)
	if i := slices.Index(n.order, tag); i >= 0 {
		n.order = slices.Delete(n.order, i, i+1)
	}
}

// Close deletes the message posted for tag. Unknown tags are ignored.
func (n *SlackNotifier) Close(ctx context.Context, tag string) error {
	n.mu.Lock()
	ts, ok := n.posted[tag]
	n.forget(tag)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	if _, _, err := n.api.DeleteMessageContext(ctx, n.channel, ts); err != nil {
		return fmt.Errorf("slack delete: %w", err)
	}
	return nil
}
