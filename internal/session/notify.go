package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Variant selects how a notification is rendered.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a transient, user-visible message about an operation.
type Notification struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Variant     Variant   `json:"variant"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier delivers notifications. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	level := slog.LevelInfo
	if n.Variant == VariantDestructive {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "notification", "title", n.Title, "description", n.Description)
}

// Inbox buffers the most recent notifications for one browser until the
// client drains them.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewInbox creates an Inbox keeping at most limit notifications.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 20
	}
	return &Inbox{limit: limit}
}

func (b *Inbox) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, n)
	if over := len(b.items) - b.limit; over > 0 {
		b.items = append([]Notification(nil), b.items[over:]...)
	}
}

// Drain returns the buffered notifications, oldest first, and empties the inbox.
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.items
	b.items = nil
	if items == nil {
		return []Notification{}
	}
	return items
}

// MultiNotifier fans a notification out to every notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}
