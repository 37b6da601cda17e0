// Package service provides infrastructure implementations of the
// application collaborators: notifiers and the pending-notice inbox.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/eduplatform/progress-hub/pkg/timeutil"
	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOX
// ══════════════════════════════════════════════════════════════════════════════

// Inbox keeps pending notices until the client drains them.
// redis.NotificationInbox and MemoryInbox implement it.
type Inbox interface {
	Push(ctx context.Context, userID string, item redis.InboxItem) error
	Drain(ctx context.Context, userID string) ([]redis.InboxItem, error)
}

// ReminderMarker records that a user was already reminded on a date.
type ReminderMarker interface {
	MarkOnce(ctx context.Context, userID, date string) (bool, error)
}

// MemoryInbox is an in-process Inbox used when Redis is not configured.
type MemoryInbox struct {
	mu       sync.Mutex
	items    map[string][]redis.InboxItem
	marks    map[string]struct{}
	capacity int
}

// NewMemoryInbox creates an empty MemoryInbox. capacity <= 0 uses redis.InboxCapacity.
func NewMemoryInbox(capacity int) *MemoryInbox {
	if capacity <= 0 {
		capacity = redis.InboxCapacity
	}
	return &MemoryInbox{
		items:    make(map[string][]redis.InboxItem),
		marks:    make(map[string]struct{}),
		capacity: capacity,
	}
}

// Push appends item, dropping the oldest one when the inbox is full.
func (m *MemoryInbox) Push(_ context.Context, userID string, item redis.InboxItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.items[userID], item)
	if len(list) > m.capacity {
		list = list[len(list)-m.capacity:]
	}
	m.items[userID] = list
	return nil
}

// Drain returns pending items oldest first and clears them.
func (m *MemoryInbox) Drain(_ context.Context, userID string) ([]redis.InboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := m.items[userID]
	delete(m.items, userID)
	if items == nil {
		return []redis.InboxItem{}, nil
	}
	return items, nil
}

// MarkOnce reports whether (userID, date) was newly marked.
func (m *MemoryInbox) MarkOnce(_ context.Context, userID, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := date + ":" + userID
	if _, ok := m.marks[key]; ok {
		return false, nil
	}
	m.marks[key] = struct{}{}
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// LogNotifier writes notices to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// Show logs the notice.
func (n *LogNotifier) Show(_ context.Context, userID, message string, kind progress.Kind) error {
	n.logger.Info("notice", "user_id", userID, "kind", string(kind), "message", message)
	return nil
}

// InboxNotifier stores notices in an Inbox for later delivery over HTTP.
type InboxNotifier struct {
	inbox Inbox
	clock timeutil.Clock
}

// NewInboxNotifier creates an InboxNotifier.
func NewInboxNotifier(inbox Inbox, clock timeutil.Clock) *InboxNotifier {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &InboxNotifier{inbox: inbox, clock: clock}
}

// Show pushes the notice to the user's inbox.
func (n *InboxNotifier) Show(ctx context.Context, userID, message string, kind progress.Kind) error {
	return n.inbox.Push(ctx, userID, redis.InboxItem{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      string(kind),
		CreatedAt: n.clock.Now(),
	})
}

// FanoutNotifier delivers every notice to all targets.
// A failing target does not stop the others.
type FanoutNotifier struct {
	targets []progress.Notifier
}

// NewFanoutNotifier creates a FanoutNotifier. Nil targets are skipped.
func NewFanoutNotifier(targets ...progress.Notifier) *FanoutNotifier {
	f := &FanoutNotifier{}
	for _, t := range targets {
		if t != nil {
			f.targets = append(f.targets, t)
		}
	}
	return f
}

// Show delivers the notice and joins target errors.
func (f *FanoutNotifier) Show(ctx context.Context, userID, message string, kind progress.Kind) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.Show(ctx, userID, message, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ progress.Notifier = (*LogNotifier)(nil)
	_ progress.Notifier = (*InboxNotifier)(nil)
	_ progress.Notifier = (*FanoutNotifier)(nil)
	_ Inbox             = (*MemoryInbox)(nil)
	_ Inbox             = (*redis.NotificationInbox)(nil)
	_ ReminderMarker    = (*MemoryInbox)(nil)
	_ ReminderMarker    = (*redis.NotificationInbox)(nil)
)
