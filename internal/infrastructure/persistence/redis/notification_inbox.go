package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// InboxItem is one pending notice.
type InboxItem struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationInbox keeps the latest notices per user in a Redis list,
// newest first, until the client drains them.
type NotificationInbox struct {
	cache    *Cache
	capacity int64
	ttl      time.Duration
	logger   *slog.Logger
}

// NewNotificationInbox creates a NotificationInbox. logger may be nil.
func NewNotificationInbox(cache *Cache, logger *slog.Logger) *NotificationInbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationInbox{
		cache:    cache,
		capacity: InboxCapacity,
		ttl:      TTLInbox,
		logger:   logger.With("component", "notification_inbox"),
	}
}

// Push stores item for userID, trimming the list to capacity.
func (n *NotificationInbox) Push(ctx context.Context, userID string, item InboxItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	key := n.cache.InboxKey(userID)
	pipe := n.cache.Client().TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, n.capacity-1)
	pipe.Expire(ctx, key, n.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Drain returns pending items oldest first and clears the list atomically.
func (n *NotificationInbox) Drain(ctx context.Context, userID string) ([]InboxItem, error) {
	key := n.cache.InboxKey(userID)

	var rangeCmd *redis.StringSliceCmd
	_, err := n.cache.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rangeCmd = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return n.decode(userID, rangeCmd.Val()), nil
}

// decode turns a newest-first list into items oldest first. The list is
// already deleted, so an item that does not decode is logged and dropped.
func (n *NotificationInbox) decode(userID string, raw []string) []InboxItem {
	items := make([]InboxItem, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var item InboxItem
		if err := json.Unmarshal([]byte(raw[i]), &item); err != nil {
			n.logger.Warn("dropping undecodable inbox item",
				"user_id", userID,
				"payload", raw[i],
				"error", err,
			)
			continue
		}
		items = append(items, item)
	}
	return items
}

// MarkOnce sets a marker and reports whether it was newly set.
func (n *NotificationInbox) MarkOnce(ctx context.Context, userID, date string) (bool, error) {
	return n.cache.SetNX(ctx, n.cache.ReminderKey(userID, date), "1", TTLReminderMark)
}
