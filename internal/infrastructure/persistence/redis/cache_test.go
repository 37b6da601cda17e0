package redis

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineCache(t *testing.T, namespace string) *Cache {
	t.Helper()
	// Points at a closed port; nothing here should dial.
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheFromClient(client, namespace)
}

func TestCache_KeyLayout(t *testing.T) {
	c := offlineCache(t, "")

	assert.Equal(t, "progress:doc:userProgress", c.DocumentKey("userProgress"))
	assert.Equal(t, "progress:stats:ana@example.com", c.StatsKey("ana@example.com"))
	assert.Equal(t, "progress:inbox:ana@example.com", c.InboxKey("ana@example.com"))
	assert.Equal(t, "progress:reminder:2024-03-10:ana@example.com", c.ReminderKey("ana@example.com", "2024-03-10"))
}

func TestCache_Namespace(t *testing.T) {
	c := offlineCache(t, "staging:")
	assert.Equal(t, "staging:doc:userAchievements", c.DocumentKey("userAchievements"))
}

func TestConfigAddr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	cfg.Host = "::1"
	assert.Equal(t, "[::1]:6379", cfg.Addr())
}

func TestCache_SerializationFailsBeforeNetwork(t *testing.T) {
	c := offlineCache(t, "")

	err := c.SetJSON(context.Background(), c.StatsKey("ana"), make(chan int), time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCacheSerialization)
	assert.NoError(t, c.Delete(context.Background()))
}

func TestNewCache_UnreachableServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 1
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.MaxRetries = -1

	_, err := NewCache(cfg)
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestNotificationInbox_DecodeLogsDroppedItems(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	inbox := NewNotificationInbox(offlineCache(t, ""), log)

	// Redis keeps the list newest first.
	raw := []string{
		`{"id":"n2","message":"second","kind":"success"}`,
		`not json`,
		`{"id":"n1","message":"first","kind":"info"}`,
	}
	items := inbox.decode("ana@example.com", raw)

	require.Len(t, items, 2)
	assert.Equal(t, "n1", items[0].ID)
	assert.Equal(t, "n2", items[1].ID)

	out := buf.String()
	assert.Contains(t, out, "dropping undecodable inbox item")
	assert.Contains(t, out, `"user_id":"ana@example.com"`)
	assert.Contains(t, out, `"payload":"not json"`)
}
