package postgres

import (
	"context"
	"fmt"
)

// KVStore keeps whole documents in the kv_documents table.
// It satisfies document.KeyValue.
type KVStore struct {
	conn *Connection
}

// NewKVStore creates a KVStore.
func NewKVStore(conn *Connection) *KVStore {
	return &KVStore{conn: conn}
}

// Get returns the document stored under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.conn.QueryRow(ctx, "SELECT value FROM kv_documents WHERE key = $1", key).Scan(&value)
	if err != nil {
		if IsNoRows(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres: get %s: %w", key, err)
	}
	return value, true, nil
}

// Set replaces the document stored under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_documents (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.conn.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: set %s: %w", key, err)
	}
	return nil
}

// Ping checks the database connection.
func (s *KVStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
