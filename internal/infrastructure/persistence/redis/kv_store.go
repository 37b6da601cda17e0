package redis

import (
	"context"
	"errors"
)

// DocumentKV stores progress documents as plain Redis strings without TTL.
// It satisfies document.KeyValue.
type DocumentKV struct {
	cache *Cache
}

// NewDocumentKV creates a DocumentKV.
func NewDocumentKV(cache *Cache) *DocumentKV {
	return &DocumentKV{cache: cache}
}

// Get returns the document stored under name.
func (d *DocumentKV) Get(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := d.cache.GetBytes(ctx, d.cache.DocumentKey(name))
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Set replaces the document stored under name.
func (d *DocumentKV) Set(ctx context.Context, name string, value []byte) error {
	return d.cache.SetBytes(ctx, d.cache.DocumentKey(name), value, 0)
}

// Ping checks if Redis is reachable.
func (d *DocumentKV) Ping(ctx context.Context) error {
	return d.cache.Ping(ctx)
}
