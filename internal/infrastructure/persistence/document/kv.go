// Package document implements the progress store as two whole JSON documents
// kept in a key-value backend: all records under "userProgress" and the
// achievement log under "userAchievements".
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Fixed document keys.
const (
	KeyProgress     = "userProgress"
	KeyAchievements = "userAchievements"
)

// KeyValue is the minimal backend contract. Get reports a missing key with
// found=false and a nil error.
type KeyValue interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ═══════════════════════════════════════════════════════════════════════════
// MEMORY
// ═══════════════════════════════════════════════════════════════════════════

// MemoryKV keeps documents in process memory. Used for tests and demos.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites makes Set fail with this error when non-nil.
	FailWrites error
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KeyValue.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Set implements KeyValue.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

// SetFailWrites toggles write failures.
func (m *MemoryKV) SetFailWrites(err error) {
	m.mu.Lock()
	m.FailWrites = err
	m.mu.Unlock()
}

// ═══════════════════════════════════════════════════════════════════════════
// FILE
// ═══════════════════════════════════════════════════════════════════════════

var validKey = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ErrInvalidKey is returned for keys that cannot be used as file names.
var ErrInvalidKey = errors.New("document: invalid key")

// FileKV stores each key as <dir>/<key>.json.
// Writes go to a temp file in the same directory and are renamed into place.
type FileKV struct {
	dir string
	mu  sync.Mutex
}

// NewFileKV creates the directory if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("document: create data dir: %w", err)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Get implements KeyValue.
func (f *FileKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("document: read %s: %w", key, err)
	}
	return data, true, nil
}

// Set implements KeyValue.
func (f *FileKV) Set(ctx context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("document: create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("document: write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("document: sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("document: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("document: rename %s: %w", key, err)
	}
	return nil
}

// Ping checks that the data directory is still accessible.
func (f *FileKV) Ping(_ context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("document: data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("document: %s is not a directory", f.dir)
	}
	return nil
}
