package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/progress-hub/config"
	"github.com/eduplatform/progress-hub/internal/domain/progress"
	"github.com/eduplatform/progress-hub/internal/infrastructure/persistence/document"
)

func testConfig(backend config.StorageBackend) *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Backend: backend},
	}
}

func TestOpen_Memory(t *testing.T) {
	b, err := Open(context.Background(), testConfig(config.BackendMemory), Options{})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, config.BackendMemory, b.Kind)
	assert.Nil(t, b.Redis)
	assert.IsType(t, &document.Store{}, b.Store)
	assert.Contains(t, b.HealthChecks(), "store")
}

func TestOpen_FilePersistsAcrossOpens(t *testing.T) {
	cfg := testConfig(config.BackendFile)
	cfg.Storage.DataDir = t.TempDir()
	ctx := context.Background()

	var failures int
	b, err := Open(ctx, cfg, Options{OnWriteFailure: func(string, error) { failures++ }})
	require.NoError(t, err)

	rec := progress.NewRecord()
	rec.Experience = 250
	require.NoError(t, b.Store.SaveRecord(ctx, "ana@example.com", rec))
	b.Close()

	b, err = Open(ctx, cfg, Options{})
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Store.FindRecord(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, 250, got.Experience)
	assert.Zero(t, failures)
}

func TestOpen_RedisBackendWithoutRedis(t *testing.T) {
	_, err := Open(context.Background(), testConfig(config.BackendRedis), Options{})
	assert.ErrorContains(t, err, "REDIS_ENABLED")
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), testConfig("mongo"), Options{})
	assert.ErrorContains(t, err, "mongo")
}
