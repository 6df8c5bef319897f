package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	fileBackend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	sqliteBackend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisBackend := NewRedisBackend(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	t.Cleanup(func() {
		_ = sqliteBackend.Close()
		_ = redisBackend.Close()
	})

	return map[string]Backend{
		"file":   fileBackend,
		"sqlite": sqliteBackend,
		"redis":  redisBackend,
		"memory": NewMemoryBackend(),
	}
}

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Set(ctx, "auth-token", []byte(`{"access_token":"abc"}`)))
	got, err := b.Get(ctx, "auth-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"abc"}`, string(got))

	require.NoError(t, b.Set(ctx, "auth-token", []byte(`{"access_token":"def"}`)))
	got, err = b.Get(ctx, "auth-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"def"}`, string(got))

	require.NoError(t, b.Delete(ctx, "auth-token"))
	_, err = b.Get(ctx, "auth-token")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, b.Delete(ctx, "auth-token"), "deleting an absent key is not an error")
}

func TestBackends(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			exerciseBackend(t, b)
		})
	}
}

func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set")
	}

	b, err := NewPostgresBackend(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	exerciseBackend(t, b)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("floppy", "")
	assert.Error(t, err)
}

func TestOpenMemory(t *testing.T) {
	b, err := Open(DriverMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)
}
