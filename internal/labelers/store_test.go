package labelers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyprefs/pkg/config"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Load(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	input := []string{"did:plc:a", "did:plc:b"}
	require.NoError(t, store.Save(ctx, "did:plc:alice", input))
	require.NoError(t, store.Save(ctx, "did:plc:bob", []string{"did:plc:c"}))
	input[0] = "mutated"

	got, err = store.Load(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:a", "did:plc:b"}, got)

	require.NoError(t, store.Save(ctx, "did:plc:alice", []string{}))
	got, err = store.Load(ctx, "did:plc:alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = store.Load(ctx, "did:plc:bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:c"}, got)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "labelers.json")
	exerciseStore(t, NewFile(path))

	// A second handle sees what the first wrote.
	got, err := NewFile(path).Load(context.Background(), "did:plc:bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"did:plc:c"}, got)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelers.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err := NewFile(path).Load(context.Background(), "did:plc:alice")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedis(client))
	assert.True(t, mr.Exists("labelers:did:plc:bob"))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.Appview{LabelerStore: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)
	assert.NoError(t, closeFn())

	store, _, err = Open(ctx, config.Appview{LabelerStore: "file", LabelerStorePath: filepath.Join(t.TempDir(), "l.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, store)

	mr := miniredis.RunT(t)
	store, closeFn, err = Open(ctx, config.Appview{LabelerStore: "redis", RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, store)
	assert.NoError(t, closeFn())

	_, closeFn, err = Open(ctx, config.Appview{LabelerStore: "sqlite"})
	assert.Error(t, err)
	assert.NotNil(t, closeFn)
}
