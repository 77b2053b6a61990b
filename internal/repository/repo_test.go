package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bloomboard/config"
	"bloomboard/pkg/circuitbreaker"
)

func exerciseKVStore(t *testing.T, store KVStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "bb_habits")
	require.NoError(t, err)
	assert.False(t, found, "missing key reports not found")

	require.NoError(t, store.Put(ctx, "bb_habits", []byte(`[{"id":1}]`)))
	got, found, err := store.Get(ctx, "bb_habits")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `[{"id":1}]`, string(got))

	require.NoError(t, store.Put(ctx, "bb_habits", []byte(`[]`)))
	got, _, err = store.Get(ctx, "bb_habits")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	assert.ErrorIs(t, store.Put(ctx, "../escape", []byte(`[]`)), ErrInvalidKey)
	assert.NoError(t, store.Ping(ctx))
}

func TestMemoryRepo(t *testing.T) {
	repo := NewMemoryRepo()
	exerciseKVStore(t, repo)
	assert.Equal(t, 2, repo.Writes())

	repo.Seed("other", []byte("x"))
	assert.Equal(t, 2, repo.Writes(), "seeding is not a write")
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, repo.Put(ctx, "k", value))
	value[0] = 'z'

	got, _, err := repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileRepo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	repo, err := NewFileRepo(dir, zap.NewNop())
	require.NoError(t, err)

	exerciseKVStore(t, repo)

	b, err := os.ReadFile(filepath.Join(dir, "bb_habits.json"))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileRepoHonoursCancelledContext(t *testing.T) {
	repo, err := NewFileRepo(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Put(ctx, "bb_habits", []byte(`[]`)), context.Canceled)
}

func TestSQLiteRepo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bloomboard.db")
	repo, err := OpenSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	exerciseKVStore(t, repo)
}

func TestSQLiteRepoSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bloomboard.db")

	first, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "bb_habits", []byte(`[1]`)))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, found, err := second.Get(ctx, "bb_habits")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1]`, string(got))
}

type flakyStore struct {
	*MemoryRepo
	err   error
	calls int
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return f.MemoryRepo.Put(ctx, key, value)
}

func TestBreakerRepoFailsFast(t *testing.T) {
	inner := &flakyStore{MemoryRepo: NewMemoryRepo(), err: errors.New("connection refused")}
	repo := WithBreaker(inner, circuitbreaker.Config{FailureThreshold: 2}, zap.NewNop())
	ctx := context.Background()

	assert.Error(t, repo.Put(ctx, "bb_habits", nil))
	assert.Error(t, repo.Put(ctx, "bb_habits", nil))
	state, ok := repo.BreakerState()
	require.True(t, ok)
	assert.Equal(t, circuitbreaker.StateOpen, state)

	err := repo.Put(ctx, "bb_habits", nil)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitBreakerOpen)
	assert.Equal(t, 2, inner.calls, "open breaker does not reach the backend")
}

func TestInstrumentedForwardsBreakerState(t *testing.T) {
	inner := &flakyStore{MemoryRepo: NewMemoryRepo(), err: errors.New("connection refused")}
	repo := Instrument(WithBreaker(inner, circuitbreaker.Config{FailureThreshold: 1}, zap.NewNop()), "redis", zap.NewNop())

	state, ok := repo.BreakerState()
	require.True(t, ok)
	assert.Equal(t, circuitbreaker.StateClosed, state)

	assert.Error(t, repo.Put(context.Background(), "bb_habits", nil))
	state, _ = repo.BreakerState()
	assert.Equal(t, circuitbreaker.StateOpen, state)

	_, ok = Instrument(NewMemoryRepo(), "memory", zap.NewNop()).BreakerState()
	assert.False(t, ok, "local drivers carry no breaker")
}

func TestInstrumentedPassesThrough(t *testing.T) {
	inner := NewMemoryRepo()
	repo := Instrument(inner, "memory", zap.NewNop())
	exerciseKVStore(t, repo)
	assert.Equal(t, 2, inner.Writes())
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Dir = t.TempDir()
		store, err := Open(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		exerciseKVStore(t, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Driver = "SQLite"
		cfg.Storage.Path = filepath.Join(t.TempDir(), "bb.db")
		store, err := Open(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		exerciseKVStore(t, store)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Driver = "memory"
		store, err := Open(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		exerciseKVStore(t, store)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.Driver = "floppy"
		_, err := Open(ctx, cfg, zap.NewNop())
		assert.ErrorIs(t, err, ErrUnknownDriver)
	})
}
