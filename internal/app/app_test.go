package app

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bloomboard/config"
	"bloomboard/internal/clock"
	"bloomboard/internal/repository"
	"bloomboard/internal/service/habit"
)

func TestNewWithFileStorageAndImport(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Dir = t.TempDir()
	cfg.Import.Fragment = "#bb=" + base64.StdEncoding.EncodeToString([]byte(`[{"id":5,"title":"Leer"}]`))

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.Store.List(habit.FilterAll))
	require.True(t, a.ImportOnce(context.Background(), ""))

	all := a.Store.List(habit.FilterAll)
	require.Len(t, all, 1)
	assert.Equal(t, "Leer", all[0].Title)

	// a fresh session reads the same directory
	again, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer again.Close()
	assert.Len(t, again.Store.List(habit.FilterAll), 1)
}

func TestImportOnceWithoutFragment(t *testing.T) {
	cfg := config.Default()
	a, err := New(context.Background(), cfg, zap.NewNop(), WithStorage(repository.NewMemoryRepo()))
	require.NoError(t, err)

	assert.False(t, a.ImportOnce(context.Background(), ""))
}

func TestCustomKeyAndClock(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Key = "custom_habits"
	repo := repository.NewMemoryRepo()
	clk := clock.NewFakeClock(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))

	a, err := New(context.Background(), cfg, zap.NewNop(), WithStorage(repo), WithClock(clk))
	require.NoError(t, err)

	h, ok := a.Store.Create(context.Background(), "Correr", "")
	require.True(t, ok)
	assert.Equal(t, clk.Now().UnixMilli(), h.ID)

	_, found, err := repo.Get(context.Background(), "custom_habits")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestUnknownDriverFails(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "tape"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, repository.ErrUnknownDriver)
}
