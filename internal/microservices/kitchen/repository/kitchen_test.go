package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzeria-system/internal/common/pgtest"
)

func TestRegisterRefusesLiveWorker(t *testing.T) {
	pool := pgtest.Open(t)
	repo := NewKitchenRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.RegisterOrFail(ctx, "chef-1", "kitchen", time.Minute))
	err := repo.RegisterOrFail(ctx, "chef-1", "kitchen", time.Minute)
	require.ErrorIs(t, err, ErrWorkerOnline)

	require.NoError(t, repo.SetOffline(ctx, "chef-1"))
	require.NoError(t, repo.RegisterOrFail(ctx, "chef-1", "kitchen", time.Minute))
}

func TestRegisterTakesOverStaleWorker(t *testing.T) {
	pool := pgtest.Open(t)
	repo := NewKitchenRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.RegisterOrFail(ctx, "chef-1", "kitchen", time.Minute))
	_, err := pool.Exec(ctx, `UPDATE workers SET last_seen = now() - interval '90 seconds' WHERE name = 'chef-1'`)
	require.NoError(t, err)

	require.ErrorIs(t, repo.RegisterOrFail(ctx, "chef-1", "kitchen", 2*time.Minute), ErrWorkerOnline)
	require.NoError(t, repo.RegisterOrFail(ctx, "chef-1", "kitchen", time.Minute))

	w, err := repo.GetWorker(ctx, "chef-1")
	require.NoError(t, err)
	assert.Equal(t, "online", w.Status)
	assert.WithinDuration(t, time.Now(), w.LastSeen, 30*time.Second)
}

func TestWorkerCounters(t *testing.T) {
	pool := pgtest.Open(t)
	repo := NewKitchenRepository(pool)
	ctx := context.Background()

	require.NoError(t, repo.RegisterOrFail(ctx, "chef-2", "kitchen", time.Minute))
	require.NoError(t, repo.IncrementProcessed(ctx, "chef-2"))
	require.NoError(t, repo.IncrementProcessed(ctx, "chef-2"))
	require.NoError(t, repo.Heartbeat(ctx, "chef-2"))
	require.NoError(t, repo.SetOffline(ctx, "chef-2"))

	w, err := repo.GetWorker(ctx, "chef-2")
	require.NoError(t, err)
	assert.Equal(t, "kitchen", w.Type)
	assert.Equal(t, "offline", w.Status)
	assert.Equal(t, 2, w.OrdersProcessed)

	_, err = repo.GetWorker(ctx, "nobody")
	assert.Error(t, err)
}
