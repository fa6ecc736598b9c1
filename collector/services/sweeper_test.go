package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/collector/domains"
	"fleetwatch/collector/storage/memory"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

func TestSweepFlipsStalePCs(t *testing.T) {
	log, err := logger.New("collector", "")
	require.NoError(t, err)

	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.RegisterPC(ctx, "PC-stale", nil))
	require.NoError(t, store.RegisterPC(ctx, "PC-fresh", nil))
	require.NoError(t, store.RecordHeartbeat(ctx, domains.HeartbeatUpdate{
		PCID:      "PC-stale",
		Status:    models.StatusOnline,
		Timestamp: time.Now().Add(-2 * time.Minute),
	}))

	var mu sync.Mutex
	var events []StatusEvent
	notify := func(event StatusEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}

	sweeper := NewSweeper(store, 30*time.Second, time.Minute, notify, log)
	sweeper.Sweep(ctx)

	stale, err := store.GetPC(ctx, "PC-stale")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOffline, stale.Status)

	fresh, err := store.GetPC(ctx, "PC-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnline, fresh.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "PC-stale", events[0].PCID)
	assert.Equal(t, models.StatusOffline, events[0].Status)
}

func TestSweepLeavesOfflinePCsAlone(t *testing.T) {
	log, err := logger.New("collector", "")
	require.NoError(t, err)

	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.RegisterPC(ctx, "PC-1", nil))
	require.NoError(t, store.RecordHeartbeat(ctx, domains.HeartbeatUpdate{
		PCID:      "PC-1",
		Status:    models.StatusOffline,
		Timestamp: time.Now().Add(-2 * time.Minute),
	}))

	var calls int
	sweeper := NewSweeper(store, 30*time.Second, time.Minute, func(StatusEvent) { calls++ }, log)
	sweeper.Sweep(ctx)
	assert.Zero(t, calls, "already-OFFLINE PCs must not re-notify")
}
