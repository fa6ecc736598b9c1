package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetwatch/agent/clients"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// fakeCollector records heartbeat bodies and answers with a scripted
// sequence of statuses; the last status repeats.
type fakeCollector struct {
	mu       sync.Mutex
	beats    []models.HeartbeatRequest
	statuses []int
}

func (f *fakeCollector) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var hb models.HeartbeatRequest
		json.NewDecoder(r.Body).Decode(&hb)

		f.mu.Lock()
		f.beats = append(f.beats, hb)
		status := f.statuses[len(f.statuses)-1]
		if len(f.beats) <= len(f.statuses) {
			status = f.statuses[len(f.beats)-1]
		}
		f.mu.Unlock()

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(models.HeartbeatResponse{OK: status == http.StatusOK})
	}
}

func (f *fakeCollector) recorded() []models.HeartbeatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.HeartbeatRequest(nil), f.beats...)
}

func newHeartbeatService(t *testing.T, serverURL string, interval time.Duration, onAuthError func()) *HeartbeatService {
	t.Helper()
	log, err := logger.New("PC-1", "")
	require.NoError(t, err)
	collectorClient := NewCollectorClient(clients.NewClient(serverURL, "tok-A", "PC-1", 2*time.Second))
	return NewHeartbeatService(collectorClient, "PC-1", interval, log, onAuthError, nil)
}

func TestFirstHeartbeatIsImmediate(t *testing.T) {
	fake := &fakeCollector{statuses: []int{http.StatusOK}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHeartbeatService(t, server.URL, time.Hour, nil)
	go h.Start(ctx)

	// The first beat must arrive long before the hour-long interval.
	assert.Eventually(t, func() bool {
		return len(fake.recorded()) == 1
	}, time.Second, 10*time.Millisecond)

	beats := fake.recorded()
	require.Len(t, beats, 1)
	assert.Equal(t, models.StatusOnline, beats[0].Status)
	assert.Equal(t, "PC-1", beats[0].PCID)
}

func TestContinuitySignal(t *testing.T) {
	// Beat 1 fails, beats 2 and 3 succeed. Each beat must carry the
	// outcome of the previous one.
	fake := &fakeCollector{statuses: []int{http.StatusInternalServerError, http.StatusOK, http.StatusOK}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	h := newHeartbeatService(t, server.URL, time.Hour, nil)
	ctx := context.Background()

	h.beat(ctx)
	h.beat(ctx)
	h.beat(ctx)

	beats := fake.recorded()
	require.Len(t, beats, 3)
	require.NotNil(t, beats[0].SystemInfo)
	assert.False(t, beats[0].SystemInfo.LastHeartbeatSuccess)
	assert.False(t, beats[1].SystemInfo.LastHeartbeatSuccess) // beat 1 failed
	assert.True(t, beats[2].SystemInfo.LastHeartbeatSuccess)  // beat 2 succeeded
}

func TestAuthFailureHaltsHeartbeats(t *testing.T) {
	fake := &fakeCollector{statuses: []int{http.StatusUnauthorized}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHeartbeatService(t, server.URL, 20*time.Millisecond, cancel)
	go h.Start(ctx)

	<-ctx.Done()

	// Let any beat already in flight land, then verify the transport
	// stays quiet.
	time.Sleep(100 * time.Millisecond)
	count := len(fake.recorded())
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, count, len(fake.recorded()))
}

func TestBeatFaultTriggersShutdown(t *testing.T) {
	log, err := logger.New("PC-1", "")
	require.NoError(t, err)

	// A nil transport makes the beat fault internally; the fault must be
	// contained and reported, never crash the process.
	var faulted bool
	h := NewHeartbeatService(NewCollectorClient(nil), "PC-1", time.Hour, log, nil, func() { faulted = true })

	require.NotPanics(t, func() { h.beat(context.Background()) })
	assert.True(t, faulted, "a beat fault must trigger shutdown")
}

func TestSendOffline(t *testing.T) {
	fake := &fakeCollector{statuses: []int{http.StatusOK}}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	h := newHeartbeatService(t, server.URL, time.Hour, nil)
	h.SendOffline(context.Background(), "signal: terminated")

	beats := fake.recorded()
	require.Len(t, beats, 1)
	assert.Equal(t, models.StatusOffline, beats[0].Status)
	assert.Equal(t, "signal: terminated", beats[0].ShutdownReason)
}

func TestSendOfflineFailureDoesNotBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	h := newHeartbeatService(t, server.URL, time.Hour, nil)

	done := make(chan struct{})
	go func() {
		h.SendOffline(context.Background(), "signal: interrupt")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("offline notice blocked shutdown")
	}
}
