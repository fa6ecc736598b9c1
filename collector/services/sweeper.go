package services

import (
	"context"
	"time"

	"fleetwatch/collector/storage"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// Sweeper flips PCs whose heartbeats have gone quiet to OFFLINE. The agent
// only reports OFFLINE on graceful shutdown, so a crash or network
// partition is detected here by age of the last heartbeat.
type Sweeper struct {
	store        storage.Adapter
	offlineAfter time.Duration
	interval     time.Duration
	notify       func(StatusEvent)
	log          *logger.Logger
}

// NewSweeper creates a sweeper. notify is invoked once per flipped PC.
func NewSweeper(store storage.Adapter, offlineAfter, interval time.Duration, notify func(StatusEvent), log *logger.Logger) *Sweeper {
	return &Sweeper{
		store:        store,
		offlineAfter: offlineAfter,
		interval:     interval,
		notify:       notify,
		log:          log,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.offlineAfter)
	flipped, err := s.store.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		s.log.WithField("error", err).Warn("offline sweep failed")
		return
	}

	for _, pcID := range flipped {
		s.log.WithField("pcId", pcID).Info("marked offline after missed heartbeats")
		if s.notify != nil {
			s.notify(StatusEvent{PCID: pcID, Status: models.StatusOffline, At: time.Now()})
		}
	}
}
