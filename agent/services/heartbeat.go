package services

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"fleetwatch/agent/sysinfo"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// HeartbeatService drives the fixed-interval heartbeat loop. Ticks fire
// independently of the previous request's completion: a slow response never
// delays the next beat, so concurrent in-flight heartbeats are possible and
// the collector tolerates them. Durability comes from frequency, not from
// retries.
type HeartbeatService struct {
	collectorClient *CollectorClient
	pcID            string
	interval        time.Duration
	log             *logger.Logger

	lastSuccess atomic.Bool
	onAuthError func()
	onFault     func()
}

// NewHeartbeatService creates a heartbeat service. onAuthError is invoked
// when the collector answers a beat with a 401; onFault when a beat panics.
// Both must stop the loop by cancelling the context passed to Start.
func NewHeartbeatService(collectorClient *CollectorClient, pcID string, interval time.Duration, log *logger.Logger, onAuthError, onFault func()) *HeartbeatService {
	return &HeartbeatService{
		collectorClient: collectorClient,
		pcID:            pcID,
		interval:        interval,
		log:             log,
		onAuthError:     onAuthError,
		onFault:         onFault,
	}
}

// Start runs the loop until ctx is cancelled. The first heartbeat is sent
// immediately, not after a full interval.
func (h *HeartbeatService) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	go h.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go h.beat(ctx)
		}
	}
}

// beat sends one ONLINE heartbeat carrying the success flag observed from
// the previous attempt. A fault inside a beat is logged and triggers
// shutdown rather than crashing the process without an OFFLINE notice.
func (h *HeartbeatService) beat(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.WithField("panic", r).Error("heartbeat fault, shutting down")
			if h.onFault != nil {
				h.onFault()
			}
		}
	}()

	req := models.HeartbeatRequest{
		PCID:       h.pcID,
		Timestamp:  time.Now().UnixMilli(),
		Status:     models.StatusOnline,
		SystemInfo: sysinfo.ForHeartbeat(ctx, h.lastSuccess.Load()),
	}

	err := h.collectorClient.Heartbeat(ctx, req)
	switch {
	case err == nil:
		h.lastSuccess.Store(true)
	case errors.Is(err, ErrUnauthorized):
		h.log.Error("heartbeat rejected: authentication failed, stopping")
		if h.onAuthError != nil {
			h.onAuthError()
		}
	case ctx.Err() != nil:
		// Shutdown raced the in-flight beat; nothing to report.
	default:
		h.lastSuccess.Store(false)
		h.log.WithField("error", err).Warn("heartbeat failed")
	}
}

// SendOffline sends the single best-effort OFFLINE notice. Its failure is
// logged but never blocks shutdown.
func (h *HeartbeatService) SendOffline(ctx context.Context, reason string) {
	req := models.HeartbeatRequest{
		PCID:           h.pcID,
		Timestamp:      time.Now().UnixMilli(),
		Status:         models.StatusOffline,
		SystemInfo:     sysinfo.ForHeartbeat(ctx, h.lastSuccess.Load()),
		ShutdownReason: reason,
	}

	if err := h.collectorClient.Heartbeat(ctx, req); err != nil {
		h.log.WithField("error", err).Warn("offline notice failed")
		return
	}
	h.log.Info("offline notice delivered")
}
