package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"fleetwatch/agent/clients"
	"fleetwatch/agent/services"
	"fleetwatch/agent/sysinfo"
	"fleetwatch/pkg/logger"
	"fleetwatch/pkg/models"
)

// Agent owns the process-local run state: the heartbeat loop's context,
// the auth-failure flag and the one-shot shutdown guard. All lifecycle
// transitions go through this struct rather than package globals.
type Agent struct {
	cfg       *Config
	log       *logger.Logger
	heartbeat *services.HeartbeatService

	cancel       context.CancelFunc
	authFailed   atomic.Bool
	shutdownOnce sync.Once
}

// Run drives the full agent lifecycle: validate configuration, register
// once, heartbeat until a termination signal or a fatal authentication
// failure, then send the best-effort OFFLINE notice and exit.
func Run(args []string) (err error) {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.PCID, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Close()

	httpClient := clients.NewClient(cfg.CollectorURL, cfg.AuthToken, cfg.PCID, cfg.RequestTimeout)
	collectorClient := services.NewCollectorClient(httpClient)

	a := &Agent{cfg: cfg, log: log}

	// An uncaught fault is logged with its detail and still runs the
	// shutdown path instead of crashing silently.
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("unrecoverable fault, shutting down")
			if a.heartbeat != nil {
				a.shutdown("fault")
			}
			err = fmt.Errorf("unrecoverable fault: %v", r)
		}
	}()

	if err := a.register(collectorClient); err != nil {
		log.WithField("error", err).Error("registration failed")
		return fmt.Errorf("registration failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.cancel = cancel

	a.heartbeat = services.NewHeartbeatService(collectorClient, cfg.PCID, cfg.HeartbeatInterval, log, a.onAuthError, a.onFault)
	go a.heartbeat.Start(ctx)
	log.Info("agent running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var reason string
	select {
	case sig := <-sigChan:
		reason = "signal: " + sig.String()
		log.WithField("signal", sig.String()).Info("termination signal received")
	case <-ctx.Done():
		reason = "internal shutdown"
	}
	cancel()

	if a.authFailed.Load() {
		// Credentials were rejected mid-run; an OFFLINE notice would be
		// rejected the same way, so none is attempted.
		log.Error("stopped after authentication failure")
		return services.ErrUnauthorized
	}

	a.shutdown(reason)
	log.Info("agent stopped")
	return nil
}

// register sends exactly one registration request. Registration is never
// retried here; the supervisor restarts the agent on failure.
func (a *Agent) register(collectorClient *services.CollectorClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
	defer cancel()

	message, err := collectorClient.Register(ctx, models.RegisterRequest{
		PCID:       a.cfg.PCID,
		AuthToken:  a.cfg.AuthToken,
		SystemInfo: sysinfo.ForRegistration(),
	})
	if err != nil {
		return err
	}

	a.log.WithField("message", message).Info("registered with collector")
	return nil
}

// onAuthError stops the heartbeat loop after a 401. Safe to call more than
// once.
func (a *Agent) onAuthError() {
	a.authFailed.Store(true)
	a.cancel()
}

// onFault stops the run after a fault in the heartbeat path; the normal
// shutdown path then sends the OFFLINE notice.
func (a *Agent) onFault() {
	a.cancel()
}

// shutdown cancels the loop and sends the single OFFLINE notice. Guarded so
// that overlapping signal deliveries run it at most once.
func (a *Agent) shutdown(reason string) {
	a.shutdownOnce.Do(func() {
		a.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout)
		defer cancel()
		a.heartbeat.SendOffline(ctx, reason)
	})
}
