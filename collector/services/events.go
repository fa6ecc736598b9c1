package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"fleetwatch/pkg/logger"
)

// StatusEvent describes one PC status transition.
type StatusEvent struct {
	PCID   string    `json:"pcId"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// EventPublisher receives status transitions. Publish failures are logged
// by implementations and never propagate to the request path.
type EventPublisher interface {
	PublishStatus(event StatusEvent)
	Close()
}

// NATSPublisher publishes status events for downstream integrations on
// subject fleetwatch.status.<pcId>.
type NATSPublisher struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url string, log *logger.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("fleetwatch-collector"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithField("error", err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{conn: conn, log: log}, nil
}

// PublishStatus publishes one status event. Failures are logged only.
func (p *NATSPublisher) PublishStatus(event StatusEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.log.WithField("error", err).Warn("failed to marshal status event")
		return
	}

	subject := "fleetwatch.status." + event.PCID
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.WithField("error", err).Warn("failed to publish status event")
	}
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() {
	p.conn.Close()
}

// NoopPublisher is used when no NATS server is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatus(StatusEvent) {}
func (NoopPublisher) Close()                    {}
