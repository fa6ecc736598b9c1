package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fleetwatch/agent/clients"
	"fleetwatch/pkg/models"
)

// ErrUnauthorized marks a 401-equivalent response. Credentials will not
// become valid without operator intervention, so callers treat it as fatal.
var ErrUnauthorized = errors.New("collector rejected credentials")

// CollectorClient provides the two wire operations the agent performs.
type CollectorClient struct {
	httpClient *clients.Client
}

// NewCollectorClient creates a new collector client.
func NewCollectorClient(httpClient *clients.Client) *CollectorClient {
	return &CollectorClient{httpClient: httpClient}
}

// Register sends the single registration request and returns the
// collector's confirmation message.
func (c *CollectorClient) Register(ctx context.Context, req models.RegisterRequest) (string, error) {
	resp, err := c.httpClient.PostJSON(ctx, "/api/register-agent", req)
	if err != nil {
		return "", fmt.Errorf("registration request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return "", ErrUnauthorized
	}
	if !resp.Success() {
		return "", fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	message, _ := resp.Body["message"].(string)
	return message, nil
}

// Heartbeat sends one heartbeat message. A 401 is reported as
// ErrUnauthorized; any other non-success status or transport failure is an
// ordinary error the caller logs and survives.
func (c *CollectorClient) Heartbeat(ctx context.Context, req models.HeartbeatRequest) error {
	resp, err := c.httpClient.PostJSON(ctx, "/api/heartbeat", req)
	if err != nil {
		return fmt.Errorf("heartbeat request failed: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if !resp.Success() {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}

	return nil
}
