package storage

import (
	"context"
	"errors"
	"time"

	"fleetwatch/collector/domains"
)

// ErrNotFound is returned when the referenced PC was never enrolled or
// registered.
var ErrNotFound = errors.New("pc not found")

// Adapter defines the storage operations the collector needs. Backends:
// postgres, sqlite, memory.
type Adapter interface {
	// EnrollPC creates the record for a machine before its agent ever
	// connects. Status starts OFFLINE with a zero last-seen time.
	EnrollPC(ctx context.Context, pcID, owner, location, pcType string) error

	// RegisterPC upserts the record when the agent registers: status
	// ONLINE, registration metadata stored, last-seen set to now.
	RegisterPC(ctx context.Context, pcID string, systemInfo map[string]interface{}) error

	// RecordHeartbeat applies one accepted heartbeat. Returns ErrNotFound
	// when the PC was never registered.
	RecordHeartbeat(ctx context.Context, update domains.HeartbeatUpdate) error

	// GetPC returns nil, nil when the PC does not exist.
	GetPC(ctx context.Context, pcID string) (*domains.PC, error)

	ListPCs(ctx context.Context) ([]domains.PC, error)

	// UpdatePCDetails updates the operator-editable fields; nil means
	// leave unchanged.
	UpdatePCDetails(ctx context.Context, pcID string, owner, location, pcType *string) error

	DeletePC(ctx context.Context, pcID string) error

	// MarkStaleOffline flips PCs still ONLINE whose last-seen time is
	// before cutoff to OFFLINE and returns their ids.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error)

	// Settings is a small key/value surface for dashboard state such as
	// the downstream-integration API key.
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)

	Close() error
}
