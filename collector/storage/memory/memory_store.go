package memory

import (
	"context"
	"sync"
	"time"

	"fleetwatch/collector/domains"
	"fleetwatch/collector/storage"
	"fleetwatch/pkg/models"
)

// Store is an in-memory storage backend used by tests and single-node dev
// setups. Everything is lost on restart.
type Store struct {
	mu       sync.RWMutex
	pcs      map[string]*domains.PC
	settings map[string]string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		pcs:      make(map[string]*domains.PC),
		settings: make(map[string]string),
	}
}

// EnrollPC creates the record for a not-yet-connected machine.
func (s *Store) EnrollPC(ctx context.Context, pcID, owner, location, pcType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pcs[pcID]; ok {
		existing.Owner = owner
		existing.Location = location
		existing.PCType = pcType
		return nil
	}

	s.pcs[pcID] = &domains.PC{
		PCID:     pcID,
		Status:   models.StatusOffline,
		Owner:    owner,
		Location: location,
		PCType:   pcType,
	}
	return nil
}

// RegisterPC upserts the record at agent registration.
func (s *Store) RegisterPC(ctx context.Context, pcID string, systemInfo map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	pc, ok := s.pcs[pcID]
	if !ok {
		pc = &domains.PC{PCID: pcID}
		s.pcs[pcID] = pc
	}
	pc.Status = models.StatusOnline
	pc.SystemInfo = systemInfo
	pc.RegisteredAt = now
	pc.LastSeenAt = now
	pc.ShutdownReason = ""
	return nil
}

// RecordHeartbeat applies one heartbeat.
func (s *Store) RecordHeartbeat(ctx context.Context, update domains.HeartbeatUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.pcs[update.PCID]
	if !ok || pc.RegisteredAt.IsZero() {
		return storage.ErrNotFound
	}

	pc.Status = update.Status
	pc.LastSeenAt = update.Timestamp
	pc.LastHeartbeatSuccess = update.LastHeartbeatSuccess
	pc.ShutdownReason = update.ShutdownReason
	if update.SystemInfo != nil {
		pc.SystemInfo = update.SystemInfo
	}
	return nil
}

// GetPC returns a copy of the record, or nil when absent.
func (s *Store) GetPC(ctx context.Context, pcID string) (*domains.PC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pc, ok := s.pcs[pcID]
	if !ok {
		return nil, nil
	}
	cp := *pc
	return &cp, nil
}

// ListPCs returns copies of all records.
func (s *Store) ListPCs(ctx context.Context) ([]domains.PC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pcs := make([]domains.PC, 0, len(s.pcs))
	for _, pc := range s.pcs {
		pcs = append(pcs, *pc)
	}
	return pcs, nil
}

// UpdatePCDetails updates the operator-editable fields.
func (s *Store) UpdatePCDetails(ctx context.Context, pcID string, owner, location, pcType *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.pcs[pcID]
	if !ok {
		return storage.ErrNotFound
	}
	if owner != nil {
		pc.Owner = *owner
	}
	if location != nil {
		pc.Location = *location
	}
	if pcType != nil {
		pc.PCType = *pcType
	}
	return nil
}

// DeletePC removes the record.
func (s *Store) DeletePC(ctx context.Context, pcID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pcs[pcID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.pcs, pcID)
	return nil
}

// MarkStaleOffline flips stale ONLINE records to OFFLINE.
func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []string
	for _, pc := range s.pcs {
		if pc.Status == models.StatusOnline && pc.LastSeenAt.Before(cutoff) {
			pc.Status = models.StatusOffline
			flipped = append(flipped, pc.PCID)
		}
	}
	return flipped, nil
}

// SetSetting stores a dashboard setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// GetSetting returns "" when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[key], nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error {
	return nil
}
