package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Session binds an operator-supplied API key to one dashboard-initiated
// run. Sessions expire by age; there is no explicit revocation.
type Session struct {
	ID        string    `json:"id"`
	APIKey    string    `json:"apiKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore is the run-credentials session surface.
type SessionStore interface {
	// Create mints a session for the given API key.
	Create(ctx context.Context, apiKey string) (*Session, error)
	// Get returns nil, nil when the session is unknown or expired.
	Get(ctx context.Context, id string) (*Session, error)
	Close() error
}

// MemorySessionStore keeps sessions in a map with lazy expiry plus a
// periodic sweep. Used when no Redis address is configured.
type MemorySessionStore struct {
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*Session
	done     chan struct{}
	once     sync.Once
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{
		ttl:      ttl,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Create mints a session for the given API key.
func (s *MemorySessionStore) Create(ctx context.Context, apiKey string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		APIKey:    apiKey,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return session, nil
}

// Get returns nil when the session is unknown or past its TTL.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if time.Since(session.CreatedAt) > s.ttl {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, nil
	}

	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)
			s.mu.Lock()
			for id, session := range s.sessions {
				if session.CreatedAt.Before(cutoff) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the sweep goroutine.
func (s *MemorySessionStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// RedisSessionStore keeps sessions in Redis, letting the server expire them
// natively via key TTL.
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(addr, password string, db int, ttl time.Duration) (*RedisSessionStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSessionStore{rdb: rdb, ttl: ttl}, nil
}

func sessionKey(id string) string {
	return "fleetwatch:session:" + id
}

// Create mints a session for the given API key.
func (s *RedisSessionStore) Create(ctx context.Context, apiKey string) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		APIKey:    apiKey,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKey(session.ID), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

// Get returns nil when the key is absent (never created or expired).
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Close closes the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.rdb.Close()
}
