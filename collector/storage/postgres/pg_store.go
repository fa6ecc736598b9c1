package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleetwatch/collector/domains"
	"fleetwatch/collector/storage"
	"fleetwatch/pkg/models"
)

// Store is the Postgres storage backend.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Postgres store. The database must already exist;
// creation is handled at the deployment level.
func NewStore(connString string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// EnrollPC creates the record for a not-yet-connected machine.
func (s *Store) EnrollPC(ctx context.Context, pcID, owner, location, pcType string) error {
	query := `
		INSERT INTO pcs (pc_id, status, owner, location, pc_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pc_id)
		DO UPDATE SET
			owner = EXCLUDED.owner,
			location = EXCLUDED.location,
			pc_type = EXCLUDED.pc_type
	`
	_, err := s.pool.Exec(ctx, query, pcID, models.StatusOffline, owner, location, pcType)
	return err
}

// RegisterPC upserts the record at agent registration.
func (s *Store) RegisterPC(ctx context.Context, pcID string, systemInfo map[string]interface{}) error {
	infoJSON, err := json.Marshal(systemInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal system info: %w", err)
	}

	query := `
		INSERT INTO pcs (pc_id, status, system_info, registered_at, last_seen_at)
		VALUES ($1, $2, $3::jsonb, $4, $4)
		ON CONFLICT (pc_id)
		DO UPDATE SET
			status = EXCLUDED.status,
			system_info = EXCLUDED.system_info,
			registered_at = EXCLUDED.registered_at,
			last_seen_at = EXCLUDED.last_seen_at,
			shutdown_reason = NULL
	`
	_, err = s.pool.Exec(ctx, query, pcID, models.StatusOnline, string(infoJSON), time.Now())
	return err
}

// RecordHeartbeat applies one heartbeat.
func (s *Store) RecordHeartbeat(ctx context.Context, update domains.HeartbeatUpdate) error {
	var infoJSON *string
	if update.SystemInfo != nil {
		raw, err := json.Marshal(update.SystemInfo)
		if err != nil {
			return fmt.Errorf("failed to marshal system info: %w", err)
		}
		str := string(raw)
		infoJSON = &str
	}

	query := `
		UPDATE pcs SET
			status = $1,
			last_seen_at = $2,
			last_heartbeat_success = $3,
			shutdown_reason = NULLIF($4, ''),
			system_info = COALESCE($5::jsonb, system_info)
		WHERE pc_id = $6 AND registered_at IS NOT NULL
	`
	tag, err := s.pool.Exec(ctx, query,
		update.Status, update.Timestamp, update.LastHeartbeatSuccess,
		update.ShutdownReason, infoJSON, update.PCID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const pcColumns = `pc_id, status, owner, location, pc_type, system_info,
	last_heartbeat_success, shutdown_reason, registered_at, last_seen_at`

func scanPC(row pgx.Row) (*domains.PC, error) {
	var (
		pc             domains.PC
		owner          *string
		location       *string
		pcType         *string
		infoJSON       []byte
		shutdownReason *string
		registeredAt   *time.Time
		lastSeenAt     *time.Time
	)

	err := row.Scan(&pc.PCID, &pc.Status, &owner, &location, &pcType, &infoJSON,
		&pc.LastHeartbeatSuccess, &shutdownReason, &registeredAt, &lastSeenAt)
	if err != nil {
		return nil, err
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
	if shutdownReason != nil {
		pc.ShutdownReason = *shutdownReason
	}
	if registeredAt != nil {
		pc.RegisteredAt = *registeredAt
	}
	if lastSeenAt != nil {
		pc.LastSeenAt = *lastSeenAt
	}
	if len(infoJSON) > 0 {
		if err := json.Unmarshal(infoJSON, &pc.SystemInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal system info: %w", err)
		}
	}
	return &pc, nil
}

// GetPC retrieves a PC by id, nil when absent.
func (s *Store) GetPC(ctx context.Context, pcID string) (*domains.PC, error) {
	query := `SELECT ` + pcColumns + ` FROM pcs WHERE pc_id = $1`
	pc, err := scanPC(s.pool.QueryRow(ctx, query, pcID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// ListPCs retrieves all records ordered by last-seen time.
func (s *Store) ListPCs(ctx context.Context) ([]domains.PC, error) {
	query := `SELECT ` + pcColumns + ` FROM pcs ORDER BY last_seen_at DESC NULLS LAST`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pcs []domains.PC
	for rows.Next() {
		pc, err := scanPC(rows)
		if err != nil {
			return nil, err
		}
		pcs = append(pcs, *pc)
	}
	return pcs, rows.Err()
}

// UpdatePCDetails updates the operator-editable fields.
func (s *Store) UpdatePCDetails(ctx context.Context, pcID string, owner, location, pcType *string) error {
	query := `
		UPDATE pcs SET
			owner = COALESCE($1, owner),
			location = COALESCE($2, location),
			pc_type = COALESCE($3, pc_type)
		WHERE pc_id = $4
	`
	tag, err := s.pool.Exec(ctx, query, owner, location, pcType, pcID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeletePC removes the record.
func (s *Store) DeletePC(ctx context.Context, pcID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pcs WHERE pc_id = $1`, pcID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkStaleOffline flips stale ONLINE records to OFFLINE.
func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		UPDATE pcs SET status = $1
		WHERE status = $2 AND last_seen_at < $3
		RETURNING pc_id
	`
	rows, err := s.pool.Query(ctx, query, models.StatusOffline, models.StatusOnline, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flipped []string
	for rows.Next() {
		var pcID string
		if err := rows.Scan(&pcID); err != nil {
			return nil, err
		}
		flipped = append(flipped, pcID)
	}
	return flipped, rows.Err()
}

// SetSetting stores a dashboard setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	_, err := s.pool.Exec(ctx, query, key, value, time.Now())
	return err
}

// GetSetting returns "" when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
