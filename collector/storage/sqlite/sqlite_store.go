package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fleetwatch/collector/domains"
	"fleetwatch/collector/storage"
	"fleetwatch/pkg/models"
)

// Store is the SQLite storage backend, suitable for single-node collectors.
type Store struct {
	db *sql.DB
}

// NewStore opens (and if needed creates) the SQLite database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) runMigrations() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pcs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pc_id TEXT UNIQUE NOT NULL,
			status TEXT NOT NULL DEFAULT 'OFFLINE',
			owner TEXT,
			location TEXT,
			pc_type TEXT,
			system_info TEXT,
			last_heartbeat_success INTEGER NOT NULL DEFAULT 0,
			shutdown_reason TEXT,
			registered_at DATETIME,
			last_seen_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pcs_status ON pcs(status)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// EnrollPC creates the record for a not-yet-connected machine.
func (s *Store) EnrollPC(ctx context.Context, pcID, owner, location, pcType string) error {
	query := `
		INSERT INTO pcs (pc_id, status, owner, location, pc_type)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pc_id) DO UPDATE SET
			owner = excluded.owner,
			location = excluded.location,
			pc_type = excluded.pc_type
	`
	_, err := s.db.ExecContext(ctx, query, pcID, models.StatusOffline, owner, location, pcType)
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pc_id) DO UPDATE SET
			status = excluded.status,
			system_info = excluded.system_info,
			registered_at = excluded.registered_at,
			last_seen_at = excluded.last_seen_at,
			shutdown_reason = NULL
	`
	now := time.Now()
	_, err = s.db.ExecContext(ctx, query, pcID, models.StatusOnline, string(infoJSON), now, now)
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
			status = ?,
			last_seen_at = ?,
			last_heartbeat_success = ?,
			shutdown_reason = NULLIF(?, ''),
			system_info = COALESCE(?, system_info)
		WHERE pc_id = ? AND registered_at IS NOT NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		update.Status, update.Timestamp, update.LastHeartbeatSuccess,
		update.ShutdownReason, infoJSON, update.PCID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const pcColumns = `pc_id, status, owner, location, pc_type, system_info,
	last_heartbeat_success, shutdown_reason, registered_at, last_seen_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPC(row rowScanner) (*domains.PC, error) {
	var (
		pc             domains.PC
		owner          sql.NullString
		location       sql.NullString
		pcType         sql.NullString
		infoJSON       sql.NullString
		shutdownReason sql.NullString
		registeredAt   sql.NullTime
		lastSeenAt     sql.NullTime
	)

	err := row.Scan(&pc.PCID, &pc.Status, &owner, &location, &pcType, &infoJSON,
		&pc.LastHeartbeatSuccess, &shutdownReason, &registeredAt, &lastSeenAt)
	if err != nil {
		return nil, err
	}

	pc.Owner = owner.String
	pc.Location = location.String
	pc.PCType = pcType.String
	pc.ShutdownReason = shutdownReason.String
	pc.RegisteredAt = registeredAt.Time
	pc.LastSeenAt = lastSeenAt.Time
	if infoJSON.Valid && infoJSON.String != "" {
		if err := json.Unmarshal([]byte(infoJSON.String), &pc.SystemInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal system info: %w", err)
		}
	}
	return &pc, nil
}

// GetPC retrieves a PC by id, nil when absent.
func (s *Store) GetPC(ctx context.Context, pcID string) (*domains.PC, error) {
	query := `SELECT ` + pcColumns + ` FROM pcs WHERE pc_id = ?`
	pc, err := scanPC(s.db.QueryRowContext(ctx, query, pcID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pc, nil
}

// ListPCs retrieves all records ordered by last-seen time.
func (s *Store) ListPCs(ctx context.Context) ([]domains.PC, error) {
	query := `SELECT ` + pcColumns + ` FROM pcs ORDER BY last_seen_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
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
			owner = COALESCE(?, owner),
			location = COALESCE(?, location),
			pc_type = COALESCE(?, pc_type)
		WHERE pc_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, owner, location, pcType, pcID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeletePC removes the record.
func (s *Store) DeletePC(ctx context.Context, pcID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pcs WHERE pc_id = ?`, pcID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkStaleOffline flips stale ONLINE records to OFFLINE.
func (s *Store) MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error) {
	selectQuery := `SELECT pc_id FROM pcs WHERE status = ? AND last_seen_at < ?`
	rows, err := s.db.QueryContext(ctx, selectQuery, models.StatusOnline, cutoff)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(flipped) == 0 {
		return nil, nil
	}

	updateQuery := `UPDATE pcs SET status = ? WHERE status = ? AND last_seen_at < ?`
	if _, err := s.db.ExecContext(ctx, updateQuery, models.StatusOffline, models.StatusOnline, cutoff); err != nil {
		return nil, err
	}
	return flipped, nil
}

// SetSetting stores a dashboard setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, key, value, time.Now())
	return err
}

// GetSetting returns "" when the key is absent.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
