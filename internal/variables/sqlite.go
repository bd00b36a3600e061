package variables

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a MemoryStore whose values survive restarts. Reads are served
// from memory; every SetMany is written through.
type SQLiteStore struct {
	*MemoryStore
	db     *sql.DB
	logger zerolog.Logger

	// writeMu keeps memory and the database committing in the same order.
	writeMu sync.Mutex
}

// OpenSQLite opens (or creates) the database, runs migrations and loads the
// persisted values.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		MemoryStore: NewMemoryStore(),
		db:          db,
		logger:      logger.With().Str("component", "variables").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("path", path).Int("values", len(s.values)).Msg("variable store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS variables (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS action_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		caller TEXT NOT NULL DEFAULT '',
		result TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_action_log_created ON action_log(created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT name, value FROM variables`)
	if err != nil {
		return fmt.Errorf("failed to load variables: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("failed to scan variable: %w", err)
		}
		s.values[name] = value
	}
	return rows.Err()
}

// SetMany updates memory, notifies subscribers and persists the changed
// values in one transaction. Persistence failures are logged.
func (s *SQLiteStore) SetMany(values map[string]string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	changed := s.apply(values)
	if len(changed) == 0 {
		return
	}
	if err := s.persist(changed); err != nil {
		s.logger.Error().Err(err).Int("values", len(changed)).Msg("failed to persist variables")
	}
	s.broadcast(changed)
}

func (s *SQLiteStore) persist(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO variables(name, value, updated_at) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for k, v := range values {
		if _, err := stmt.Exec(k, v, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("save %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// ActionRecord is one executed host action.
type ActionRecord struct {
	Action    string
	Caller    string
	Result    string
	Detail    string
	CreatedAt int64
}

// RecordAction appends to the action log.
func (s *SQLiteStore) RecordAction(action, caller, result, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO action_log(action, caller, result, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		action, caller, result, sql.NullString{String: detail, Valid: detail != ""}, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// RecentActions returns the newest action log entries first.
func (s *SQLiteStore) RecentActions(limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT action, caller, result, detail, created_at FROM action_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		var detail sql.NullString
		if err := rows.Scan(&r.Action, &r.Caller, &r.Result, &detail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		r.Detail = detail.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
