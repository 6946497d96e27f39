// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides agent/credential persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// createSchema creates the agents table if it doesn't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		name       TEXT PRIMARY KEY,
		label      TEXT NOT NULL,
		api_key    TEXT NOT NULL,
		fields     TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveAgent inserts or updates an agent keyed by name.
func (s *SQLiteStore) SaveAgent(ctx context.Context, agent *Agent) error {
	fields, err := json.Marshal(agent.Fields)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}

	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agents (name, label, api_key, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			label = excluded.label,
			api_key = excluded.api_key,
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`, agent.Name, agent.Label, agent.APIKey, string(fields), agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving agent: %w", err)
	}

	return nil
}

// GetAgent returns the agent with the given name.
func (s *SQLiteStore) GetAgent(ctx context.Context, name string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, label, api_key, fields, created_at, updated_at
		FROM agents WHERE name = ?
	`, name)

	return scanAgent(row)
}

// ListAgents returns all agents ordered by creation time.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, label, api_key, fields, created_at, updated_at
		FROM agents ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	return agents, rows.Err()
}

// DeleteAgent removes the agent with the given name.
func (s *SQLiteStore) DeleteAgent(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting agent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrAgentNotFound
	}

	return nil
}

// FirstAgent returns the oldest configured agent.
func (s *SQLiteStore) FirstAgent(ctx context.Context) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, label, api_key, fields, created_at, updated_at
		FROM agents ORDER BY created_at, name LIMIT 1
	`)

	return scanAgent(row)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanAgent.
type scanner interface {
	Scan(dest ...any) error
}

// scanAgent reads one agent row, decoding the fields JSON column.
func scanAgent(row scanner) (*Agent, error) {
	var agent Agent
	var fields string

	err := row.Scan(&agent.Name, &agent.Label, &agent.APIKey, &fields, &agent.CreatedAt, &agent.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}

	if err := json.Unmarshal([]byte(fields), &agent.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}

	return &agent, nil
}
