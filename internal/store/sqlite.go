// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides debuggee and breakpoint persistence with automatic schema creation

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
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/debuglet/internal/breakpoint"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
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

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS debuggees (
			id            TEXT PRIMARY KEY,
			project       TEXT NOT NULL,
			uniquifier    TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			agent_version TEXT NOT NULL DEFAULT '',
			labels_json   TEXT,
			source_contexts_json TEXT,
			disabled      INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			last_seen     TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_debuggees_identity
			ON debuggees(project, uniquifier);

		CREATE TABLE IF NOT EXISTS breakpoints (
			id          TEXT NOT NULL,
			debuggee_id TEXT NOT NULL,
			is_final    INTEGER NOT NULL DEFAULT 0,
			create_time TEXT NOT NULL,
			data_json   TEXT NOT NULL,

			PRIMARY KEY (debuggee_id, id),
			FOREIGN KEY (debuggee_id) REFERENCES debuggees(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_breakpoints_active
			ON breakpoints(debuggee_id, is_final, create_time);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations brings databases created by older versions up to the
// current schema. Safe to run repeatedly.
func (s *SQLiteStore) runMigrations() error {
	// SQLite has no ADD COLUMN IF NOT EXISTS, so check first
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info('debuggees') WHERE name = 'source_contexts_json'`).Scan(&exists)
	if err == nil {
		return nil
	}
	if _, err := s.db.Exec(`ALTER TABLE debuggees ADD COLUMN source_contexts_json TEXT`); err != nil {
		return fmt.Errorf("adding source_contexts_json column to debuggees: %w", err)
	}
	s.logger.Info("applied migration", "column", "source_contexts_json", "table", "debuggees")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// RegisterDebuggee upserts a debuggee keyed by (project, uniquifier)
func (s *SQLiteStore) RegisterDebuggee(ctx context.Context, d *Debuggee) (*Debuggee, error) {
	labels, err := json.Marshal(d.Labels)
	if err != nil {
		return nil, fmt.Errorf("encoding labels: %w", err)
	}
	contexts, err := json.Marshal(d.SourceContexts)
	if err != nil {
		return nil, fmt.Errorf("encoding source contexts: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO debuggees (id, project, uniquifier, description, agent_version, labels_json, source_contexts_json, disabled, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(project, uniquifier) DO UPDATE SET
			description = excluded.description,
			agent_version = excluded.agent_version,
			labels_json = excluded.labels_json,
			source_contexts_json = excluded.source_contexts_json,
			last_seen = excluded.last_seen
	`
	_, err = s.db.ExecContext(ctx, query,
		d.ID,
		d.Project,
		d.Uniquifier,
		d.Description,
		d.AgentVersion,
		string(labels),
		string(contexts),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("registering debuggee: %w", err)
	}

	row := s.db.QueryRowContext(ctx, selectDebuggee+` WHERE project = ? AND uniquifier = ?`, d.Project, d.Uniquifier)
	return scanDebuggee(row)
}

const selectDebuggee = `
	SELECT id, project, uniquifier, description, agent_version, labels_json, source_contexts_json, disabled, created_at, last_seen
	FROM debuggees
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebuggee(row rowScanner) (*Debuggee, error) {
	var d Debuggee
	var labels, contexts sql.NullString
	var disabled int
	var createdAtStr, lastSeenStr string

	err := row.Scan(
		&d.ID,
		&d.Project,
		&d.Uniquifier,
		&d.Description,
		&d.AgentVersion,
		&labels,
		&contexts,
		&disabled,
		&createdAtStr,
		&lastSeenStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning debuggee: %w", err)
	}

	d.Disabled = disabled != 0
	if labels.Valid && labels.String != "" && labels.String != "null" {
		if err := json.Unmarshal([]byte(labels.String), &d.Labels); err != nil {
			return nil, fmt.Errorf("decoding labels: %w", err)
		}
	}
	if contexts.Valid && contexts.String != "" && contexts.String != "null" {
		if err := json.Unmarshal([]byte(contexts.String), &d.SourceContexts); err != nil {
			return nil, fmt.Errorf("decoding source contexts: %w", err)
		}
	}

	d.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	d.LastSeen, err = parseTime(lastSeenStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	return &d, nil
}

// GetDebuggee retrieves a debuggee by ID
func (s *SQLiteStore) GetDebuggee(ctx context.Context, id string) (*Debuggee, error) {
	row := s.db.QueryRowContext(ctx, selectDebuggee+` WHERE id = ?`, id)
	return scanDebuggee(row)
}

// ListDebuggees lists debuggees, optionally filtered by project
func (s *SQLiteStore) ListDebuggees(ctx context.Context, project string) ([]*Debuggee, error) {
	query := selectDebuggee
	var args []any
	if project != "" {
		query += ` WHERE project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying debuggees: %w", err)
	}
	defer rows.Close()

	var out []*Debuggee
	for rows.Next() {
		d, err := scanDebuggee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating debuggees: %w", err)
	}
	return out, nil
}

// SetDebuggeeDisabled toggles the disabled flag returned on registration
func (s *SQLiteStore) SetDebuggeeDisabled(ctx context.Context, id string, disabled bool) error {
	flag := 0
	if disabled {
		flag = 1
	}
	result, err := s.db.ExecContext(ctx, `UPDATE debuggees SET disabled = ? WHERE id = ?`, flag, id)
	if err != nil {
		return fmt.Errorf("updating debuggee: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateBreakpoint stores a new breakpoint for a debuggee
func (s *SQLiteStore) CreateBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	data, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("encoding breakpoint: %w", err)
	}

	query := `
		INSERT INTO breakpoints (id, debuggee_id, is_final, create_time, data_json)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		bp.ID,
		debuggeeID,
		boolInt(bp.IsFinalState),
		formatTime(bp.CreateTime),
		string(data),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return ErrNotFound
		}
		if isConstraintViolation(err) {
			return ErrDuplicateBreakpoint
		}
		return fmt.Errorf("inserting breakpoint: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decodeBreakpoint(data string) (*breakpoint.Breakpoint, error) {
	var bp breakpoint.Breakpoint
	if err := json.Unmarshal([]byte(data), &bp); err != nil {
		return nil, fmt.Errorf("decoding breakpoint: %w", err)
	}
	return &bp, nil
}

// GetBreakpoint retrieves one breakpoint
func (s *SQLiteStore) GetBreakpoint(ctx context.Context, debuggeeID, id string) (*breakpoint.Breakpoint, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data_json FROM breakpoints WHERE debuggee_id = ? AND id = ?`,
		debuggeeID, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying breakpoint: %w", err)
	}
	return decodeBreakpoint(data)
}

// ListBreakpoints lists a debuggee's breakpoints in creation order
func (s *SQLiteStore) ListBreakpoints(ctx context.Context, debuggeeID string, includeFinal bool) ([]*breakpoint.Breakpoint, error) {
	query := `SELECT data_json FROM breakpoints WHERE debuggee_id = ?`
	if !includeFinal {
		query += ` AND is_final = 0`
	}
	query += ` ORDER BY create_time ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, debuggeeID)
	if err != nil {
		return nil, fmt.Errorf("querying breakpoints: %w", err)
	}
	defer rows.Close()

	var out []*breakpoint.Breakpoint
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning breakpoint: %w", err)
		}
		bp, err := decodeBreakpoint(data)
		if err != nil {
			return nil, err
		}
		out = append(out, bp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating breakpoints: %w", err)
	}
	return out, nil
}

// UpdateBreakpoint replaces a stored breakpoint
func (s *SQLiteStore) UpdateBreakpoint(ctx context.Context, debuggeeID string, bp *breakpoint.Breakpoint) error {
	data, err := json.Marshal(bp)
	if err != nil {
		return fmt.Errorf("encoding breakpoint: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE breakpoints SET is_final = ?, data_json = ? WHERE debuggee_id = ? AND id = ?`,
		boolInt(bp.IsFinalState), string(data), debuggeeID, bp.ID,
	)
	if err != nil {
		return fmt.Errorf("updating breakpoint: %w", err)
	}
	return requireAffected(result)
}

// DeleteBreakpoint removes a breakpoint
func (s *SQLiteStore) DeleteBreakpoint(ctx context.Context, debuggeeID, id string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM breakpoints WHERE debuggee_id = ? AND id = ?`,
		debuggeeID, id,
	)
	if err != nil {
		return fmt.Errorf("deleting breakpoint: %w", err)
	}
	return requireAffected(result)
}
