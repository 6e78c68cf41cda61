package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/kgraph/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Store is the SQLite graph registry. It implements driven.StatusStore and
// driven.StatusHistory.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ driven.StatusStore   = (*Store)(nil)
	_ driven.StatusHistory = (*Store)(nil)
)

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.kgraph/data/graphs.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".kgraph", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "graphs.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Status changes read then write inside a transaction; a single
	// connection serialises them.
	db.SetMaxOpenConns(1)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  func() time.Time { return time.Now().UTC() },
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations and records each applied version.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("starting migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// Version returns the highest applied migration.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

// ==================== Graph Registry ====================

// Create registers a graph in the created stage.
func (s *Store) Create(ctx context.Context, rec domain.GraphRecord) error {
	if rec.UUID == "" {
		return fmt.Errorf("%w: graph uuid is required", domain.ErrInvalidInput)
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	status := string(domain.StageCreated)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graphs (uuid, title, query, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.UUID, rec.Title, rec.Query, status, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("graph %s: %w", rec.UUID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("creating graph: %w", err)
	}
	if err := recordEvent(ctx, tx, rec.UUID, status, now); err != nil {
		return err
	}
	return tx.Commit()
}

// SetStatus records a new status, creating the row if needed. Backward
// moves and moves out of done or error fail with domain.ErrInvalidTransition.
func (s *Store) SetStatus(ctx context.Context, graphID string, status domain.PipelineStatus) error {
	if !status.Stage.IsValid() {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidInput, status.Stage)
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM graphs WHERE uuid = ?", graphID).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO graphs (uuid, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		`, graphID, status.String(), now, now)
		if err != nil {
			return fmt.Errorf("creating graph: %w", err)
		}
	case err != nil:
		return fmt.Errorf("reading status: %w", err)
	default:
		from, perr := domain.ParseStatus(current)
		if perr != nil {
			return perr
		}
		if !domain.CanTransition(from.Stage, status.Stage) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from.Stage, status.Stage)
		}
		_, err = tx.ExecContext(ctx, "UPDATE graphs SET status = ?, updated_at = ? WHERE uuid = ?",
			status.String(), now, graphID)
		if err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
	}
	if err := recordEvent(ctx, tx, graphID, status.String(), now); err != nil {
		return err
	}
	return tx.Commit()
}

// SetTitle updates the display title.
func (s *Store) SetTitle(ctx context.Context, graphID, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE graphs SET title = ?, updated_at = ? WHERE uuid = ?",
		title, s.now(), graphID)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("graph %s: %w", graphID, domain.ErrNotFound)
	}
	return nil
}

// Get retrieves a graph row by uuid.
func (s *Store) Get(ctx context.Context, graphID string) (domain.GraphRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, title, query, status, created_at, updated_at
		FROM graphs WHERE uuid = ?
	`, graphID)
	return scanGraph(row)
}

// List returns graph rows newest first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.GraphRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT uuid, title, query, status, created_at, updated_at
		FROM graphs ORDER BY created_at DESC, uuid LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying graphs: %w", err)
	}
	defer rows.Close()

	var recs []domain.GraphRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		rec, err := scanGraph(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating graphs: %w", err)
	}
	return recs, nil
}

// History returns accepted status changes, oldest first.
func (s *Store) History(ctx context.Context, graphID string, limit int) ([]domain.StatusEvent, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, recorded_at FROM (
			SELECT id, status, recorded_at FROM graph_status_history
			WHERE graph_uuid = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, graphID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying status history: %w", err)
	}
	defer rows.Close()

	var events []domain.StatusEvent //nolint:prealloc // size unknown from query
	for rows.Next() {
		var ev domain.StatusEvent
		var at sql.NullTime
		if err := rows.Scan(&ev.Status, &at); err != nil {
			return nil, fmt.Errorf("scanning status event: %w", err)
		}
		ev.At = at.Time
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status history: %w", err)
	}
	return events, nil
}

// PruneHistory keeps the newest keep events per graph.
func (s *Store) PruneHistory(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM graph_status_history
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY graph_uuid ORDER BY id DESC) AS rn
				FROM graph_status_history
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning status history: %w", err)
	}
	return nil
}

func recordEvent(ctx context.Context, tx *sql.Tx, graphID, status string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO graph_status_history (graph_uuid, status, recorded_at) VALUES (?, ?, ?)
	`, graphID, status, at)
	if err != nil {
		return fmt.Errorf("recording status event: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGraph(row scanner) (domain.GraphRecord, error) {
	var rec domain.GraphRecord
	var createdAt, updatedAt sql.NullTime
	if err := row.Scan(&rec.UUID, &rec.Title, &rec.Query, &rec.Status, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, domain.ErrNotFound
		}
		return rec, fmt.Errorf("scanning graph: %w", err)
	}
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	return rec, nil
}
