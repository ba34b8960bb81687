package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const defaultMaxBackups = 5

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db   *sqlx.DB
	opts Options
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if opts.MaxBackups <= 0 {
		opts.MaxBackups = defaultMaxBackups
	}

	s := &SQLiteStore{db: db, opts: opts}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations brings the schema up to the newest version. Each
// migration runs in its own transaction together with its version row.
func (s *SQLiteStore) runMigrations() error {
	if _, err := s.db.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.Get(&current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(m migration) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// Load returns the current value stored under key.
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return value, nil
}

// Save replaces the value under key. The previous value, if any, is kept
// as a backup when the quota leaves room for it, and backups beyond
// MaxBackups are pruned oldest first.
func (s *SQLiteStore) Save(ctx context.Context, key string, blob []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var previous []byte
	err = tx.GetContext(ctx, &previous, "SELECT value FROM kv WHERE key = ?", key)
	hasPrevious := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading previous %s: %w", key, err)
	}

	backup := hasPrevious
	if s.opts.MaxBytes > 0 {
		var used int64
		err := tx.GetContext(ctx, &used, `
			SELECT
				COALESCE((SELECT SUM(LENGTH(value)) FROM kv WHERE key <> ?), 0) +
				COALESCE((SELECT SUM(LENGTH(value)) FROM backups), 0)`,
			key,
		)
		if err != nil {
			return fmt.Errorf("measuring usage: %w", err)
		}
		need := used + int64(len(blob))
		if need > s.opts.MaxBytes {
			return fmt.Errorf("saving %s (%d of %d bytes): %w", key, need, s.opts.MaxBytes, ErrQuotaExceeded)
		}
		// The backup is best effort: the new value goes in without it.
		if backup && need+int64(len(previous)) > s.opts.MaxBytes {
			backup = false
		}
	}

	now := time.Now().UTC()

	if backup {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO backups (key, value, created_at) VALUES (?, ?, ?)",
			key, previous, now,
		); err != nil {
			return fmt.Errorf("backing up %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM backups
			WHERE key = ? AND id NOT IN (
				SELECT id FROM backups WHERE key = ? ORDER BY id DESC LIMIT ?
			)`,
			key, key, s.opts.MaxBackups,
		); err != nil {
			return fmt.Errorf("pruning backups of %s: %w", key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, blob, now,
	); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}

	return tx.Commit()
}

// LatestBackup returns the newest backup taken of key.
func (s *SQLiteStore) LatestBackup(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value,
		"SELECT value FROM backups WHERE key = ? ORDER BY id DESC LIMIT 1", key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading backup of %s: %w", key, err)
	}
	return value, nil
}

// BackupCount returns how many backups are held for key.
func (s *SQLiteStore) BackupCount(ctx context.Context, key string) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM backups WHERE key = ?", key); err != nil {
		return 0, fmt.Errorf("counting backups of %s: %w", key, err)
	}
	return n, nil
}

// ClearBackups removes all backups.
func (s *SQLiteStore) ClearBackups(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM backups"); err != nil {
		return fmt.Errorf("clearing backups: %w", err)
	}
	return nil
}

// Usage returns the bytes currently counted against the quota.
func (s *SQLiteStore) Usage(ctx context.Context) (int64, error) {
	var used int64
	err := s.db.GetContext(ctx, &used, `
		SELECT
			COALESCE((SELECT SUM(LENGTH(value)) FROM kv), 0) +
			COALESCE((SELECT SUM(LENGTH(value)) FROM backups), 0)`,
	)
	if err != nil {
		return 0, fmt.Errorf("measuring usage: %w", err)
	}
	return used, nil
}

// SchemaVersion returns the newest applied migration.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}
