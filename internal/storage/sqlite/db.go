package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/pacer/internal/storage/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the single-writer SQLite handle behind the pattern and roadmap stores.
type DB struct {
	*sql.DB
	logger     *slog.Logger
	migrations fs.FS
}

// Option configures a DB
type Option func(*DB)

// WithLogger sets the logger used for migration progress
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// withMigrations replaces the embedded schema, for tests
func withMigrations(fsys fs.FS) Option {
	return func(db *DB) { db.migrations = fsys }
}

// Open connects to the pacer database at path with WAL mode and foreign keys enabled.
func Open(ctx context.Context, path string, opts ...Option) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	// Pattern writes are serialized by the topic lock; one connection avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	db := &DB{DB: conn, logger: slog.Default(), migrations: migrations.FS}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// migration is one numbered schema file
type migration struct {
	version int
	name    string
}

// Migrate brings the schema up to the newest embedded migration and
// returns the resulting schema version.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	current, err := db.Version(ctx)
	if err != nil {
		return 0, err
	}

	pending, err := db.pending(current)
	if err != nil {
		return 0, err
	}

	for _, m := range pending {
		if err := db.apply(ctx, m); err != nil {
			return current, err
		}
		current = m.version
		db.logger.Info("applied schema migration", "name", m.name, "version", m.version)
	}

	if len(pending) > 0 {
		db.logger.Info("pacer schema up to date", "version", current, "applied", len(pending))
	}
	return current, nil
}

// pending lists migrations newer than current, in version order.
func (db *DB) pending(current int) ([]migration, error) {
	entries, err := fs.ReadDir(db.migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	seen := make(map[int]string)
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := parseVersion(e.Name())
		if err != nil {
			db.logger.Warn("skipping unnumbered migration file", "name", e.Name(), "error", err)
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, e.Name(), version)
		}
		seen[version] = e.Name()
		if version > current {
			out = append(out, migration{version: version, name: e.Name()})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// apply runs one migration and records it in a single transaction.
func (db *DB) apply(ctx context.Context, m migration) error {
	data, err := fs.ReadFile(db.migrations, m.name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(data)); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.name, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.name, err)
	}
	return nil
}

// Version returns the newest applied schema version, 0 for an empty database.
func (db *DB) Version(ctx context.Context) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// parseVersion reads the numeric prefix of a file like "001_patterns.sql".
func parseVersion(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("invalid migration filename: %s", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	if version <= 0 {
		return 0, fmt.Errorf("migration %s: version must be positive", name)
	}
	return version, nil
}
