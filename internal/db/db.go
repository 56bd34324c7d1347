package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open opens (creating if necessary) the SQLite database at path and runs
// any pending migrations. The returned handle is safe for concurrent use;
// writes are serialized through a single connection.
func Open(path string, logger *slog.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite supports one writer at a time. Funnel everything through a
	// single connection so concurrent API calls queue instead of erroring
	// with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrate(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := markInterruptedJobs(conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("marking interrupted jobs: %w", err)
	}

	return conn, nil
}

func migrate(conn *sql.DB, logger *slog.Logger) error {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := isMigrationApplied(conn, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}

		logger.Info("applied migration", "name", name)
	}

	return nil
}

func isMigrationApplied(conn *sql.DB, name string) (bool, error) {
	// The _migrations table itself is created by the first migration file,
	// so it may not exist yet.
	var exists int
	err := conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='_migrations'",
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking migrations table: %w", err)
	}
	if exists == 0 {
		return false, nil
	}

	var count int
	err = conn.QueryRow("SELECT COUNT(*) FROM _migrations WHERE name = ?", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %s: %w", name, err)
	}
	return count > 0, nil
}

// markInterruptedJobs fails any export job that was mid-flight when the
// agent last stopped. An export cannot be resumed because its staged frames
// live in a temp dir that is gone after restart.
func markInterruptedJobs(conn *sql.DB, logger *slog.Logger) error {
	res, err := conn.Exec(`
		UPDATE jobs
		SET status = 'error', message = 'interrupted by restart', updated_at = datetime('now')
		WHERE status IN ('preparing', 'rendering', 'encoding')`)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		logger.Warn("marked interrupted export jobs as failed", "count", n)
	}
	return nil
}
