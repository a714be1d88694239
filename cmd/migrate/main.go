// migrate applies the embedded SQL migrations in version order, once each.
// A checksum mismatch on an applied version aborts the run.
//
// Usage: go run ./cmd/migrate
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"erp-inventory/internal/config"
	"erp-inventory/internal/db"
	"erp-inventory/internal/logger"
	"erp-inventory/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// advisoryLockKey serialises concurrent migrators.
const advisoryLockKey = 7462839

type migration struct {
	version  string
	filename string
	checksum string
	body     string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.ServiceName+"-migrate", cfg.LogLevel, cfg.IsDevelopment())

	ctx := context.Background()
	if err := run(ctx, cfg.DatabaseURL); err != nil {
		logger.Logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Logger.Info().Msg("[DONE] all migrations processed")
}

func run(ctx context.Context, dbURL string) error {
	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("[CONNECT] %w", err)
	}
	defer pool.Close()

	conn, err := acquireLock(ctx, pool)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", advisoryLockKey)
		conn.Release()
	}()

	if err := setupSchemaMigrations(ctx, pool); err != nil {
		return err
	}

	list, err := discoverMigrations(migrations.FS)
	if err != nil {
		return err
	}
	for _, m := range list {
		if err := applyMigration(ctx, pool, m); err != nil {
			return err
		}
	}
	return nil
}

func acquireLock(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("[LOCK] failed to acquire connection for lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("[LOCK] failed to query advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, errors.New("[LOCK] another migrator is currently running")
	}

	logger.Logger.Info().Msg("[LOCK] acquired")
	return conn, nil
}

func setupSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// discoverMigrations reads NNN_description.sql files from fsys in name order.
func discoverMigrations(fsys fs.FS) ([]migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("[DISCOVER] %w", err)
	}
	sort.Strings(names)

	seen := map[string]bool{}
	out := make([]migration, 0, len(names))
	for _, name := range names {
		version, _, ok := strings.Cut(name, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("[DISCOVER] invalid migration filename %s, expected NNN_description.sql", name)
		}
		if seen[version] {
			return nil, fmt.Errorf("[DISCOVER] duplicate version %s", version)
		}
		seen[version] = true

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("[DISCOVER] read %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		out = append(out, migration{
			version:  version,
			filename: name,
			checksum: hex.EncodeToString(sum[:]),
			body:     string(body),
		})
	}
	return out, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, m migration) error {
	var existing string
	err := pool.QueryRow(ctx, "SELECT checksum FROM schema_migrations WHERE version = $1", m.version).Scan(&existing)
	switch {
	case err == nil:
		if existing != m.checksum {
			return fmt.Errorf("checksum mismatch for %s: recorded %s, file %s", m.filename, existing, m.checksum)
		}
		logger.Logger.Info().Str("file", m.filename).Msg("[SKIP]")
		return nil
	case !errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("failed to query schema_migrations for %s: %w", m.filename, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", m.filename, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.body); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.filename, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)",
		m.version, m.filename, m.checksum,
	); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.filename, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.filename, err)
	}

	logger.Logger.Info().Str("file", m.filename).Msg("[APPLY]")
	return nil
}
