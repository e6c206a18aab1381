// internal/store/postgres/migrations.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"renter-wizard/internal/common/database"
	"renter-wizard/internal/common/logger"
)

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Migrate applies every *.sql file in fsys that is not yet recorded in
// schema_migrations, in name order. Each file runs in its own transaction
// together with its bookkeeping row. It returns the names it applied.
func Migrate(ctx context.Context, db *database.PostgresClient, fsys fs.FS, log logger.Logger) ([]string, error) {
	if _, err := db.Exec(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("%w: create schema_migrations: %v", ErrDatabaseWriteFailed, err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		var exists bool
		err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("%w: check migration %s: %v", ErrDatabaseQueryFailed, name, err)
		}
		if exists {
			continue
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			log.Warn("skipping empty migration", map[string]interface{}{"name": name})
			continue
		}

		err = db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("%w: apply migration %s: %v", ErrDatabaseWriteFailed, name, err)
		}

		log.Info("migration applied", map[string]interface{}{"name": name})
		applied = append(applied, name)
	}
	return applied, nil
}
