package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	version int
	name    string
	up      string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		migrations = append(migrations, migration{
			version: version,
			name:    strings.TrimSuffix(name, ".up.sql"),
			up:      string(content),
		})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

// migrate applies all pending migrations. A migration that fails halfway
// leaves the version marked dirty and blocks further startups.
func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current, dirty int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0), COALESCE(MAX(dirty), 0) FROM schema_migrations`).Scan(&current, &dirty)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}
	if dirty != 0 {
		return fmt.Errorf("database is in dirty state at version %d, manual intervention required", current)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO schema_migrations (version, dirty) VALUES (?, 1)`, m.version); err != nil {
			return fmt.Errorf("mark version %d as dirty: %w", m.version, err)
		}
		if _, err := db.ExecContext(ctx, m.up); err != nil {
			return fmt.Errorf("run migration %s: %w", m.name, err)
		}
		if _, err := db.ExecContext(ctx, `UPDATE schema_migrations SET dirty = 0 WHERE version = ?`, m.version); err != nil {
			return fmt.Errorf("mark version %d as clean: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the latest applied migration.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE dirty = 0`).Scan(&v)
	return v, err
}
