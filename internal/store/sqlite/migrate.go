package sqlite

// migrate.go is the versioned schema migration runner. On open: ensure the
// ledger table exists, read the highest applied version, and apply every
// newer migration in ascending order — each inside its own transaction
// together with its ledger insert. A failing migration rolls back whole and
// aborts startup; no table access ever runs against a partial schema.

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

const ledgerTable = "schema_migrations"

// AppliedMigration is one row of the migration ledger.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// RunMigrations brings the database schema up to date. It is idempotent:
// a second run applies nothing and leaves the ledger unchanged.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := ensureLedger(ctx, db); err != nil {
		return err
	}

	current, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}

	pending := pendingMigrations(current)
	if len(pending) == 0 {
		slog.Debug("schema up to date", "version", current)
		return nil
	}

	for _, m := range pending {
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Name, err)
		}
		slog.Info("applied migration", "version", m.Version, "name", m.Name)
	}
	return nil
}

func ensureLedger(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+ledgerTable+` (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}
	return nil
}

func appliedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM `+ledgerTable).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read applied version: %w", err)
	}
	return int(version.Int64), nil
}

func pendingMigrations(current int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})
	return pending
}

// applyMigration runs one migration's statements and its ledger insert in a
// single transaction. Any failure rolls the whole migration back.
func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO `+ledgerTable+` (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record in ledger: %w", err)
	}

	return tx.Commit()
}

// AppliedMigrations returns the ledger contents in version order.
func AppliedMigrations(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version, name, applied_at FROM `+ledgerTable+` ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		var appliedAt string
		if err := rows.Scan(&m.Version, &m.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			m.AppliedAt = t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reset drops every managed object and re-runs all migrations from zero.
// Development-only and destructive; never called automatically.
func Reset(ctx context.Context, db *sql.DB) error {
	for _, table := range entityTables {
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table+`_fts`); err != nil {
			return fmt.Errorf("drop %s_fts: %w", table, err)
		}
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+ledgerTable); err != nil {
		return fmt.Errorf("drop ledger: %w", err)
	}
	return RunMigrations(ctx, db)
}
