package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		name       TEXT PRIMARY KEY,
		group_name TEXT NOT NULL DEFAULT '',
		template   TEXT NOT NULL DEFAULT '',
		record     TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_group ON projects(group_name)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_template ON projects(template)`,

	`CREATE TABLE IF NOT EXISTS builds (
		id           TEXT PRIMARY KEY,
		project      TEXT NOT NULL,
		number       INTEGER NOT NULL,
		result       TEXT NOT NULL,
		completed_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_builds_project_number ON builds(project, number)`,

	// One pending item per project; later requests coalesce into it.
	`CREATE TABLE IF NOT EXISTS queue (
		id         TEXT PRIMARY KEY,
		project    TEXT NOT NULL UNIQUE,
		cause      TEXT NOT NULL DEFAULT '{}',
		queued_at  TEXT NOT NULL,
		not_before TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_not_before ON queue(not_before)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "projects",
		column:   "disabled",
		alterSQL: "ALTER TABLE projects ADD COLUMN disabled INTEGER NOT NULL DEFAULT 0",
	},
	{
		table:    "projects",
		column:   "created_by",
		alterSQL: "ALTER TABLE projects ADD COLUMN created_by TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_projects_created_by ON projects(created_by)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
