package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/jobcascade/pkg/model"

	_ "modernc.org/sqlite"
)

// queueTimeFormat is fixed width so that queue timestamps sort as text.
const queueTimeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Project CRUD ---

func (s *SQLiteStore) CreateProject(ctx context.Context, p *model.Project) error {
	s.logger.Debug("sql", "op", "insert", "table", "projects", "name", p.Name())

	rec := p.Record()
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (name, group_name, template, record, disabled, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Name, rec.Group, rec.Template, string(recordJSON), boolToInt(rec.Disabled), rec.CreatedBy,
		createdAt(rec).Format(time.RFC3339Nano), now,
	)
	if err != nil {
		return fmt.Errorf("insert project %s: %w", rec.Name, err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, name string) (*model.Project, error) {
	s.logger.Debug("sql", "op", "select", "table", "projects", "name", name)

	var recordJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM projects WHERE name = ?`, name).Scan(&recordJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeProject(recordJSON)
}

func (s *SQLiteStore) ListProjects(ctx context.Context, opts model.ListOptions) ([]*model.Project, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "projects", "limit", opts.Limit, "offset", opts.Offset, "group", opts.Group)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.Group != "" {
		whereSQL = " WHERE group_name = ?"
		args = append(args, opts.Group)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM projects`+whereSQL+` ORDER BY name LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	projects, err := scanProjects(rows)
	if err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// AllProjects returns every stored project ordered by name.
func (s *SQLiteStore) AllProjects(ctx context.Context) ([]*model.Project, error) {
	s.logger.Debug("sql", "op", "list_all", "table", "projects")

	rows, err := s.db.QueryContext(ctx, `SELECT record FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanProjects(rows)
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, p *model.Project) error {
	s.logger.Debug("sql", "op", "update", "table", "projects", "name", p.Name())

	rec := p.Record()
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET group_name=?, template=?, record=?, disabled=?, created_by=?, updated_at=? WHERE name=?`,
		rec.Group, rec.Template, string(recordJSON), boolToInt(rec.Disabled), rec.CreatedBy,
		time.Now().UTC().Format(time.RFC3339Nano), rec.Name,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project %s not found", rec.Name)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, name string) error {
	s.logger.Debug("sql", "op", "delete", "table", "projects", "name", name)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("project %s not found", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue WHERE project = ?`, name); err != nil {
		return fmt.Errorf("delete queue items: %w", err)
	}
	return tx.Commit()
}

func decodeProject(recordJSON string) (*model.Project, error) {
	var rec model.ProjectRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal project: %w", err)
	}
	return model.ProjectFromRecord(rec), nil
}

func scanProjects(rows *sql.Rows) ([]*model.Project, error) {
	defer rows.Close()
	var projects []*model.Project
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, err
		}
		p, err := decodeProject(recordJSON)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// createdAt is the row timestamp for a record; projects that were never
// initialized get the insertion time.
func createdAt(rec model.ProjectRecord) time.Time {
	if rec.CreationTime.IsZero() {
		return time.Now().UTC()
	}
	return rec.CreationTime.UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Builds ---

func (s *SQLiteStore) RecordBuild(ctx context.Context, b *model.Build) error {
	s.logger.Debug("sql", "op", "insert", "table", "builds", "id", b.ID, "project", b.ProjectName)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, project, number, result, completed_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.ProjectName, b.Number, string(b.Result), b.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert build %s: %w", b.FullDisplayName(), err)
	}
	return nil
}

// ListBuilds returns the recorded builds of a project, newest first.
func (s *SQLiteStore) ListBuilds(ctx context.Context, project string) ([]*model.Build, error) {
	s.logger.Debug("sql", "op", "list", "table", "builds", "project", project)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, number, result, completed_at FROM builds WHERE project = ? ORDER BY number DESC`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var builds []*model.Build
	for rows.Next() {
		var b model.Build
		var result, completedAt string
		if err := rows.Scan(&b.ID, &b.ProjectName, &b.Number, &result, &completedAt); err != nil {
			return nil, err
		}
		b.Result = model.BuildResult(result)
		b.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		builds = append(builds, &b)
	}
	return builds, rows.Err()
}

// --- Queue ---

// Enqueue adds item unless the project already has a pending item, in which
// case the request coalesces into the existing one. It reports whether a new
// item was added.
func (s *SQLiteStore) Enqueue(ctx context.Context, item *model.QueueItem) (bool, error) {
	s.logger.Debug("sql", "op", "insert", "table", "queue", "id", item.ID, "project", item.ProjectName)

	causeJSON, err := json.Marshal(item.Cause)
	if err != nil {
		return false, fmt.Errorf("marshal cause: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO queue (id, project, cause, queued_at, not_before) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(project) DO NOTHING`,
		item.ID, item.ProjectName, string(causeJSON),
		item.QueuedAt.UTC().Format(queueTimeFormat), item.NotBefore.UTC().Format(queueTimeFormat),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", item.ProjectName, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ListQueue returns pending items ordered by the time they become buildable.
func (s *SQLiteStore) ListQueue(ctx context.Context) ([]*model.QueueItem, error) {
	s.logger.Debug("sql", "op", "list", "table", "queue")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, cause, queued_at, not_before FROM queue ORDER BY not_before, project`)
	if err != nil {
		return nil, err
	}
	return scanQueue(rows)
}

// ReadyQueue returns the items whose quiet period has elapsed at now, oldest
// first.
func (s *SQLiteStore) ReadyQueue(ctx context.Context, now time.Time) ([]*model.QueueItem, error) {
	s.logger.Debug("sql", "op", "list_ready", "table", "queue")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project, cause, queued_at, not_before FROM queue WHERE not_before <= ? ORDER BY not_before, project`,
		now.UTC().Format(queueTimeFormat))
	if err != nil {
		return nil, err
	}
	return scanQueue(rows)
}

// Dequeue removes the item with the given ID. It reports whether the item
// was still pending.
func (s *SQLiteStore) Dequeue(ctx context.Context, id string) (bool, error) {
	s.logger.Debug("sql", "op", "delete", "table", "queue", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("dequeue %s: %w", id, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func scanQueue(rows *sql.Rows) ([]*model.QueueItem, error) {
	defer rows.Close()

	var items []*model.QueueItem
	for rows.Next() {
		var item model.QueueItem
		var causeJSON, queuedAt, notBefore string
		if err := rows.Scan(&item.ID, &item.ProjectName, &causeJSON, &queuedAt, &notBefore); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(causeJSON), &item.Cause); err != nil {
			return nil, fmt.Errorf("unmarshal cause: %w", err)
		}
		item.QueuedAt, _ = time.Parse(queueTimeFormat, queuedAt)
		item.NotBefore, _ = time.Parse(queueTimeFormat, notBefore)
		items = append(items, &item)
	}
	return items, rows.Err()
}
