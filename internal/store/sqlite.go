package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is the local tier. Timestamps are stored as unix nanoseconds so
// range filters compare numerically.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL for concurrent readers; busy timeout so writers wait instead of
	// failing with SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) migrate() error {
	var migrations []string
	for _, k := range Kinds {
		t := k.table()
		migrations = append(migrations,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id          TEXT PRIMARY KEY,
				project_id  TEXT NOT NULL DEFAULT '',
				status      TEXT NOT NULL DEFAULT '',
				name        TEXT NOT NULL DEFAULT '',
				data        TEXT NOT NULL,
				created_at  INTEGER NOT NULL,
				updated_at  INTEGER NOT NULL
			)`, t),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_project ON %s(project_id, created_at)`, t, t),
		)
	}
	migrations = append(migrations,
		`CREATE TABLE IF NOT EXISTS agent_executions (
			id            TEXT PRIMARY KEY,
			request_id    TEXT NOT NULL,
			agent         TEXT NOT NULL,
			success       BOOLEAN NOT NULL,
			error_kind    TEXT,
			error_message TEXT,
			duration_ms   INTEGER NOT NULL,
			input         TEXT,
			output        TEXT,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_agent ON agent_executions(agent, created_at)`,
	)

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, project_id, status, name, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			status = excluded.status,
			name = excluded.name,
			data = excluded.data,
			updated_at = excluded.updated_at`, rec.Kind.table()),
		rec.ID, rec.ProjectID, rec.Status, rec.Name, string(rec.Data),
		rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.Kind, err)
	}
	return nil
}

func scanRecord(kind Kind, scanner interface {
	Scan(dest ...any) error
}) (*Record, error) {
	rec := &Record{Kind: kind}
	var data string
	var created, updated int64
	if err := scanner.Scan(&rec.ID, &rec.ProjectID, &rec.Status, &rec.Name, &data, &created, &updated); err != nil {
		return nil, err
	}
	rec.Data = []byte(data)
	rec.CreatedAt = time.Unix(0, created).UTC()
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return rec, nil
}

func (s *SQLite) Fetch(ctx context.Context, kind Kind, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, project_id, status, name, data, created_at, updated_at
		FROM %s WHERE id = ?`, kind.table()), id)
	rec, err := scanRecord(kind, row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return rec, nil
}

func (s *SQLite) Find(ctx context.Context, kind Kind, f Filter) ([]Record, error) {
	where, args := whereClause(f,
		func(int) string { return "?" },
		func(t time.Time) any { return t.UnixNano() })
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, project_id, status, name, data, created_at, updated_at
		FROM %s%s`, kind.table(), where), args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveExecution(ctx context.Context, e Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_executions
			(id, request_id, agent, success, error_kind, error_message, duration_ms, input, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Agent, e.Success, e.ErrorKind, e.ErrorMessage, e.DurationMs,
		string(e.Input), string(e.Output), e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

func (s *SQLite) RecentExecutions(ctx context.Context, agent string, limit int) ([]Execution, error) {
	q := `SELECT id, request_id, agent, success, error_kind, error_message, duration_ms, input, output, created_at
		FROM agent_executions`
	var args []any
	if agent != "" {
		q += ` WHERE agent = ?`
		args = append(args, agent)
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var errKind, errMsg, input, output sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Agent, &e.Success, &errKind, &errMsg,
			&e.DurationMs, &input, &output, &created); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.ErrorKind = errKind.String
		e.ErrorMessage = errMsg.String
		if input.String != "" {
			e.Input = []byte(input.String)
		}
		if output.String != "" {
			e.Output = []byte(output.String)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
