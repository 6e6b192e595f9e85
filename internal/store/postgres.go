package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/mtzanidakis/studioflow/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres is the primary tier.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runMigrations(ctx, cfg.PostgresDSN); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

func runMigrations(ctx context.Context, dsn string) error {
	goose.SetBaseFS(migrations)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Put(ctx context.Context, rec Record) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, project_id, status, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			status = EXCLUDED.status,
			name = EXCLUDED.name,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`, rec.Kind.table()),
		rec.ID, rec.ProjectID, rec.Status, rec.Name, string(rec.Data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put %s: %w", rec.Kind, err)
	}
	return nil
}

func scanPgRecord(kind Kind, row pgx.Row) (*Record, error) {
	rec := &Record{Kind: kind}
	var data string
	if err := row.Scan(&rec.ID, &rec.ProjectID, &rec.Status, &rec.Name, &data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Data = []byte(data)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func (p *Postgres) Fetch(ctx context.Context, kind Kind, id string) (*Record, error) {
	row := p.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, project_id, status, name, data::text, created_at, updated_at
		FROM %s WHERE id = $1`, kind.table()), id)
	rec, err := scanPgRecord(kind, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}
	return rec, nil
}

func (p *Postgres) Find(ctx context.Context, kind Kind, f Filter) ([]Record, error) {
	where, args := whereClause(f,
		func(n int) string { return "$" + strconv.Itoa(n) },
		func(t time.Time) any { return t })
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, project_id, status, name, data::text, created_at, updated_at
		FROM %s%s`, kind.table(), where), args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanPgRecord(kind, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveExecution(ctx context.Context, e Execution) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO agent_executions
			(id, request_id, agent, success, error_kind, error_message, duration_ms, input, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.RequestID, e.Agent, e.Success, e.ErrorKind, e.ErrorMessage, e.DurationMs,
		jsonOrNil(e.Input), jsonOrNil(e.Output), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

func (p *Postgres) RecentExecutions(ctx context.Context, agent string, limit int) ([]Execution, error) {
	q := `SELECT id, request_id, agent, success, error_kind, error_message, duration_ms,
		       COALESCE(input::text, ''), COALESCE(output::text, ''), created_at
		FROM agent_executions`
	var args []any
	if agent != "" {
		args = append(args, agent)
		q += ` WHERE agent = $1`
	}
	q += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var input, output string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Agent, &e.Success, &e.ErrorKind, &e.ErrorMessage,
			&e.DurationMs, &input, &output, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if input != "" {
			e.Input = []byte(input)
		}
		if output != "" {
			e.Output = []byte(output)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func jsonOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
