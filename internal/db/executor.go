// Package db provides the narrow execution contract the assistant consumes.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/askdb-io/askdb-core/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is one result record: named fields in select-list order.
type Row struct {
	Fields []string
	Values []any
}

// Map flattens the row for serialization to clients.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Fields))
	for i, f := range r.Fields {
		m[f] = r.Values[i]
	}
	return m
}

// Executor runs a parameterized statement. Implementations must be safe for
// concurrent use across sessions.
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// PgxExecutor executes against Postgres through a shared pool.
type PgxExecutor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPgxExecutor(ctx context.Context, cfg config.DatabaseConfig) (*PgxExecutor, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	timeout := time.Duration(cfg.QueryTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PgxExecutor{pool: pool, timeout: timeout}, nil
}

func (e *PgxExecutor) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	fields := make([]string, len(descs))
	for i, d := range descs {
		fields[i] = d.Name
	}

	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		out = append(out, Row{Fields: fields, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func (e *PgxExecutor) Close() {
	e.pool.Close()
}

// Ping verifies connectivity for readiness checks.
func (e *PgxExecutor) Ping(ctx context.Context) error {
	return e.pool.Ping(ctx)
}
