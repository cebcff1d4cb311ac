package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/heysubinoy/keygate/pkg/kv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps one row per key in a table of JSONB documents.
// The pool is shared by all requests; upserts give last-write-wins per key.
type PostgresStore struct {
	pool   *pgxpool.Pool
	getSQL string
	setSQL string
}

var _ kv.Backend = (*PostgresStore)(nil)

// OpenPostgres connects to uri and creates table if it does not exist.
func OpenPostgres(ctx context.Context, uri, table string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	ident := pgx.Identifier{table}.Sanitize()
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key VARCHAR PRIMARY KEY, value JSONB NOT NULL)`, ident)
	if _, err := pool.Exec(ctx, create); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	return &PostgresStore{
		pool:   pool,
		getSQL: fmt.Sprintf(`SELECT value::text FROM %s WHERE key = $1`, ident),
		setSQL: fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2::jsonb) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, ident),
	}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (kv.Value, bool, error) {
	if key == "" {
		return kv.Value{}, false, kv.ErrEmptyKey
	}

	var doc string
	err := s.pool.QueryRow(ctx, s.getSQL, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return kv.Value{}, false, nil
	}
	if err != nil {
		return kv.Value{}, false, fmt.Errorf("postgres get %q: %w", key, err)
	}

	v, err := kv.Decode([]byte(doc))
	if err != nil {
		return kv.Value{}, false, fmt.Errorf("postgres get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return kv.ErrEmptyKey
	}

	doc, err := kv.StringValue(value).Encode()
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, s.setSQL, key, string(doc)); err != nil {
		return fmt.Errorf("postgres set %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
