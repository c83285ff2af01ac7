// Package pgdb holds the Postgres connection used by the direct database repositories.
package pgdb

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-advisor-auth/internal/errors"
)

// Pool is the subset of *pgxpool.Pool the repositories use. pgxmock.PgxPoolIface
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type DB struct{ Pool Pool }

func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() { db.Pool.Close() }

// MapError translates driver errors into the shared sentinels. pgx.ErrNoRows becomes
// ErrNotFound, known SQLSTATE codes their matching sentinel; anything else is returned as is.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		if sentinel := apperrors.FromCode(pg.Code); sentinel != nil {
			return sentinel
		}
	}
	return err
}
