// Package migrate applies the embedded schema migrations.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jrsteele09/go-advisor-auth/migrations"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// Up runs all pending migrations against dsn.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "[migrate.Up] open")
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "[migrate.Up] dialect")
	}
	return errors.Wrap(goose.UpContext(ctx, db, "."), "[migrate.Up]")
}
