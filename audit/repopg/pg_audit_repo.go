// Package pgauditrepo appends audit records directly to Postgres.
package pgauditrepo

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/go-advisor-auth/audit"
	"github.com/jrsteele09/go-advisor-auth/internal/pgdb"
	"github.com/pkg/errors"
)

var _ audit.Repo = (*PgAuditRepo)(nil)

type PgAuditRepo struct{ db *pgdb.DB }

func NewPgAuditRepo(db *pgdb.DB) *PgAuditRepo { return &PgAuditRepo{db: db} }

func (r *PgAuditRepo) Insert(ctx context.Context, record *audit.Record) error {
	newData, err := json.Marshal(record.NewData)
	if err != nil {
		return errors.Wrap(err, "[PgAuditRepo.Insert] encode new_data")
	}
	const q = `INSERT INTO audit_logs (user_id, action, table_name, new_data) VALUES ($1, $2, $3, $4)`
	_, err = r.db.Pool.Exec(ctx, q, record.UserID, string(record.Action), record.TableName, newData)
	return pgdb.MapError(err)
}
