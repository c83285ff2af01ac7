// Package restauditrepo appends audit records to the audit_logs table through PostgREST.
package restauditrepo

import (
	"context"

	"github.com/jrsteele09/go-advisor-auth/audit"
	"github.com/jrsteele09/go-advisor-auth/supabase"
	"github.com/pkg/errors"
)

const table = "audit_logs"

var _ audit.Repo = (*RestAuditRepo)(nil)

type RestAuditRepo struct {
	client *supabase.Client
}

func NewRestAuditRepo(client *supabase.Client) *RestAuditRepo {
	return &RestAuditRepo{client: client}
}

func (r *RestAuditRepo) Insert(ctx context.Context, record *audit.Record) error {
	return errors.Wrap(r.client.Insert(ctx, table, record, nil), "[RestAuditRepo.Insert]")
}
