// Package restuserrepo stores profiles in the users table through PostgREST.
package restuserrepo

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-advisor-auth/internal/errors"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/jrsteele09/go-advisor-auth/supabase"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/pkg/errors"
)

const (
	table           = "users"
	recordLoginFunc = "record_login"
)

var _ users.Repo = (*RestUserRepo)(nil)

type RestUserRepo struct {
	client *supabase.Client
}

func NewRestUserRepo(client *supabase.Client) *RestUserRepo {
	return &RestUserRepo{client: client}
}

func (r *RestUserRepo) Insert(ctx context.Context, user *users.User) error {
	return mapError(r.client.Insert(ctx, table, user, nil), "[RestUserRepo.Insert]")
}

func (r *RestUserRepo) Get(ctx context.Context, id string) (*users.User, error) {
	var u users.User
	if err := r.client.SelectOne(ctx, table, supabase.Eq("id", id), &u); err != nil {
		return nil, mapError(err, "[RestUserRepo.Get]")
	}
	return &u, nil
}

func (r *RestUserRepo) Update(ctx context.Context, id string, update users.Update) (*users.User, error) {
	var u users.User
	if err := r.client.UpdateOne(ctx, table, supabase.Eq("id", id), update, &u); err != nil {
		return nil, mapError(err, "[RestUserRepo.Update]")
	}
	return &u, nil
}

// RecordLogin calls the record_login database function, which increments the counter in
// a single statement.
func (r *RestUserRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	var updated bool
	err := r.client.RPC(ctx, recordLoginFunc, map[string]any{
		"p_user_id":  id,
		"p_login_at": at.UTC(),
	}, &updated)
	if err != nil {
		return mapError(err, "[RestUserRepo.RecordLogin]")
	}
	if !updated {
		return users.ErrNotFound
	}
	return nil
}

func (r *RestUserRepo) Delete(ctx context.Context, id string) error {
	n, err := r.client.Delete(ctx, table, supabase.Eq("id", id))
	if err != nil {
		return mapError(err, "[RestUserRepo.Delete]")
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}

// mapError converts known PostgREST and Postgres codes into the package sentinels, keeping
// the provider message as context.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pe, ok := provider.AsError(err); ok {
		if sentinel := apperrors.FromCode(pe.Code); sentinel != nil {
			return errors.Wrap(sentinel, msg+" "+pe.Message)
		}
	}
	return errors.Wrap(err, msg)
}
