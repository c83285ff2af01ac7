// Package pguserrepo stores profiles directly in Postgres.
package pguserrepo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-advisor-auth/internal/pgdb"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/pkg/errors"
)

const userColumns = `id, email, name, phone, city, subscription_type, avatar_url, email_verified, phone_verified, created_at, updated_at, last_login, login_count, auth_provider, preferences`

var _ users.Repo = (*PgUserRepo)(nil)

type PgUserRepo struct{ db *pgdb.DB }

func NewPgUserRepo(db *pgdb.DB) *PgUserRepo { return &PgUserRepo{db: db} }

func (r *PgUserRepo) Insert(ctx context.Context, u *users.User) error {
	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return errors.Wrap(err, "[PgUserRepo.Insert] encode preferences")
	}
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = r.db.Pool.Exec(ctx, q,
		u.ID, u.Email, u.Name, u.Phone, u.City, string(u.SubscriptionType), u.AvatarURL,
		u.EmailVerified, u.PhoneVerified, u.CreatedAt, u.UpdatedAt, u.LastLogin, u.LoginCount,
		string(u.AuthProvider), prefs)
	return pgdb.MapError(err)
}

func (r *PgUserRepo) Get(ctx context.Context, id string) (*users.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// Update writes the non nil fields of update in one statement. COALESCE keeps the stored
// value for every parameter passed as NULL.
func (r *PgUserRepo) Update(ctx context.Context, id string, update users.Update) (*users.User, error) {
	var prefs []byte
	if update.Preferences != nil {
		raw, err := json.Marshal(update.Preferences)
		if err != nil {
			return nil, errors.Wrap(err, "[PgUserRepo.Update] encode preferences")
		}
		prefs = raw
	}
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	const q = `
UPDATE users SET
  name = COALESCE($2, name),
  phone = COALESCE($3, phone),
  city = COALESCE($4, city),
  avatar_url = COALESCE($5, avatar_url),
  preferences = COALESCE($6, preferences),
  updated_at = $7
WHERE id = $1
RETURNING ` + userColumns
	return scanUser(r.db.Pool.QueryRow(ctx, q, id, update.Name, update.Phone, update.City, update.AvatarURL, prefs, updatedAt))
}

func (r *PgUserRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE users SET login_count = login_count + 1, last_login = $2 WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return pgdb.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *PgUserRepo) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return pgdb.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*users.User, error) {
	var (
		u                    users.User
		subscription, authBy string
		prefs                []byte
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.City, &subscription, &u.AvatarURL,
		&u.EmailVerified, &u.PhoneVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin, &u.LoginCount,
		&authBy, &prefs)
	if err != nil {
		return nil, pgdb.MapError(err)
	}
	u.SubscriptionType = users.SubscriptionType(subscription)
	u.AuthProvider = users.AuthProvider(authBy)
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, errors.Wrap(err, "[scanUser] decode preferences")
		}
	}
	return &u, nil
}
