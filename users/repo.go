package users

import (
	"context"
	"time"
)

// Repo stores profiles. Get, Update, RecordLogin and Delete return ErrNotFound for an
// unknown id; Insert returns ErrAlreadyExists for a duplicate one.
type Repo interface {
	Insert(ctx context.Context, user *User) error
	Get(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, id string, update Update) (*User, error)
	// RecordLogin increments login_count and sets last_login.
	RecordLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
