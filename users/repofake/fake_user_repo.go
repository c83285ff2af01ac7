package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-advisor-auth/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]*users.User
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (ur *FakeUserRepo) Insert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.users[user.ID]; ok {
		return users.ErrAlreadyExists
	}
	ur.users[user.ID] = user.Clone()
	return nil
}

func (ur *FakeUserRepo) Get(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u.Clone(), nil
}

func (ur *FakeUserRepo) Update(_ context.Context, id string, update users.Update) (*users.User, error) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	update.Apply(u)
	return u.Clone(), nil
}

func (ur *FakeUserRepo) RecordLogin(_ context.Context, id string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	u, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	u.LoginCount++
	u.LastLogin = &at
	return nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, id string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.users[id]; !ok {
		return users.ErrNotFound
	}
	delete(ur.users, id)
	return nil
}

// Len returns the number of stored profiles.
func (ur *FakeUserRepo) Len() int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return len(ur.users)
}
