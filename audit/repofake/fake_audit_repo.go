package fakeauditrepo

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-advisor-auth/audit"
)

var _ audit.Repo = (*FakeAuditRepo)(nil)

type FakeAuditRepo struct {
	records []audit.Record
	err     error
	lock    sync.RWMutex
}

func NewFakeAuditRepo() *FakeAuditRepo {
	return &FakeAuditRepo{}
}

func (ar *FakeAuditRepo) Insert(_ context.Context, record *audit.Record) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	if ar.err != nil {
		return ar.err
	}
	ar.records = append(ar.records, *record)
	return nil
}

// FailWith makes subsequent inserts return err. Pass nil to recover.
func (ar *FakeAuditRepo) FailWith(err error) {
	ar.lock.Lock()
	defer ar.lock.Unlock()
	ar.err = err
}

func (ar *FakeAuditRepo) Records() []audit.Record {
	ar.lock.RLock()
	defer ar.lock.RUnlock()
	return append([]audit.Record(nil), ar.records...)
}

// Actions returns the recorded events in order.
func (ar *FakeAuditRepo) Actions() []audit.Event {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	actions := make([]audit.Event, 0, len(ar.records))
	for _, r := range ar.records {
		actions = append(actions, r.Action)
	}
	return actions
}
