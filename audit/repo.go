package audit

import "context"

// Repo is append only.
type Repo interface {
	Insert(ctx context.Context, record *Record) error
}
