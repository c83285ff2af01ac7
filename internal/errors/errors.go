package errors

import "errors"

// Common row store errors. Implementations translate backend specific codes into these.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidReference = errors.New("invalid reference")
	ErrForbidden        = errors.New("forbidden")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// FromCode maps a Postgres SQLSTATE or PostgREST error code onto a sentinel.
// Unknown codes return nil.
func FromCode(code string) error {
	switch code {
	case "23505":
		return ErrAlreadyExists
	case "23503":
		return ErrInvalidReference
	case "42501":
		return ErrForbidden
	case "PGRST116":
		return ErrNotFound
	}
	return nil
}
