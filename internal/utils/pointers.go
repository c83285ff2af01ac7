// Package utils holds small generic helpers for optional (pointer) fields.
package utils

// Value dereferences v, returning the zero value for nil.
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// Copy returns a pointer to a copy of *v, or nil.
func Copy[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Assign sets *dst to *src when src is set and reports whether it did.
func Assign[T any](dst *T, src *T) bool {
	if src == nil {
		return false
	}
	*dst = *src
	return true
}
