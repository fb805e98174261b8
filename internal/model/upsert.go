package model

// UpsertKind tells whether a create-or-update wrote anything.
type UpsertKind int

const (
	UpsertCreated UpsertKind = iota
	UpsertUpdated
	UpsertUntouched
)

func (k UpsertKind) String() string {
	switch k {
	case UpsertCreated:
		return "created"
	case UpsertUpdated:
		return "updated"
	case UpsertUntouched:
		return "untouched"
	}
	return "unknown"
}

// UpsertStatus is the outcome of an idempotent create-or-update. Old is
// only set for UpsertUpdated, and only when the previous row was read.
type UpsertStatus[T any] struct {
	Kind UpsertKind
	Old  *T
	New  T
}

// Created builds the status of a freshly inserted row.
func Created[T any](v T) UpsertStatus[T] {
	return UpsertStatus[T]{Kind: UpsertCreated, New: v}
}

// Updated builds the status of a row whose content changed.
func Updated[T any](old, v T) UpsertStatus[T] {
	return UpsertStatus[T]{Kind: UpsertUpdated, Old: &old, New: v}
}

// Untouched builds the status of a row that already held the same content.
func Untouched[T any](v T) UpsertStatus[T] {
	return UpsertStatus[T]{Kind: UpsertUntouched, New: v}
}

// Value returns the stored value whatever happened.
func (s UpsertStatus[T]) Value() T {
	return s.New
}

// ModifiedValue returns the stored value when the row was written, nil otherwise.
func (s UpsertStatus[T]) ModifiedValue() *T {
	if s.Kind == UpsertUntouched {
		return nil
	}
	v := s.New
	return &v
}

// IsModified reports whether the row was created or updated.
func (s UpsertStatus[T]) IsModified() bool {
	return s.Kind != UpsertUntouched
}

// IsCreated reports whether the row did not exist before.
func (s UpsertStatus[T]) IsCreated() bool {
	return s.Kind == UpsertCreated
}
