package apperr

import (
	"time"

	"github.com/google/uuid"
)

// Result is either a value or a tagged failure. Each Result carries an id
// and creation time so a run can be correlated across logs.
type Result[T any] struct {
	id        uuid.UUID
	createdAt time.Time
	value     T
	err       *Error
	isSuccess bool
}

func Success[T any](v T) Result[T] {
	return Result[T]{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
		value:     v,
		isSuccess: true,
	}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
		err:       As(err),
	}
}

// WithID returns a copy of r stamped with the given run id.
func (r Result[T]) WithID(id uuid.UUID) Result[T] {
	r.id = id
	return r
}

func (r Result[T]) ID() uuid.UUID        { return r.id }
func (r Result[T]) CreatedAt() time.Time { return r.createdAt }
func (r Result[T]) IsSuccess() bool      { return r.isSuccess }
func (r Result[T]) Value() T             { return r.value }

// Err returns the failure, or nil on success.
func (r Result[T]) Err() *Error {
	if r.isSuccess {
		return nil
	}
	return r.err
}

// Kind returns the failure kind, or "" on success.
func (r Result[T]) Kind() Kind {
	if r.isSuccess || r.err == nil {
		return ""
	}
	return r.err.Kind
}

// Unpack converts back to Go's (value, error) convention.
func (r Result[T]) Unpack() (T, error) {
	if r.isSuccess || r.err == nil {
		return r.value, nil
	}
	return r.value, r.err
}
