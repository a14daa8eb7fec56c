// Package setonce provides fields that may be assigned at most once.
package setonce

import "errors"

// ErrAlreadySet is returned by Result.Err when an assignment was refused.
var ErrAlreadySet = errors.New("value already assigned")

// Result reports the outcome of an assignment.
type Result int

const (
	Set Result = iota
	AlreadySet
)

func (r Result) String() string {
	if r == AlreadySet {
		return "already_set"
	}
	return "set"
}

// OK reports whether the assignment took effect.
func (r Result) OK() bool { return r == Set }

// Err converts the result into an error that matches ErrAlreadySet.
func (r Result) Err() error {
	if r == AlreadySet {
		return ErrAlreadySet
	}
	return nil
}

// Value holds a T that is written once and read many times.
// The zero Value is unassigned. Not safe for concurrent use on its own.
type Value[T any] struct {
	v   T
	set bool
}

// Set stores v unless a value is already present.
func (s *Value[T]) Set(v T) Result {
	if s.set {
		return AlreadySet
	}
	s.v = v
	s.set = true
	return Set
}

// Get returns the stored value and whether one was assigned.
func (s *Value[T]) Get() (T, bool) {
	return s.v, s.set
}

// IsSet reports whether a value was assigned.
func (s *Value[T]) IsSet() bool { return s.set }

// Reset clears the value so a new lifetime can begin.
func (s *Value[T]) Reset() {
	var zero T
	s.v = zero
	s.set = false
}
