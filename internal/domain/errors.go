package domain

import "errors"

// Common errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrNoUserIdentity  = errors.New("no user identity: operation requires an authenticated user")
	ErrNoActiveSession = errors.New("no active workout session")
	ErrExerciseIndex   = errors.New("exercise index out of range")
	ErrBadReorder      = errors.New("reorder must be a permutation of the current exercise ids")
	ErrInvalidID       = errors.New("invalid id")
)
