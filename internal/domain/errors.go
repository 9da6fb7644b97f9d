package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAttemptNotFound is returned when the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptAlreadyCompleted rejects re-scoring of a completed attempt.
	ErrAttemptAlreadyCompleted = errors.New("attempt already completed")
	// ErrChecklistNotFound indicates the attempt's checklist could not be loaded.
	ErrChecklistNotFound = errors.New("checklist not found")
	// ErrScenarioNotFound indicates a checklist references an unknown scenario.
	ErrScenarioNotFound = errors.New("scenario not found")
	// ErrSpecialtyNotFound indicates a scenario references an unknown specialty.
	ErrSpecialtyNotFound = errors.New("specialty not found")
	// ErrUserNotFound is returned when a user record does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized rejects callers who are neither the attempt owner nor an admin.
	ErrUnauthorized = errors.New("caller is not the attempt owner")
)

// AggregationError marks a bookkeeping failure (category, specialty, user
// aggregate or ranking) that occurred after the attempt score was persisted.
// The score stands; the inconsistency must be surfaced, not swallowed.
type AggregationError struct {
	Stage string // "category", "specialty", "user", "ranking"
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed at %s stage: %v", e.Stage, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
