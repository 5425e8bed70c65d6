package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request failed boundary validation.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidTransition indicates a status change not allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleStatus indicates a record changed status between read and write.
	ErrStaleStatus = fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	// ErrPrecondition indicates the caller must acknowledge something before retrying.
	ErrPrecondition = errors.New("precondition required")
	// ErrUnauthorized indicates a missing or invalid admin token.
	ErrUnauthorized = errors.New("unauthorized")
)
