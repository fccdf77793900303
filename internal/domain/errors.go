package domain

import (
	"fmt"
	"strings"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ValidationError reports malformed input. Callers must fix the input before retrying.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	switch target.(type) {
	case ValidationError, *ValidationError:
		return true
	}
	return false
}

// ErrValidation is the sentinel for errors.Is matching.
var ErrValidation = ValidationError{}

// AmbiguousMatchError is returned when a claim matches more than one profile.
// It needs staff resolution and must never be retried automatically.
type AmbiguousMatchError struct {
	CandidateIDs []string
}

func (e AmbiguousMatchError) Error() string {
	return fmt.Sprintf(
		"identity claim matches %d profiles (%s); ask staff to resolve manually",
		len(e.CandidateIDs), strings.Join(e.CandidateIDs, ", "),
	)
}

func (e AmbiguousMatchError) Is(target error) bool {
	switch target.(type) {
	case AmbiguousMatchError, *AmbiguousMatchError:
		return true
	}
	return false
}

// ErrAmbiguousMatch is the sentinel for errors.Is matching.
var ErrAmbiguousMatch = AmbiguousMatchError{}

// StoreUnavailableError wraps a transient backing store failure.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store unavailable during %s", e.Op)
	}
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e StoreUnavailableError) Unwrap() error { return e.Err }

func (e StoreUnavailableError) Is(target error) bool {
	switch target.(type) {
	case StoreUnavailableError, *StoreUnavailableError:
		return true
	}
	return false
}

// ErrStoreUnavailable is the sentinel for errors.Is matching.
var ErrStoreUnavailable = StoreUnavailableError{}

// MergeIncompleteError means the merged row was written under its new id but the
// old row could not be removed. Run CompleteMerge; never blindly re-delete.
type MergeIncompleteError struct {
	From string
	To   string
	Err  error
}

func (e MergeIncompleteError) Error() string {
	return fmt.Sprintf("merge %s -> %s incomplete: %v", e.From, e.To, e.Err)
}

func (e MergeIncompleteError) Unwrap() error { return e.Err }

func (e MergeIncompleteError) Is(target error) bool {
	switch target.(type) {
	case MergeIncompleteError, *MergeIncompleteError:
		return true
	}
	return false
}

// ErrMergeIncomplete is the sentinel for errors.Is matching.
var ErrMergeIncomplete = MergeIncompleteError{}
