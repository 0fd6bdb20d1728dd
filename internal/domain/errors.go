package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks a malformed pack, question or snapshot payload.
	ErrValidation = errors.New("validation failed")
	// ErrFetch marks a network or HTTP failure while loading a remote pack.
	ErrFetch = errors.New("fetch failed")
	// ErrAuth is the 401/403 flavour of ErrFetch; callers should prompt for re-authentication.
	ErrAuth = errors.New("authentication required")
	// ErrNoQuestions is returned when a session filter resolves to zero questions.
	ErrNoQuestions = errors.New("no questions available")
	// ErrInvalidState is returned when a session operation is invoked out of sequence.
	ErrInvalidState = errors.New("invalid session state")
	// ErrStaleSession is returned when a snapshot references questions that no longer resolve.
	ErrStaleSession = errors.New("stale session")
	// ErrPackNotFound indicates an unknown pack id.
	ErrPackNotFound = errors.New("pack not found")
	// ErrPackNotRemovable indicates an attempt to remove a non-uploaded pack.
	ErrPackNotRemovable = errors.New("only uploaded packs can be removed")
	// ErrOptionNotFound indicates a submitted option index is out of range.
	ErrOptionNotFound = errors.New("option not found")
	// ErrNoSavedSession indicates there is no incomplete session to resume.
	ErrNoSavedSession = errors.New("no saved session")
	// ErrFetchAbandoned indicates a remote fetch finished after its pack was disabled, removed or the resolver reset.
	ErrFetchAbandoned = errors.New("remote fetch abandoned")
)

// ValidationError names the offending field (and question, when there is one).
type ValidationError struct {
	PackID     string
	QuestionID string
	Field      string
	Reason     string
}

func (e *ValidationError) Error() string {
	msg := "invalid " + e.Field
	if e.QuestionID != "" {
		msg += fmt.Sprintf(" on question %q", e.QuestionID)
	}
	if e.PackID != "" {
		msg += fmt.Sprintf(" in pack %q", e.PackID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FetchError carries the HTTP status of a failed remote load when one is available.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return "fetch " + e.URL + " failed"
	}
}

// IsAuth reports whether the failure was a 401 or 403.
func (e *FetchError) IsAuth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetch || (target == ErrAuth && e.IsAuth())
}

func (e *FetchError) Unwrap() error { return e.Err }

// NoQuestionsError names the category filter that came up empty.
type NoQuestionsError struct {
	Category string
}

func (e *NoQuestionsError) Error() string {
	return fmt.Sprintf("no questions available for category %q", e.Category)
}

func (e *NoQuestionsError) Unwrap() error { return ErrNoQuestions }

// InvalidStateError reports the operation attempted and the state it was attempted in.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s not allowed while session is %s", e.Op, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// StaleSessionError identifies the first snapshot reference that failed to resolve.
type StaleSessionError struct {
	QuestionID string
	Category   string
	Difficulty Difficulty
	Reason     string
}

func (e *StaleSessionError) Error() string {
	msg := fmt.Sprintf("question %q (%s/%s) no longer available", e.QuestionID, e.Category, e.Difficulty)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StaleSessionError) Unwrap() error { return ErrStaleSession }
