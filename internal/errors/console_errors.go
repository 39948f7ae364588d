package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels shared by the stores and the upstream client
var (
	// ErrNotFound marks a lookup the upstream answered with "no such resource"
	ErrNotFound = errors.New("not found")

	// ErrIndexOutOfRange marks a configuration or operation index that does
	// not address a current element
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrEmptyHistory marks the "latest" resolution finding no entries. It is
	// an empty state, never a lookup failure.
	ErrEmptyHistory = errors.New("distribution history is empty")

	// ErrUnknownOperationKind marks a kind string the registry does not know
	ErrUnknownOperationKind = errors.New("unknown operation kind")
)

// ValidationError represents a single field-level validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is returned when the configuration set does not satisfy
// its field constraints. It blocks submission but is fully recoverable.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// For returns the messages reported for one field path
func (v *ValidationErrors) For(field string) []string {
	if v == nil {
		return nil
	}
	var out []string
	for _, e := range v.Errors {
		if e.Field == field {
			out = append(out, e.Message)
		}
	}
	return out
}

// LookupError is a failed distribution lookup, by explicit id or through the
// latest history entry. It drives the status machine to Failure.
type LookupError struct {
	ID     string
	Latest bool
	Cause  error
}

// Error implements the error interface
func (e *LookupError) Error() string {
	target := e.ID
	if e.Latest {
		target = "latest"
		if e.ID != "" {
			target = "latest (" + e.ID + ")"
		}
	}
	return fmt.Sprintf("distribution lookup %s failed: %v", target, e.Cause)
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *LookupError) Unwrap() error {
	return e.Cause
}

// NotFound reports whether the upstream had no such distribution
func (e *LookupError) NotFound() bool {
	return errors.Is(e.Cause, ErrNotFound)
}

// SubmissionError is a failed submission attempt. The configuration data is
// kept so the user can resubmit.
type SubmissionError struct {
	Dataframe string
	Cause     error
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission to %s failed: %v", e.Dataframe, e.Cause)
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// UpstreamError describes a non-success answer from the data-source API
type UpstreamError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Is lets a 404 answer match ErrNotFound
func (e *UpstreamError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// IndexError wraps ErrIndexOutOfRange with the offending position
func IndexError(what string, index, length int) error {
	return fmt.Errorf("%s index %d (length %d): %w", what, index, length, ErrIndexOutOfRange)
}
