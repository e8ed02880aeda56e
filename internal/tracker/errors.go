package tracker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/tracker/internal/store"
)

var (
	// ErrNotFound is returned when the referenced issue does not exist.
	ErrNotFound = store.ErrNotFound

	// ErrVersionConflict is returned when a versioned write names a version
	// other than the stored one. It is always carried by a *ConflictError.
	ErrVersionConflict = errors.New("version conflict")

	// ErrPartialSetNotFound is returned by bulk operations when some of the
	// requested issues do not exist. Nothing is written in that case.
	ErrPartialSetNotFound = store.ErrIncompleteSet

	// ErrTriageUnavailable is returned when no LLM client is configured.
	ErrTriageUnavailable = errors.New("triage is not configured")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports caller-correctable input problems. Nothing is
// written when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// fieldErrors accumulates field problems and turns them into a
// *ValidationError.
type fieldErrors []FieldError

func (fe *fieldErrors) add(field, format string, args ...any) {
	*fe = append(*fe, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (fe fieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return &ValidationError{Fields: fe}
}

// ConflictError reports a rejected versioned write together with the version
// currently stored.
type ConflictError struct {
	ID              string
	ExpectedVersion int
	CurrentVersion  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("issue %s: expected version %d, current version is %d", e.ID, e.ExpectedVersion, e.CurrentVersion)
}

func (e *ConflictError) Unwrap() error { return ErrVersionConflict }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
