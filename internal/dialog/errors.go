// internal/dialog/errors.go
//
// Gridkit – Dialog subsystem: error taxonomy.
//
// Context
//   Every failure the pipeline reports is recoverable.  The Machine settles in
//   StateFailed, stores the normalized Errors, and accepts the next Submit.
//   Callers that want to branch on the cause use errors.Is for the sentinels
//   and errors.As for the typed errors below.
//
//------------------------------------------------------------------------------

package dialog

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFormData is returned when no extraction strategy applies and no
	// ActiveRecord is available to fall back on.
	ErrNoFormData = errors.New("dialog: no form data")

	// ErrNoHandler is returned when a mode has no handler configured.
	ErrNoHandler = errors.New("dialog: no handler for mode")
)

// Messages surfaced under FormErrorKey for failures that carry no source.
const (
	msgMissingID       = "missing record ID"
	msgSubmitFailed    = "submission failed"
	msgValidation      = "Form validation failed"
	msgNoFormData      = "No form data available"
	msgNoHandler       = "This action is not available"
	msgFallback        = "An unexpected error occurred"
	msgNotRegistered   = "No form is registered for this dialog"
	msgInvalidNoErrors = "Please correct the highlighted fields"
)

// InvalidFormError wraps the error payload of a form that reported itself
// invalid (Validate returned false, or HandleSubmit called onInvalid).  The
// Normalizer unwraps Source.
type InvalidFormError struct {
	Source any
}

func (e *InvalidFormError) Error() string { return "dialog: form reported invalid" }

// ValidationError is the normalized outcome of a failed validation.
type ValidationError struct {
	Mode   Mode
	Errors Errors
	Cause  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dialog %s: validation failed (%d field(s))", e.Mode, len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// SubmissionError reports a handler that returned false or failed.
type SubmissionError struct {
	Mode   Mode
	Errors Errors
	Cause  error
}

func (e *SubmissionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dialog %s: submission failed: %v", e.Mode, e.Cause)
	}
	return fmt.Sprintf("dialog %s: submission failed", e.Mode)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// MissingIdentityError reports a delete without a resolvable id or _id.
type MissingIdentityError struct {
	Mode Mode
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("dialog %s: %s", e.Mode, msgMissingID)
}

// IsValidationError reports whether err came from a failed validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
