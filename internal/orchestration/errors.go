package orchestration

import "errors"

var (
	// ErrSubmissionInFlight is returned when Submit is called while a
	// previous submission of the same session has not finished.
	ErrSubmissionInFlight = errors.New("submission already in flight")

	// ErrAlreadySubmitted is returned when a session that already created a
	// deployment is submitted again.
	ErrAlreadySubmitted = errors.New("deployment already submitted")
)

// ValidationError is a local precondition failure. It never reaches the
// backend and leaves the form editable.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
