package schedule

import "errors"

// ErrNotFound is returned when the referenced schedule entry no longer exists.
var ErrNotFound = errors.New("schedule entry not found")

// ValidationError reports invalid input caught before any write happens.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationErr(msg string) error {
	return &ValidationError{Msg: msg}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
