package domain

import "errors"

// ErrNotFound covers both truly absent rows and rows owned by another
// user. Callers must not be able to tell the two apart.
var ErrNotFound = errors.New("not found")

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func Invalid(field, message string) error {
	return ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}
