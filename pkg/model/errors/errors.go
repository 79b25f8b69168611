package errors

import (
	"fmt"
)

var ErrAlreadyExists = fmt.Errorf("already exists")
var ErrNotFound = fmt.Errorf("not found")
var ErrOutOfRange = fmt.Errorf("out of range")
var ErrUnsupported = fmt.Errorf("unsupported operation")
var ErrInconsistentState = fmt.Errorf("inconsistent state")
var ErrUnknownFeature = fmt.Errorf("unknown feature")
var ErrBadRequest = fmt.Errorf("bad request")

type myError struct {
	msg    string
	target error
}

func (m myError) Error() string        { return m.msg }
func (m myError) Is(target error) bool { return target == m.target }

func NewAlreadyExistsError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrAlreadyExists,
	}
}

func NewNotFoundError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrNotFound,
	}
}

// NewOutOfRangeError reports a positional access outside [0, size)
func NewOutOfRangeError(position, size int) error {
	return &myError{
		msg:    fmt.Sprintf("position %d out of range [0, %d)", position, size),
		target: ErrOutOfRange,
	}
}

func NewUnsupportedError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrUnsupported,
	}
}

func NewInconsistentStateError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrInconsistentState,
	}
}

func NewUnknownFeatureError(className, featureName string) error {
	return &myError{
		msg:    fmt.Sprintf("class %s has no feature named %s", className, featureName),
		target: ErrUnknownFeature,
	}
}

func NewBadRequestError(msg string) error {
	return &myError{
		msg:    msg,
		target: ErrBadRequest,
	}
}
