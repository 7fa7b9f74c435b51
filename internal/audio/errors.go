package audio

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures reported by the recorder
type ErrorCode string

const (
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidState     ErrorCode = "INVALID_STATE"
	CodeHardware         ErrorCode = "HARDWARE_ERROR"
	CodeFileIO           ErrorCode = "FILE_IO_ERROR"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Error is the typed error returned by the recorder control API.
// Two Errors match with errors.Is when their codes are equal, so the
// sentinels below can be used to classify any returned error.
type Error struct {
	Code  ErrorCode
	Op    string
	State State
	Err   error
}

var (
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrInvalidState     = &Error{Code: CodeInvalidState}
	ErrHardware         = &Error{Code: CodeHardware}
	ErrFileIO           = &Error{Code: CodeFileIO}
)

func (e *Error) Error() string {
	switch {
	case e.Code == CodeInvalidState && e.State != "":
		return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the error code carried by err, or CodeUnknown
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func invalidState(op string, s State) error {
	return &Error{Code: CodeInvalidState, Op: op, State: s}
}

func hardwareError(op string, err error) error {
	return &Error{Code: CodeHardware, Op: op, Err: err}
}

func fileError(op string, err error) error {
	return &Error{Code: CodeFileIO, Op: op, Err: err}
}
