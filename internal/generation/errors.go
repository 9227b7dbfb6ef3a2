package generation

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed generation call.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindQuota     ErrorKind = "quota"
	KindAuth      ErrorKind = "auth"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
)

// Error is returned by every failed Client call. Message is the
// human-readable text surfaced to the user unchanged.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: fmt.Sprintf("executing request: %v", err), Err: err}
}

func malformedError(format string, args ...any) *Error {
	return &Error{Kind: KindMalformed, Message: fmt.Sprintf(format, args...)}
}

func statusKind(code int) ErrorKind {
	switch code {
	case 429:
		return KindQuota
	case 401, 403:
		return KindAuth
	default:
		return KindStatus
	}
}
