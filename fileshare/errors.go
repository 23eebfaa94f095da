// Package fileshare implements the three-way synchronization engine that
// reconciles a local directory, a locally persisted baseline, and a remote
// directory snapshot.
package fileshare

import "fmt"

// ErrorStatus enumerates the error taxonomy of this package. Every
// component-level failure is surfaced as one of these codes so that the
// Sync Driver can report per-file failures without losing the reason.
type ErrorStatus int

const (
	StatusGeneric ErrorStatus = iota
	StatusInterrupted
	StatusClockSkew
	StatusWrongCredentials
	StatusAccessDenied
	StatusNotFound
	StatusTransportError
	StatusParseError
	StatusIOError
	StatusUnhandledConflict
	StatusProtocolError
)

func (s ErrorStatus) String() string {
	switch s {
	case StatusInterrupted:
		return "Interrupted"
	case StatusClockSkew:
		return "ClockSkew"
	case StatusWrongCredentials:
		return "WrongCredentials"
	case StatusAccessDenied:
		return "AccessDenied"
	case StatusNotFound:
		return "NotFound"
	case StatusTransportError:
		return "TransportError"
	case StatusParseError:
		return "ParseError"
	case StatusIOError:
		return "IOError"
	case StatusUnhandledConflict:
		return "UnhandledConflict"
	case StatusProtocolError:
		return "ProtocolError"
	default:
		return "Generic"
	}
}

// Error wraps an ErrorStatus code and an optional path together with the
// underlying cause, mirroring the (code, status, err) shape of the teacher's
// own error type.
type Error struct {
	Code ErrorStatus
	Path string
	err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Path, e.err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func makeError(code ErrorStatus, err error) *Error {
	return &Error{Code: code, err: err}
}

func makeErrorWithPath(code ErrorStatus, path string, err error) *Error {
	return &Error{Code: code, Path: path, err: err}
}

func interruptedErr() *Error {
	return makeError(StatusInterrupted, fmt.Errorf("operation interrupted"))
}

func clockSkewErr(deltaMs int64) *Error {
	return makeError(StatusClockSkew, fmt.Errorf("server/client clock offset of %dms exceeds the 1s tolerance", deltaMs))
}

func ioErr(path string, err error) *Error {
	return makeErrorWithPath(StatusIOError, path, err)
}

func parseErr(err error) *Error {
	return makeError(StatusParseError, err)
}

func protocolErr(err error) *Error {
	return makeError(StatusProtocolError, err)
}

func unhandledConflictErr(path string) *Error {
	return makeErrorWithPath(StatusUnhandledConflict, path, fmt.Errorf("conflict requires interactive resolution but no prompter is configured"))
}

func wrongCredentialsErr(err error) *Error {
	return makeError(StatusWrongCredentials, err)
}

func accessDeniedErr(path string, err error) *Error {
	return makeErrorWithPath(StatusAccessDenied, path, err)
}

func notFoundErr(path string) *Error {
	return makeErrorWithPath(StatusNotFound, path, fmt.Errorf("not found"))
}

func transportErr(err error) *Error {
	return makeError(StatusTransportError, err)
}

// ClockSkewErr, ParseErr, TransportErr, WrongCredentialsErr, AccessDeniedErr
// and NotFoundErr are the exported constructors the transport package uses
// to surface wire-level failures through this package's error taxonomy.
func ClockSkewErr(deltaMs int64) *Error             { return clockSkewErr(deltaMs) }
func ParseErr(err error) *Error                     { return parseErr(err) }
func TransportErr(err error) *Error                 { return transportErr(err) }
func WrongCredentialsErr(err error) *Error          { return wrongCredentialsErr(err) }
func AccessDeniedErr(path string, err error) *Error { return accessDeniedErr(path, err) }
func NotFoundErr(path string) *Error                { return notFoundErr(path) }
func ProtocolErr(err error) *Error                  { return protocolErr(err) }

// IsInterrupted reports whether err (or any error it wraps) is the
// Interrupted status.
func IsInterrupted(err error) bool {
	var e *Error
	return asError(err, &e) && e.Code == StatusInterrupted
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
