package captcha

import (
	"errors"
	"fmt"
)

// ErrorKind is the stage-level category of a failed solve.
type ErrorKind int

const (
	KindConfiguration  ErrorKind = iota + 1 // invalid challenge or client config, no request sent
	KindTransport                           // network, timeout, non-200 HTTP
	KindRejected                            // backend refused task creation
	KindPollingFailed                       // terminal failure reported while polling
	KindDecoding                            // ready payload has the wrong shape
	KindCancelled                           // caller aborted through ctx
	KindTimeout                             // MaxWait exhausted while still pending
	KindUnknownBackend                      // backend code or status outside the known set
)

var kindNames = map[ErrorKind]string{
	KindConfiguration:  "configuration",
	KindTransport:      "transport",
	KindRejected:       "rejected",
	KindPollingFailed:  "polling failed",
	KindDecoding:       "decoding",
	KindCancelled:      "cancelled",
	KindTimeout:        "timeout",
	KindUnknownBackend: "unknown backend error",
}

// String returns the kind name used in error messages.
func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Matching compares only the Kind.
var (
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrRejected       = &Error{Kind: KindRejected}
	ErrPollingFailed  = &Error{Kind: KindPollingFailed}
	ErrDecoding       = &Error{Kind: KindDecoding}
	ErrCancelled      = &Error{Kind: KindCancelled}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrUnknownBackend = &Error{Kind: KindUnknownBackend}
)

// Error is returned by every failing Solve. Code keeps the raw backend
// string (ERROR_ZERO_BALANCE, STATUS_CANCEL, ...) for diagnostics.
type Error struct {
	Kind    ErrorKind
	Reason  Reason
	Code    string
	Message string
	TaskID  string
	Err     error
}

// Error formats kind, code, message and task id.
func (e *Error) Error() string {
	msg := "captcha: " + e.Kind.String()
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.TaskID != "" {
		msg += " (task " + e.TaskID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can match against the Err* sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == 0 || t.Reason == e.Reason)
}

// KindOf returns the ErrorKind carried by err, or 0 if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ReasonOf returns the backend Reason carried by err, or 0.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return 0
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func transportError(taskID string, err error) *Error {
	return &Error{Kind: KindTransport, TaskID: taskID, Err: err}
}

func decodeError(taskID string, format string, args ...any) *Error {
	return &Error{Kind: KindDecoding, TaskID: taskID, Message: fmt.Sprintf(format, args...)}
}

// backendError builds the error for a backend-reported failure. Codes that
// MapCode does not know become KindUnknownBackend regardless of stage.
func backendError(stage ErrorKind, taskID, code, message string) *Error {
	reason := MapCode(code, message)
	kind := stage
	if reason == ReasonUnrecognized {
		kind = KindUnknownBackend
	}
	return &Error{Kind: kind, Reason: reason, Code: code, Message: message, TaskID: taskID}
}
