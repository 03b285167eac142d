// Package errors defines the error taxonomy shared by both sides of the
// workspace channel.
//
// Errors raised on the worker side travel back to the client as a
// {kind, message} payload and are rebuilt into an *Error there, so callers
// can match them with errors.Is against the sentinels below regardless of
// which side produced them.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error. The string value is what crosses the channel.
type Kind string

const (
	// KindProtocol covers malformed or duplicate correlation ids and channel failures.
	KindProtocol Kind = "ProtocolError"
	// KindUnknownFile is an operation on a file name that was never ensured.
	KindUnknownFile Kind = "UnknownFile"
	// KindInvalidRange is an out-of-bounds offset or range.
	KindInvalidRange Kind = "InvalidRange"
	// KindInvalidArgument is a negative or non-numeric argument.
	KindInvalidArgument Kind = "InvalidArgument"
	// KindEngine is a failure inside the analysis engine.
	KindEngine Kind = "EngineError"
	// KindHistoryTruncated is a change-range request older than retained history.
	KindHistoryTruncated Kind = "HistoryTruncated"
	// KindTimeout is a request that did not get a response before its deadline.
	KindTimeout Kind = "Timeout"
)

// Sentinel errors, one per kind.
var (
	ErrProtocol         = errors.New("protocol error")
	ErrUnknownFile      = errors.New("unknown file")
	ErrInvalidRange     = errors.New("invalid range")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrEngine           = errors.New("analysis engine error")
	ErrHistoryTruncated = errors.New("history truncated")
	ErrTimeout          = errors.New("request timed out")
)

var sentinels = map[Kind]error{
	KindProtocol:         ErrProtocol,
	KindUnknownFile:      ErrUnknownFile,
	KindInvalidRange:     ErrInvalidRange,
	KindInvalidArgument:  ErrInvalidArgument,
	KindEngine:           ErrEngine,
	KindHistoryTruncated: ErrHistoryTruncated,
	KindTimeout:          ErrTimeout,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := sentinels[k]
	return ok
}

// Sentinel returns the sentinel error for the kind, or ErrProtocol for
// unknown kinds.
func (k Kind) Sentinel() error {
	if err, ok := sentinels[k]; ok {
		return err
	}
	return ErrProtocol
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, may be empty
	Message string
	Err     error // underlying cause, may be nil
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err returns nil.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Sentinel().Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return e.Kind.Sentinel() == target
}

// KindOf returns the kind of err. Errors that carry no classification are
// reported as engine errors; context deadlines map to Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindEngine
}

// Classify returns err as an *Error, classifying it with KindOf when it is
// not one already.
func Classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindOf(err), op, err)
}

// IsUnknownFile reports whether err is an UnknownFile error.
func IsUnknownFile(err error) bool {
	return errors.Is(err, ErrUnknownFile)
}

// IsTimeout reports whether err is a Timeout error.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsHistoryTruncated reports whether err is a HistoryTruncated error.
func IsHistoryTruncated(err error) bool {
	return errors.Is(err, ErrHistoryTruncated)
}
