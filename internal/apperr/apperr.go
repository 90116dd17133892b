// Package apperr defines the failures the gateway can return to callers.
//
// Every failure carries a gRPC status code so callers can tell an invalid
// request from a missing lobby or an exhausted quota without parsing messages.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
)

// Error is a failure with a machine-readable code and a short message that is
// safe to show to a player.
type Error struct {
	Code    codes.Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", Slug(e.Code), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", Slug(e.Code), e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error with the given code.
func New(code codes.Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code codes.Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func InvalidArgument(format string, args ...any) *Error {
	return New(codes.InvalidArgument, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(codes.NotFound, format, args...)
}

func ResourceExhausted(format string, args ...any) *Error {
	return New(codes.ResourceExhausted, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return New(codes.Unauthenticated, format, args...)
}

func Internal(err error, message string) *Error {
	return Wrap(err, codes.Internal, message)
}

// CodeOf extracts the code of err. Context deadline errors map to
// DeadlineExceeded, anything else without a code is Unknown.
func CodeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	return codes.Unknown
}

// MessageOf returns the player-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	switch CodeOf(err) {
	case codes.DeadlineExceeded:
		return "request timed out, please try again"
	case codes.Canceled:
		return "request cancelled"
	}
	return "server error, please try again later"
}

// Slug is the wire name of a code.
func Slug(code codes.Code) string {
	switch code {
	case codes.OK:
		return "ok"
	case codes.Unauthenticated:
		return "unauthenticated"
	case codes.PermissionDenied:
		return "permission-denied"
	case codes.InvalidArgument:
		return "invalid-argument"
	case codes.NotFound:
		return "not-found"
	case codes.AlreadyExists:
		return "already-exists"
	case codes.ResourceExhausted:
		return "resource-exhausted"
	case codes.DeadlineExceeded:
		return "deadline-exceeded"
	case codes.Unavailable:
		return "unavailable"
	case codes.Canceled:
		return "cancelled"
	}
	return "internal"
}

// HTTPStatus maps a code onto the HTTP status the gateway answers with.
func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	}
	return http.StatusInternalServerError
}
