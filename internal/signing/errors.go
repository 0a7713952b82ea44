package signing

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindAuthentication  ErrorKind = "authentication"
	KindAuthorization   ErrorKind = "authorization"
	KindNotFound        ErrorKind = "not_found"
	KindPayloadTooLarge ErrorKind = "payload_too_large"
	KindOTPNotRequested ErrorKind = "otp_not_requested"
	KindOTPExpired      ErrorKind = "otp_expired"
	KindOTPLocked       ErrorKind = "otp_locked"
	KindOTPInvalid      ErrorKind = "otp_invalid"
	KindStorage         ErrorKind = "storage"
	KindPersistence     ErrorKind = "persistence"
	KindConfiguration   ErrorKind = "configuration"
)

// Error is the tagged failure type for the signing workflow. Handlers map
// the kind to a transport status; everything below the handler layer only
// ever deals in kinds.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain, or "" for untagged errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps an error to its transport status code. Untagged errors
// are treated as downstream failures.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation, KindOTPNotRequested, KindOTPExpired:
		return http.StatusBadRequest
	case KindAuthentication, KindOTPInvalid:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindOTPLocked:
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
