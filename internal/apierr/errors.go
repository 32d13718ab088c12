// Package apierr defines the typed failures reported by the protocol layer.
//
// Every failure surfaced to a caller is an *Error carrying one Kind. Callers
// match either with errors.Is against the Err* sentinels or by switching on
// KindOf(err).
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies a protocol failure.
type Kind uint8

const (
	// KindUnknown is reported by KindOf for errors outside the taxonomy.
	KindUnknown Kind = iota

	// KindCommunication is a non-2xx status not otherwise classified, or an unparseable error body.
	KindCommunication

	// KindAuthentication is an HTTP 401: credentials or signature rejected by the service.
	KindAuthentication

	// KindInvalidRequest is an HTTP 400 with a structured {message_code, message} body.
	KindInvalidRequest

	// KindInvalidResponse is a successful call whose body cannot be parsed or decrypted.
	KindInvalidResponse

	// KindInvalidCallback is an inbound callback with an unknown shape, a stale time or unparseable content.
	KindInvalidCallback

	// KindInvalidSignature is a failed signature check on an inbound callback.
	KindInvalidSignature

	// KindProtocol wraps an unexpected underlying fault such as an I/O failure.
	KindProtocol
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCommunication:
		return "communication_error"
	case KindAuthentication:
		return "authentication_error"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidResponse:
		return "invalid_response"
	case KindInvalidCallback:
		return "invalid_callback"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindProtocol:
		return "protocol_error"
	default:
		return "unknown_error"
	}
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrCommunication    = &Error{Kind: KindCommunication}
	ErrAuthentication   = &Error{Kind: KindAuthentication}
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrInvalidResponse  = &Error{Kind: KindInvalidResponse}
	ErrInvalidCallback  = &Error{Kind: KindInvalidCallback}
	ErrInvalidSignature = &Error{Kind: KindInvalidSignature}
	ErrProtocol         = &Error{Kind: KindProtocol}
)

// Error is a protocol failure. Code is the service's message_code, when one was returned.
type Error struct {
	Kind    Kind
	Message string
	Code    string
	Cause   error
}

// Error returns the message, prefixed with the code when present. The cause is
// reachable through Unwrap.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", msg, e.Code)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Communication reports a failed status that is neither a 401 nor a parseable 400.
func Communication(statusMessage string) *Error {
	return &Error{Kind: KindCommunication, Message: statusMessage}
}

// Authentication reports a 401 from the service.
func Authentication(statusMessage string) *Error {
	return &Error{Kind: KindAuthentication, Message: statusMessage}
}

// InvalidRequest reports a 400 whose body carried a message and message_code.
func InvalidRequest(message, code string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: message, Code: code}
}

// InvalidResponse reports a response or decrypted payload that could not be parsed.
func InvalidResponse(message string, cause error) *Error {
	return &Error{Kind: KindInvalidResponse, Message: message, Cause: cause}
}

// InvalidCallback reports a callback that is malformed, mismatched or stale.
func InvalidCallback(message string, cause error) *Error {
	return &Error{Kind: KindInvalidCallback, Message: message, Cause: cause}
}

// InvalidSignature reports a signature that failed verification.
func InvalidSignature(message string) *Error {
	return &Error{Kind: KindInvalidSignature, Message: message}
}

// Protocol wraps an unexpected fault, keeping it as the cause.
func Protocol(message string, cause error) *Error {
	return &Error{Kind: KindProtocol, Message: message, Cause: cause}
}
