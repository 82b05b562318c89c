package transcribe

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ExceptionKind is the closed set of errors the service reports
type ExceptionKind int

const (
	KindUnknown ExceptionKind = iota
	KindBadRequest
	KindConflict
	KindInternalFailure
	KindLimitExceeded
	KindServiceUnavailable
	KindSerialization
)

const (
	genericErrorMessage     = "An unknown error was returned by the service"
	genericExceptionMessage = "An unknown service exception occurred"

	// ErrorTypeHeader carries the error code on a failed HTTP response
	ErrorTypeHeader = "x-amzn-errortype"
)

var exceptionKinds = map[string]ExceptionKind{
	"BadRequestException":         KindBadRequest,
	"ConflictException":           KindConflict,
	"InternalFailureException":    KindInternalFailure,
	"LimitExceededException":      KindLimitExceeded,
	"ServiceUnavailableException": KindServiceUnavailable,
	"SerializationException":      KindSerialization,
}

func (k ExceptionKind) String() string {
	switch k {
	case KindBadRequest:
		return "BadRequest"
	case KindConflict:
		return "Conflict"
	case KindInternalFailure:
		return "InternalFailure"
	case KindLimitExceeded:
		return "LimitExceeded"
	case KindServiceUnavailable:
		return "ServiceUnavailable"
	case KindSerialization:
		return "Serialization"
	default:
		return "Unknown"
	}
}

// ParseExceptionKind looks up a service exception name. The lookup is case
// sensitive; anything outside the table is KindUnknown.
func ParseExceptionKind(name string) ExceptionKind {
	if k, ok := exceptionKinds[name]; ok {
		return k
	}
	return KindUnknown
}

// ServiceException is an error reported by the remote service
type ServiceException struct {
	Kind    ExceptionKind
	Message string

	// Code is the raw error code. It is always set for KindUnknown.
	Code string

	// HTTPStatus is set when the exception came from an HTTP response
	// rather than an in-stream frame
	HTTPStatus *int
}

func (e *ServiceException) Error() string {
	if e.Kind == KindUnknown {
		if e.HTTPStatus != nil {
			return fmt.Sprintf("transcribe: %s (status %d): %s", e.Code, *e.HTTPStatus, e.Message)
		}
		return fmt.Sprintf("transcribe: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("transcribe: %s: %s", e.Kind, e.Message)
}

// Is matches the kind sentinels below, so errors.Is(err, ErrLimitExceeded)
// works on any wrapped *ServiceException.
func (e *ServiceException) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && e.Kind == ExceptionKind(k)
}

// Retryable reports whether a new stream may succeed where this one failed
func (e *ServiceException) Retryable() bool {
	switch e.Kind {
	case KindInternalFailure, KindLimitExceeded, KindServiceUnavailable:
		return true
	}
	return false
}

type kindError ExceptionKind

func (k kindError) Error() string { return "transcribe: " + ExceptionKind(k).String() }

var (
	ErrBadRequest         error = kindError(KindBadRequest)
	ErrConflict           error = kindError(KindConflict)
	ErrInternalFailure    error = kindError(KindInternalFailure)
	ErrLimitExceeded      error = kindError(KindLimitExceeded)
	ErrServiceUnavailable error = kindError(KindServiceUnavailable)
	ErrSerialization      error = kindError(KindSerialization)
	ErrUnknownException   error = kindError(KindUnknown)
)

// MapException classifies an error code and message body. It never fails:
// an unparsable body yields the generic message.
func MapException(code string, body []byte) *ServiceException {
	// Some transports append a detail suffix, e.g. "ValidationException:"
	code, _, _ = strings.Cut(code, ":")
	kind := ParseExceptionKind(code)

	exc := &ServiceException{
		Kind:    kind,
		Message: messageFromBody(body, genericErrorMessage),
	}
	if kind == KindUnknown {
		exc.Code = code
	}
	return exc
}

// ParseHTTPError maps a non-success HTTP response to a ServiceException
// the same way in-stream exceptions are mapped
func ParseHTTPError(status int, header http.Header, body []byte) *ServiceException {
	code := "Unknown"
	if v := header.Get(ErrorTypeHeader); v != "" {
		code = v
	}
	exc := MapException(code, body)
	if exc.Kind == KindUnknown {
		exc.HTTPStatus = &status
	}
	return exc
}

func messageFromBody(body []byte, fallback string) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fallback
	}
	for _, key := range []string{"Message", "message"} {
		if msg, ok := parsed[key].(string); ok {
			return msg
		}
	}
	return fallback
}
