package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies inference failures so callers can present them
// distinctly and decide on remediation.
type ErrorKind string

// Error kinds, from transport level up to provider semantics.
const (
	// KindNetwork is a transport-level failure (DNS, timeout, connection).
	KindNetwork ErrorKind = "network"

	// KindHTTP is a non-2xx status whose body carried no recognizable
	// provider error object.
	KindHTTP ErrorKind = "http"

	// KindProvider is a well-formed error object from the remote service.
	KindProvider ErrorKind = "provider"

	// KindInvalidRequest refines KindProvider for HTTP 400.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindAuth refines KindProvider for HTTP 401/403 (invalid or revoked key).
	KindAuth ErrorKind = "auth"

	// KindRateLimited refines KindProvider for HTTP 429 (quota exhausted).
	KindRateLimited ErrorKind = "rate_limited"

	// KindSafetyFiltered means the model declined to answer.
	KindSafetyFiltered ErrorKind = "safety_filtered"

	// KindUnexpectedFormat means the response body matched no known schema.
	KindUnexpectedFormat ErrorKind = "unexpected_format"
)

// Error is a classified inference failure. Every failure a provider returns
// is one of these; the session layer relies on the Kind for state decisions
// and user-facing messages.
type Error struct {
	Kind       ErrorKind
	StatusCode int    // HTTP status, when one was received
	Message    string // Human-readable description
	Body       string // Raw response body, for unexpected-format diagnostics
	Cause      error  // Underlying transport error, when any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error(), Cause: err}
}

// NewSafetyError reports that the model declined to answer.
func NewSafetyError(reason string) *Error {
	return &Error{Kind: KindSafetyFiltered, Message: reason}
}

// NewFormatError reports a response body that matched no known schema.
func NewFormatError(body []byte) *Error {
	return &Error{
		Kind:    KindUnexpectedFormat,
		Message: "unexpected response format",
		Body:    string(body),
	}
}

// refineByStatus maps an HTTP status to a provider error sub-kind.
func refineByStatus(statusCode int) ErrorKind {
	switch statusCode {
	case http.StatusBadRequest:
		return KindInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindAuth
	case http.StatusTooManyRequests:
		return KindRateLimited
	default:
		return KindProvider
	}
}

// ClassifyHTTPError builds an Error for a non-2xx response. When the body
// carries a well-formed provider error object ({"error":{"message":...}} or
// {"message":...}), the result is a provider error refined by status code;
// otherwise it is a bare HTTP error with the raw body.
func ClassifyHTTPError(statusCode int, body []byte) *Error {
	if msg := extractErrorMessage(body); msg != "" {
		return &Error{
			Kind:       refineByStatus(statusCode),
			StatusCode: statusCode,
			Message:    msg,
			Body:       string(body),
		}
	}
	return &Error{
		Kind:       KindHTTP,
		StatusCode: statusCode,
		Message:    string(body),
		Body:       string(body),
	}
}

// ExtractBodyError checks a 2xx response body for an explicit error object.
// Some providers return HTTP 200 with an error payload; that still classifies
// as a provider failure, never as text output.
func ExtractBodyError(body []byte) *Error {
	if msg := extractErrorMessage(body); msg != "" {
		return &Error{Kind: KindProvider, Message: msg, Body: string(body)}
	}
	return nil
}

func extractErrorMessage(body []byte) string {
	var wrapped struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}

	var flat struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Message != "" {
		return flat.Message
	}
	return ""
}

// UnmarshalStrictBody unmarshals a 2xx response body, classifying parse
// failures as unexpected-format errors.
func UnmarshalStrictBody(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &Error{
			Kind:    KindUnexpectedFormat,
			Message: "unparseable response body: " + err.Error(),
			Body:    string(body),
			Cause:   err,
		}
	}
	return nil
}

// KindOf returns the ErrorKind of err, or empty when err is not a classified
// provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
