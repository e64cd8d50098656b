package dmart

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by a Client matches exactly one of these
// with errors.Is.
var (
	// ErrConfiguration indicates missing or malformed client configuration
	ErrConfiguration = errors.New("invalid dmart configuration")
	// ErrNetwork indicates the connection could not be established or was interrupted
	ErrNetwork = errors.New("dmart network error")
	// ErrTimeout indicates no response arrived within the configured deadline
	ErrTimeout = errors.New("dmart request timed out")
	// ErrProtocol indicates the server sent something that is not a valid HTTP response
	ErrProtocol = errors.New("malformed response from dmart")
	// ErrAuthentication indicates the credentials were rejected
	ErrAuthentication = errors.New("dmart authentication failed")
	// ErrService indicates an unexpected status or payload from a reachable service
	ErrService = errors.New("dmart service error")
	// ErrNotConnected indicates an authenticated call was made without a session
	ErrNotConnected = errors.New("client not connected - call Connect() first")
)

// ConfigError describes which configuration field is invalid
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid dmart configuration: %s %s", e.Field, e.Reason)
}

// Is reports ErrConfiguration as the kind of this error
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// RequestError is a transport-level failure: no usable HTTP response was received.
type RequestError struct {
	Method string
	URL    string
	Kind   error
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Method, e.URL, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause, so errors.Is works
// for ErrTimeout as well as context.DeadlineExceeded.
func (e *RequestError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// APIError represents an error response from the Dmart API
type APIError struct {
	StatusCode int
	Kind       error
	Message    string
	Detail     *ErrorDetail
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Detail != nil {
		msg = e.Detail.Message
	}
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		msg = "(empty error body)"
	}
	return fmt.Sprintf("dmart API error: status %d: %s", e.StatusCode, msg)
}

// Is matches the error kind (ErrAuthentication or ErrService)
func (e *APIError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// IsNotFound checks if the error indicates a not found response
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized checks if the error indicates a rejected or expired credential
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// newAPIError builds an APIError from a raw response. The kind follows the
// status class: 401 is always an authentication failure, other 4xx only when
// authFor4xx is set (the login endpoint), everything else is a service error.
func newAPIError(resp *Response, authFor4xx bool) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Kind:       ErrService,
		Body:       string(resp.Body),
	}

	if env, err := decodeEnvelope(resp.Body); err == nil && env.Error != nil {
		apiErr.Detail = env.Error
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = ErrAuthentication
	case authFor4xx && resp.StatusCode >= 400 && resp.StatusCode < 500:
		apiErr.Kind = ErrAuthentication
	}

	return apiErr
}
