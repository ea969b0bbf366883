package oic

import (
	"errors"
	"fmt"
	"strings"
)

// AuthenticationError reports a failed token exchange or a 401 that survived a refresh.
type AuthenticationError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Err)
	}

	return "authentication failed: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error { return e.Err }

// ResourceNotFoundError reports a 404 for the resolved URL.
type ResourceNotFoundError struct {
	URL string
}

// Error implements the error interface.
func (e *ResourceNotFoundError) Error() string {
	return "resource not found: " + e.URL
}

// ValidationError reports a client-side precondition failure.
type ValidationError struct {
	Kind    ResourceKind
	Missing []string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("validation failed for %s: missing required fields: %s", e.Kind, strings.Join(e.Missing, ", "))
	}

	return "validation failed: " + e.Message
}

// APIError reports any other non-success status or a transport failure.
// StatusCode is zero for transport failures.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("request failed: %v", e.Err)
		}

		return "request failed: " + e.Message
	}

	return fmt.Sprintf("API request failed with status code %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid client configuration.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}

	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Common static errors that can be wrapped with context.
var (
	ErrStaticTokenCannotRefresh = errors.New("static token cannot be refreshed")
	ErrNoTokenInResponse        = errors.New("no access_token in token response")
	ErrUnknownResourceKind      = errors.New("unknown resource kind")
	ErrUnexpectedEnvelope       = errors.New("unexpected list response envelope")
	ErrNoActionTarget           = errors.New("action requires a resource id")
	ErrEmptyExport              = errors.New("export returned no content")
	ErrConfigRequired           = errors.New("config is required")
	ErrUnsupportedMethod        = errors.New("unsupported HTTP method")
)

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	var notFound *ResourceNotFoundError

	return errors.As(err, &notFound)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	var authErr *AuthenticationError

	return errors.As(err, &authErr)
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var validationErr *ValidationError

	return errors.As(err, &validationErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	if IsNotFound(err) {
		return 404
	}

	if IsUnauthorized(err) {
		return 401
	}

	return 0
}

// ErrorType returns a short type name for err, used in error records.
func ErrorType(err error) string {
	var (
		authErr       *AuthenticationError
		notFound      *ResourceNotFoundError
		validationErr *ValidationError
		apiErr        *APIError
		configErr     *ConfigurationError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return "AuthenticationError"
	case errors.As(err, &notFound):
		return "ResourceNotFoundError"
	case errors.As(err, &validationErr):
		return "ValidationError"
	case errors.As(err, &apiErr):
		return "APIError"
	case errors.As(err, &configErr):
		return "ConfigurationError"
	default:
		return fmt.Sprintf("%T", err)
	}
}
