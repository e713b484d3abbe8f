package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeForbidden       ErrorType = "forbidden"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// Error codes carried in APIError.Code.
const (
	CodeInvalidCredential           = "invalid_credential"
	CodeAccessDenied                = "access_denied"
	CodeRateLimited                 = "rate_limited"
	CodeRestrictionActivationFailed = "restriction_activation_failed"
)

// MessageInvalidCredential is the single message returned for every
// credential failure, whether the token was bad or its subject unknown.
const MessageInvalidCredential = "invalid or missing token"

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewConflictError creates an APIError for resources that already exist.
func NewConflictError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewAuthenticationError creates the uniform error for a missing, invalid,
// expired or unresolvable credential. The body is identical for all of them.
func NewAuthenticationError() *APIError {
	return &APIError{
		Type:    ErrorTypeUnauthenticated,
		Code:    CodeInvalidCredential,
		Message: MessageInvalidCredential,
	}
}

// NewForbiddenError creates an APIError for authenticated callers that lack access.
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeForbidden,
		Code:    CodeAccessDenied,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Code:    CodeRateLimited,
		Message: message,
	}
}

// NewActivationError creates the error returned when the tenant restriction
// for a request could not be put in place.
func NewActivationError() *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Code:    CodeRestrictionActivationFailed,
		Message: "unable to scope request to tenant",
	}
}
