package types

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information.
type ErrorDetail struct {
	// Message is safe to show to the caller. It never carries internal error
	// text.
	Message string `json:"message"`

	// Type categorizes the error; see the ErrorType constants.
	Type string `json:"type"`

	// Param names the offending request field, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`

	// RequestID correlates the error with server logs.
	RequestID string `json:"request_id,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypePermissionDenied   = "permission_denied"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServerError        = "server_error"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Error codes.
const (
	CodeMissingField     = "missing_field"
	CodeInvalidValue     = "invalid_value"
	CodeInvalidJSON      = "invalid_json"
	CodeSchemaViolation  = "schema_violation"
	CodeRequestTooLarge  = "request_too_large"
	CodeInvalidToken     = "invalid_token"
	CodeInsufficientRole = "insufficient_role"
	CodeSessionNotFound  = "session_not_found"
	CodeRateLimited      = "rate_limited"
	CodeStorageError     = "storage_error"
	CodeExportFailed     = "export_failed"
	CodeTimeout          = "timeout"
	CodeInternalError    = "internal_error"
)

// NewErrorResponse creates a new error response with the given details.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates a 400 response.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewAuthenticationError creates a 401 response.
func NewAuthenticationError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeAuthentication, "", CodeInvalidToken)
}

// NewPermissionDeniedError creates a 403 response.
func NewPermissionDeniedError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypePermissionDenied, "", CodeInsufficientRole)
}

// NewNotFoundError creates a 404 response.
func NewNotFoundError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, "", code)
}

// NewRateLimitError creates a 429 response.
func NewRateLimitError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeRateLimitExceeded, "", CodeRateLimited)
}

// NewServerError creates a 500 response.
func NewServerError(message, code string) *ErrorResponse {
	if code == "" {
		code = CodeInternalError
	}
	return NewErrorResponse(message, ErrorTypeServerError, "", code)
}

// NewServiceUnavailableError creates a 503 response.
func NewServiceUnavailableError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServiceUnavailable, "", "")
}

// NewGatewayTimeoutError creates a 504 response.
func NewGatewayTimeoutError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeGatewayTimeout, "", CodeTimeout)
}

// WithRequestID stamps the request id onto the response.
func (e *ErrorResponse) WithRequestID(id string) *ErrorResponse {
	e.Error.RequestID = id
	return e
}

// HTTPStatusCode returns the HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermissionDenied:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Write sends the error with the status derived from its type. A request
// too large overrides the status to 413.
func (e *ErrorResponse) Write(w http.ResponseWriter) {
	status := e.Error.HTTPStatusCode()
	if e.Error.Code == CodeRequestTooLarge {
		status = http.StatusRequestEntityTooLarge
	}
	if e.Error.Type == ErrorTypeAuthentication {
		w.Header().Set("WWW-Authenticate", `Bearer realm="aegis"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
