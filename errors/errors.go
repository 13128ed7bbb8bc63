package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message. It is logged, not rendered.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// PublicCode is the code rendered to clients. Sub-cases collapse into
// their parent so responses never reveal which verification step failed.
func (e *AppError) PublicCode() ErrorCode {
	if parent, ok := parentCodes[e.Code]; ok {
		return parent
	}
	return e.Code
}

// Is reports whether e is, or is a sub-case of, code.
func (e *AppError) Is(code ErrorCode) bool {
	return e.Code == code || parentCodes[e.Code] == code
}

var parentCodes = map[ErrorCode]ErrorCode{
	ErrCodeAlgorithmNotAllowed: ErrCodeInvalidIDToken,
	ErrCodeSessionNotFound:     ErrCodeUnauthenticated,
}

// HasCode reports whether err is an *AppError with the given code, either
// directly or as a sub-case.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Is(code)
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Login flow ---

// StateNotFound creates an error for a state that is unknown, expired or already redeemed.
func StateNotFound() *AppError {
	return &AppError{
		Code: ErrCodeStateNotFound, Message: "Login state is unknown, expired or already used.",
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidRequest creates an error for a malformed callback request.
func InvalidRequest(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidRequest, Message: reason,
		HTTPStatus: http.StatusBadRequest,
	}
}

// TokenExchangeFailed creates an error for a rejected authorization code exchange.
// The identity provider's error payload is kept in Details for logging.
func TokenExchangeFailed(status int, idpError, description string) *AppError {
	details := map[string]any{"status": status}
	if idpError != "" {
		details["error"] = idpError
	}
	if description != "" {
		details["error_description"] = description
	}
	return &AppError{
		Code: ErrCodeTokenExchangeFailed, Message: "The identity provider rejected the code exchange.",
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// InvalidIDToken creates an error for an ID token that failed verification.
func InvalidIDToken(reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidIDToken, Message: fmt.Sprintf("ID token verification failed: %s", reason),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"reason": reason},
	}
}

// AlgorithmNotAllowed creates an error for an ID token signed with a disallowed algorithm.
func AlgorithmNotAllowed(alg string) *AppError {
	return &AppError{
		Code: ErrCodeAlgorithmNotAllowed, Message: fmt.Sprintf("Signing algorithm %q is not allowed.", alg),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"alg": alg},
	}
}

// InvalidNonce creates an error for an ID token whose nonce does not match the login attempt.
func InvalidNonce() *AppError {
	return &AppError{
		Code: ErrCodeInvalidNonce, Message: "ID token nonce does not match the login attempt.",
		HTTPStatus: http.StatusBadRequest,
	}
}

// InvalidEmailDomain creates an error for a registration hint outside the allowed domains.
func InvalidEmailDomain(domain string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidEmailDomain, Message: "Email domain is not allowed for registration.",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"domain": domain},
	}
}

// --- Request authentication ---

// Unauthenticated creates an error for a request without a valid session.
func Unauthenticated(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthenticated, Message: reason,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// SessionNotFound creates an error for an unknown or expired session.
func SessionNotFound() *AppError {
	return &AppError{
		Code: ErrCodeSessionNotFound, Message: "Session is unknown or expired.",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// CSRFViolation creates an error for a state-changing request that failed the origin check.
func CSRFViolation(reason string) *AppError {
	return &AppError{
		Code: ErrCodeCSRFViolation, Message: "Cross-site request rejected.",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]any{"reason": reason},
	}
}

// RateLimited creates an error for a client over its request budget.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// --- Infrastructure ---

// InvalidConfig creates an error for invalid construction parameters.
func InvalidConfig(field, reason string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidConfig, Message: fmt.Sprintf("invalid %s: %s", field, reason),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again or contact support.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// DatabaseError creates a new AppError for a database error.
func DatabaseError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeDatabaseError, Message: "A database error occurred. Please try again.",
		HTTPStatus: http.StatusInternalServerError, Retryable: true, Cause: cause,
	}
}
