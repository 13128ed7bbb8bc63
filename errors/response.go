package errors

import (
	stderrors "errors"
)

// ErrorResponse is the JSON body returned to clients.
//
//	{"error": "state_not_found"}
type ErrorResponse struct {
	Error ErrorCode `json:"error"`
}

// DetailResponse is the JSON body used by the CSRF guard.
//
//	{"detail": "csrf_violation"}
type DetailResponse struct {
	Detail ErrorCode `json:"detail"`
}

// ToResponse converts an AppError to an ErrorResponse for JSON serialization.
// Only the public code is exposed; message, details and cause stay server-side.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.PublicCode()}
}

// ToDetailResponse converts an AppError to a DetailResponse.
func (e *AppError) ToDetailResponse() DetailResponse {
	return DetailResponse{Detail: e.PublicCode()}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
