package errors

// ErrorCode represents a machine-readable error code.
//
// Codes are rendered verbatim in JSON error bodies, so they use the
// lower_snake_case form clients already match on.
type ErrorCode string

// Login flow errors
const (
	// ErrCodeStateNotFound indicates the callback state is unknown, expired or already redeemed.
	ErrCodeStateNotFound ErrorCode = "state_not_found"
	// ErrCodeInvalidRequest indicates the callback is missing code or state.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"
	// ErrCodeTokenExchangeFailed indicates the identity provider rejected the code exchange.
	ErrCodeTokenExchangeFailed ErrorCode = "token_exchange_failed"
	// ErrCodeInvalidIDToken indicates the ID token failed verification.
	ErrCodeInvalidIDToken ErrorCode = "invalid_id_token"
	// ErrCodeAlgorithmNotAllowed indicates the ID token was signed with an algorithm outside the allow-list.
	ErrCodeAlgorithmNotAllowed ErrorCode = "algorithm_not_allowed"
	// ErrCodeInvalidNonce indicates the ID token nonce does not match the stored one.
	ErrCodeInvalidNonce ErrorCode = "invalid_nonce"
	// ErrCodeInvalidEmailDomain indicates a registration hint outside the allowed domains.
	ErrCodeInvalidEmailDomain ErrorCode = "invalid_email_domain"
)

// Request authentication errors
const (
	// ErrCodeUnauthenticated indicates the request carries no valid session.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeSessionNotFound indicates the session id is unknown or expired.
	ErrCodeSessionNotFound ErrorCode = "session_not_found"
	// ErrCodeCSRFViolation indicates a state-changing request failed the same-origin check.
	ErrCodeCSRFViolation ErrorCode = "csrf_violation"
	// ErrCodeRateLimited indicates the client exceeded the request budget.
	ErrCodeRateLimited ErrorCode = "rate_limited"
)

// Infrastructure errors
const (
	// ErrCodeInvalidConfig indicates invalid construction parameters.
	ErrCodeInvalidConfig ErrorCode = "invalid_config"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal_error"
	// ErrCodeDatabaseError indicates a database error.
	ErrCodeDatabaseError ErrorCode = "database_error"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeDatabaseError: true,
	ErrCodeInternal:      false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
