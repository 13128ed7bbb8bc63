// Package errors provides the unified error type for the Gustav identity core.
// Every failure in the login flow, session handling and CSRF defense is an
// *AppError carrying a closed ErrorCode and the HTTP status it renders as.
package errors
