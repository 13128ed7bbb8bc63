// Package logger provides structured logging for Gustav using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "gustav").WithComponent("auth")
//	log.Info("Login started", logger.Fields("attempt_id", id))
//
// Secrets (state values, PKCE verifiers, session ids, tokens) must never be
// passed as fields.
package logger
