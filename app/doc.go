// Package app assembles the Gustav identity service from its configuration:
// stores, OIDC client and verifier, CSRF guard, middleware and routes.
package app
