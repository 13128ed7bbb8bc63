// Package web implements the browser-facing login state machine:
//
//	ANONYMOUS -> LOGIN_INITIATED -> CALLBACK_PENDING -> AUTHENTICATED -> LOGGED_OUT | EXPIRED
//
// /auth/login and /auth/register create a one-time state bound to a PKCE
// verifier and nonce and send the browser to Keycloak. /auth/callback redeems
// the state, exchanges the code, verifies the ID token and creates the
// session. /auth/logout ends it. All auth responses are private, no-store.
package web
