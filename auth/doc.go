// Package auth groups the identity core of the service:
//
//   - auth/state    one-shot authorization state (PKCE verifier, nonce, redirect)
//   - auth/oidc     authorization URL, code exchange and ID token verification
//   - auth/session  server-side sessions and the session cookie
//   - auth/csrf     same-origin enforcement for cookie-authenticated writes
//   - auth/authctx  the principal handed to downstream handlers
//
// The HTTP flow that ties them together lives in package web; the gin
// middleware in server/middleware.
package auth
