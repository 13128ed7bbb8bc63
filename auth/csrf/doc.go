// Package csrf implements the same-origin check for cookie-authenticated
// writes.
//
// A state-changing request must present an Origin header matching the server
// origin or one of the configured origins. Without Origin the Referer origin
// is compared instead; a request with neither is rejected. The server origin
// comes from the Host header unless TrustProxy is set, in which case the first
// X-Forwarded-Proto, X-Forwarded-Host and X-Forwarded-Port values win.
package csrf
