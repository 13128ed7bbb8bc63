// Package server provides the Gustav HTTP server: a gin engine served over
// HTTP/1.1 and h2c with read, header, write and idle timeouts.
//
// Server-wide middleware (see server/middleware) is registered with Use and
// wraps every handler on the mux; route-level auth and CSRF run on the gin
// engine. The server is started and stopped through the component registry,
// which also feeds GET /health.
package server
