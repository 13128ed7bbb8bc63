// Package component defines the lifecycle interface shared by Gustav's
// infrastructure pieces (Redis, database, HTTP server) and a registry that
// starts them in order, stops them in reverse and aggregates their health
// for the /health endpoint.
package component
