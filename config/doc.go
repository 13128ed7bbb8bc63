// Package config loads Gustav configuration from an optional YAML file, an
// optional .env file and the process environment.
//
// Nested keys map to prefixed upper-case environment names (server.port
// reads GUSTAV_SERVER_PORT for the gustav service). Deployment-facing names
// that predate the nested layout, such as KC_BASE_URL or GUSTAV_TRUST_PROXY,
// are bound explicitly with WithEnvBindings.
//
// # Usage
//
//	var cfg AppConfig
//	err := config.LoadConfig("gustav", &cfg, config.WithEnvBindings(bindings))
//
// Configuration is resolved once at start-up and injected into components.
package config
