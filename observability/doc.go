// Package observability wires OpenTelemetry tracing and metrics for Gustav.
//
// Tracing and metrics export over OTLP/HTTP when an endpoint is configured;
// otherwise the global no-op providers stay in place and StartSpan and the
// metric instruments cost nothing.
//
//	shutdown, err := observability.Setup(ctx, cfg, "gustav", version, env, log)
//	defer shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "oidc.token_exchange")
//	defer span.End()
package observability
