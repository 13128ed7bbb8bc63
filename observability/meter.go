package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/gustavlms/gustav/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	Insecure       bool
	Interval       time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider and installs it globally.
func InitMeter(ctx context.Context, config *MeterConfig, log *logger.Logger) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	log.Info("Meter initialized", logger.Fields(
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// AuthMetrics holds the counters for the login flow and request guards.
type AuthMetrics struct {
	logins         metric.Int64Counter
	failures       metric.Int64Counter
	csrfRejections metric.Int64Counter
	jwksRefreshes  metric.Int64Counter
}

// NewAuthMetrics creates the instruments on the given meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	logins, err := meter.Int64Counter("gustav.auth.logins",
		metric.WithDescription("Completed logins by flow"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gustav.auth.logins counter: %w", err)
	}

	failures, err := meter.Int64Counter("gustav.auth.failures",
		metric.WithDescription("Failed login callbacks by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gustav.auth.failures counter: %w", err)
	}

	csrf, err := meter.Int64Counter("gustav.csrf.rejections",
		metric.WithDescription("Requests rejected by the CSRF guard by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gustav.csrf.rejections counter: %w", err)
	}

	refreshes, err := meter.Int64Counter("gustav.oidc.jwks_refreshes",
		metric.WithDescription("JWKS fetches by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gustav.oidc.jwks_refreshes counter: %w", err)
	}

	return &AuthMetrics{
		logins:         logins,
		failures:       failures,
		csrfRejections: csrf,
		jwksRefreshes:  refreshes,
	}, nil
}

// NewDefaultAuthMetrics creates the instruments on the global meter provider.
func NewDefaultAuthMetrics() *AuthMetrics {
	m, err := NewAuthMetrics(Meter(defaultTracerName))
	if err != nil {
		// The global provider only fails on invalid instrument names.
		panic(err)
	}
	return m
}

// RecordLogin counts a completed login.
func (m *AuthMetrics) RecordLogin(ctx context.Context, flow string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", flow)))
}

// RecordFailure counts a failed callback by error code.
func (m *AuthMetrics) RecordFailure(ctx context.Context, code string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordCSRFRejection counts a CSRF rejection by reason.
func (m *AuthMetrics) RecordCSRFRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.csrfRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordJWKSRefresh counts a JWKS fetch.
func (m *AuthMetrics) RecordJWKSRefresh(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.jwksRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
