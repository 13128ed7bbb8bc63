package bootstrap

import (
	"context"
	"time"

	"github.com/gustavlms/gustav/component"
	"github.com/gustavlms/gustav/logger"
)

// logSummary writes the closing startup line. Per-component lines are
// logged by the registry as each component starts.
func (a *App[C]) logSummary(ctx context.Context, took time.Duration) {
	var unhealthy []string
	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status != component.StatusHealthy {
			unhealthy = append(unhealthy, h.Name)
		}
	}
	fields := logger.Fields(
		"name", a.Name,
		"version", a.Version,
		"components", a.Components.Names(),
		logger.FieldDuration, took.Milliseconds(),
	)
	if len(unhealthy) > 0 {
		fields["unhealthy"] = unhealthy
	}
	a.Logger.Info("Startup complete", fields)
}
