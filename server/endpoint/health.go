package endpoint

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/component"
	"github.com/gustavlms/gustav/version"
)

// HealthChecker returns the health of each registered component.
type HealthChecker func(ctx context.Context) []component.Health

// Report is the body of GET /health.
type Report struct {
	Status     component.HealthStatus `json:"status"`
	Service    string                 `json:"service"`
	Version    string                 `json:"version"`
	CheckedAt  time.Time              `json:"checked_at"`
	Failing    []string               `json:"failing,omitempty"`
	Components []component.Health     `json:"components"`
}

// Summarize folds component results into a Report. Any unhealthy component
// makes the service unhealthy; otherwise any degraded one makes it degraded.
// Failing names every component that is not healthy.
func Summarize(service string, components []component.Health, now time.Time) Report {
	r := Report{
		Status:     component.StatusHealthy,
		Service:    service,
		Version:    version.Get().Short(),
		CheckedAt:  now.UTC().Truncate(time.Second),
		Components: components,
	}
	if r.Components == nil {
		r.Components = []component.Health{}
	}
	for _, h := range components {
		switch h.Status {
		case component.StatusHealthy:
			continue
		case component.StatusDegraded:
			if r.Status == component.StatusHealthy {
				r.Status = component.StatusDegraded
			}
		default:
			r.Status = component.StatusUnhealthy
		}
		r.Failing = append(r.Failing, h.Name)
	}
	return r
}

// HTTPStatus is 503 while the service cannot complete logins, 200 otherwise.
func (r Report) HTTPStatus() int {
	if r.Status == component.StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Health serves the Report for GET and only its status code for HEAD, so
// load balancers can poll without a body.
func Health(service string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var components []component.Health
		if checker != nil {
			components = checker(c.Request.Context())
		}
		report := Summarize(service, components, time.Now())

		c.Header("Cache-Control", "no-store")
		if c.Request.Method == http.MethodHead {
			c.Status(report.HTTPStatus())
			return
		}
		c.JSON(report.HTTPStatus(), report)
	}
}
