package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gustavlms/gustav/component"
	"github.com/gustavlms/gustav/logger"
)

// DefaultSlowPing is the round trip above which Health reports degraded.
const DefaultSlowPing = 250 * time.Millisecond

// Component owns the Redis connection shared by Gustav's key namespaces
// (the login state store) and runs it under the component registry.
type Component struct {
	cfg        Config
	namespaces []string
	slowPing   time.Duration
	log        *logger.Logger
	client     *Client
}

// ComponentOption configures a Component.
type ComponentOption func(*Component)

// WithNamespace records a namespace stored on this connection, such as
// "auth:state". Namespaces are reported by Describe and Health.
func WithNamespace(ns string) ComponentOption {
	return func(c *Component) {
		if ns = strings.Trim(ns, ":"); ns != "" {
			c.namespaces = append(c.namespaces, ns)
		}
	}
}

// WithSlowPing overrides DefaultSlowPing.
func WithSlowPing(d time.Duration) ComponentOption {
	return func(c *Component) { c.slowPing = d }
}

// NewComponent creates the Redis component. Defaults are applied to cfg up
// front so the key prefix is known before Start.
func NewComponent(cfg Config, log *logger.Logger, opts ...ComponentOption) *Component {
	if log == nil {
		log = logger.NewNop()
	}
	cfg.ApplyDefaults()
	c := &Component{cfg: cfg, slowPing: DefaultSlowPing, log: log.WithComponent("redis")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client returns the connected client, or nil before Start.
func (c *Component) Client() *Client {
	return c.client
}

// KeyPatterns returns the key pattern of each namespace, e.g.
// "gustav:auth:state:*". Without namespaces it is the bare prefix pattern.
func (c *Component) KeyPatterns() []string {
	if len(c.namespaces) == 0 {
		return []string{c.cfg.KeyPrefix + ":*"}
	}
	out := make([]string, len(c.namespaces))
	for i, ns := range c.namespaces {
		out[i] = c.cfg.KeyPrefix + ":" + ns + ":*"
	}
	return out
}

var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

func (c *Component) Name() string { return "redis" }

// Start dials Redis and fails unless the first PING succeeds, so a
// misconfigured state store stops the service at boot.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start: %s: %w", c.cfg.Addr, err)
	}

	c.client = client
	c.log.Info("Redis connected", logger.Fields(
		"addr", c.cfg.Addr,
		"key_prefix", c.cfg.KeyPrefix,
		"namespaces", c.namespaces,
	))
	return nil
}

func (c *Component) Stop(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	c.log.Info("Redis disconnecting", logger.Fields("addr", c.cfg.Addr))
	err := c.client.Close()
	c.client = nil
	return err
}

// Health pings Redis. A failed ping is unhealthy, since logins cannot
// complete without the state store; a ping slower than the threshold is
// degraded.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name()}
	if c.client == nil {
		h.Status = component.StatusUnhealthy
		h.Message = "not connected"
		return h
	}

	start := time.Now()
	err := c.client.Ping(ctx)
	rtt := time.Since(start)

	switch {
	case err != nil:
		h.Status = component.StatusUnhealthy
		h.Message = fmt.Sprintf("%s unreachable: %v", c.cfg.Addr, err)
	case rtt > c.slowPing:
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("ping %s exceeds %s", rtt.Round(time.Millisecond), c.slowPing)
	default:
		h.Status = component.StatusHealthy
		h.Message = strings.Join(c.KeyPatterns(), " ")
	}
	return h
}

// Describe reports the address and the key namespaces for the start-up log.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Redis state store",
		Type:    "redis",
		Details: fmt.Sprintf("%s db=%d keys=%s", c.cfg.Addr, c.cfg.DB, strings.Join(c.KeyPatterns(), ",")),
	}
}
