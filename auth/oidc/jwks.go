package oidc

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/observability"
)

// Failure reasons surfaced through invalid_id_token details.
var (
	ErrMissingKID     = errors.New("missing_kid")
	ErrUnknownKID     = errors.New("unknown_kid")
	ErrJWKSFetch      = errors.New("jwks_fetch_failed")
	ErrJWKSInvalid    = errors.New("jwks_invalid")
	ErrMalformedToken = errors.New("malformed_token")
)

const maxJWKSResponse = 1 << 20

// jwksEntry is the cached key set of one issuer.
type jwksEntry struct {
	issuer    string
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSCache caches RSA signing keys per issuer. Reads are concurrent;
// refreshes of the same issuer are collapsed into one request and the
// last completed refresh wins.
type JWKSCache struct {
	client  *http.Client
	maxAge  time.Duration
	now     func() time.Time
	log     *logger.Logger
	metrics *observability.AuthMetrics

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*jwksEntry
}

// JWKSOption configures a JWKSCache.
type JWKSOption func(*JWKSCache)

// WithJWKSMaxAge refreshes keys older than d even when the kid is known.
// Zero disables age-based refresh.
func WithJWKSMaxAge(d time.Duration) JWKSOption {
	return func(c *JWKSCache) { c.maxAge = d }
}

// WithJWKSClock overrides the clock used for cache age.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) { c.now = now }
}

// WithJWKSLogger sets the cache logger.
func WithJWKSLogger(log *logger.Logger) JWKSOption {
	return func(c *JWKSCache) { c.log = log }
}

// WithJWKSMetrics records refresh outcomes.
func WithJWKSMetrics(m *observability.AuthMetrics) JWKSOption {
	return func(c *JWKSCache) { c.metrics = m }
}

// NewJWKSCache creates an empty cache. client must carry a timeout.
func NewJWKSCache(client *http.Client, opts ...JWKSOption) *JWKSCache {
	c := &JWKSCache{
		client:  client,
		now:     time.Now,
		entries: make(map[string]*jwksEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	c.log = c.log.WithComponent("jwks")
	return c
}

// Key returns the RSA key for kid, refreshing the issuer's key set when kid
// is unknown, the set is stale, or force is set.
func (c *JWKSCache) Key(ctx context.Context, issuer, jwksURI, kid string, force bool) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, ErrMissingKID
	}

	if !force {
		if key, ok := c.lookup(issuer, kid); ok {
			return key, nil
		}
	}

	entry, err := c.refresh(ctx, issuer, jwksURI)
	if err != nil {
		return nil, err
	}
	key, ok := entry.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKID, kid)
	}
	return key, nil
}

// lookup reports a cached key only while the entry is fresh.
func (c *JWKSCache) lookup(issuer, kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[issuer]
	if !ok {
		return nil, false
	}
	if c.maxAge > 0 && c.now().Sub(entry.fetchedAt) > c.maxAge {
		return nil, false
	}
	key, ok := entry.keys[kid]
	return key, ok
}

// FetchedAt returns when the issuer's keys were last fetched.
func (c *JWKSCache) FetchedAt(issuer string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[issuer]
	if !ok {
		return time.Time{}, false
	}
	return entry.fetchedAt, true
}

func (c *JWKSCache) refresh(ctx context.Context, issuer, jwksURI string) (*jwksEntry, error) {
	// The shared fetch must not be cancelled by whichever caller started it.
	fetchCtx := context.WithoutCancel(ctx)

	v, err, shared := c.group.Do(issuer, func() (interface{}, error) {
		entry, err := c.fetch(fetchCtx, issuer, jwksURI)
		c.metrics.RecordJWKSRefresh(fetchCtx, err == nil)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[issuer] = entry
		c.mu.Unlock()
		return entry, nil
	})
	if err != nil {
		c.log.Warn("JWKS refresh failed", logger.Fields(
			"issuer", issuer,
			logger.FieldError, err.Error(),
			"shared", shared,
		))
		return nil, err
	}
	return v.(*jwksEntry), nil
}

func (c *JWKSCache) fetch(ctx context.Context, issuer, jwksURI string) (*jwksEntry, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanJWKSFetch)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrIssuer, issuer))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrJWKSFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d", ErrJWKSFetch, resp.StatusCode)
		observability.SetSpanError(span, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrJWKSFetch, err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrJWKSInvalid, err)
	}

	keys := make(map[string]*rsa.PublicKey, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyID() == "" {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != "sig" {
			continue
		}
		var raw interface{}
		if err := key.Raw(&raw); err != nil {
			continue
		}
		if pub, ok := raw.(*rsa.PublicKey); ok {
			keys[key.KeyID()] = pub
		}
	}
	if len(keys) == 0 {
		err := fmt.Errorf("%w: no RSA signing keys", ErrJWKSInvalid)
		observability.SetSpanError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int(observability.AttrKeyCount, len(keys)))

	c.log.Debug("JWKS refreshed", logger.Fields("issuer", issuer, "keys", len(keys)))
	return &jwksEntry{issuer: issuer, keys: keys, fetchedAt: c.now()}, nil
}
