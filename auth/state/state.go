package state

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/gustavlms/gustav/auth/oidc"
)

// DefaultTTL bounds how long a login attempt may take.
const DefaultTTL = 900 * time.Second

// AuthorizationState binds one login attempt to its PKCE verifier.
type AuthorizationState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	Nonce        string    `json:"nonce,omitempty"`
	Redirect     string    `json:"redirect,omitempty"`
	Flow         string    `json:"flow,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`

	// AttemptID correlates log lines of one attempt. The state value is
	// a bearer secret and never logged.
	AttemptID string `json:"attempt_id"`
}

// Expired reports whether the record is past its expiry at now.
func (s *AuthorizationState) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store holds login attempts until the callback redeems them.
type Store interface {
	// Create stores a new attempt under a fresh random state value.
	Create(ctx context.Context, codeVerifier string, opts ...CreateOption) (*AuthorizationState, error)

	// PopValid removes and returns the attempt. It returns (nil, nil) when
	// the state is unknown, already redeemed or expired. At most one of
	// any number of concurrent callers observes a record.
	PopValid(ctx context.Context, state string) (*AuthorizationState, error)
}

// CreateOption configures Create.
type CreateOption func(*createOptions)

type createOptions struct {
	ttl      time.Duration
	redirect string
	nonce    string
	flow     string
}

// WithTTL overrides DefaultTTL. A non-positive TTL yields an already
// expired record.
func WithTTL(ttl time.Duration) CreateOption {
	return func(o *createOptions) { o.ttl = ttl }
}

// WithRedirect stores the in-app path to return to after login.
func WithRedirect(path string) CreateOption {
	return func(o *createOptions) { o.redirect = path }
}

// WithNonce stores the nonce the ID token must echo.
func WithNonce(nonce string) CreateOption {
	return func(o *createOptions) { o.nonce = nonce }
}

// WithFlow records which entry point started the attempt ("login",
// "register"). It only feeds logs and metrics.
func WithFlow(flow string) CreateOption {
	return func(o *createOptions) { o.flow = flow }
}

func newAuthorizationState(now time.Time, codeVerifier string, opts []CreateOption) (*AuthorizationState, time.Duration, error) {
	o := createOptions{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}

	id, err := oidc.RandomToken(32)
	if err != nil {
		return nil, 0, err
	}
	return &AuthorizationState{
		State:        id,
		CodeVerifier: codeVerifier,
		Nonce:        o.nonce,
		Redirect:     o.redirect,
		Flow:         o.flow,
		ExpiresAt:    now.Add(o.ttl),
		AttemptID:    ksuid.New().String(),
	}, o.ttl, nil
}
