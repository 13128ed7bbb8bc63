package session

import (
	"context"
	"fmt"
	"time"

	"github.com/gustavlms/gustav/auth/oidc"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = time.Hour

// DefaultCookieName is the session cookie name when none is configured.
const DefaultCookieName = "gustav_session"

// Session is the server-side record behind the session cookie.
type Session struct {
	ID            string    `json:"-"`
	Subject       string    `json:"sub"`
	Roles         []string  `json:"roles"`
	DisplayName   string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	ExpiresAt     time.Time `json:"expires_at"`

	// IDToken is only ever used as id_token_hint on logout.
	IDToken string `json:"-"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NewSession holds what Create needs.
type NewSession struct {
	Subject       string
	Roles         []string
	DisplayName   string
	EmailVerified bool
	IDToken       string
	// TTL sets expires_at = now + TTL. Zero or negative yields a session
	// that is already expired.
	TTL time.Duration
}

// Store manages authenticated sessions.
type Store interface {
	// Create stores a session under a new unguessable id.
	Create(ctx context.Context, in NewSession) (*Session, error)

	// Get returns (nil, nil) for unknown or expired ids.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
}

// Sweeper is implemented by stores that leave expired rows behind.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

func newSessionID() (string, error) {
	id, err := oidc.RandomToken(32)
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return id, nil
}

func newSession(now time.Time, in NewSession) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	roles := make([]string, len(in.Roles))
	copy(roles, in.Roles)
	return &Session{
		ID:            id,
		Subject:       in.Subject,
		Roles:         roles,
		DisplayName:   in.DisplayName,
		EmailVerified: in.EmailVerified,
		IDToken:       in.IDToken,
		ExpiresAt:     now.Add(in.TTL).UTC().Truncate(time.Microsecond),
	}, nil
}
