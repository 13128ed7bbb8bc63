package csrf

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/gustavlms/gustav/errors"
)

// Rejection reasons carried in the X-CSRF-Reason header and the log.
const (
	ReasonMissingOrigin   = "missing_origin"
	ReasonOriginMismatch  = "origin_mismatch"
	ReasonRefererMismatch = "referer_mismatch"
	ReasonInvalidOrigin   = "invalid_origin"
)

// ErrInvalidOrigin is returned by ParseOrigin for values without a usable
// scheme and host.
var ErrInvalidOrigin = errors.New("csrf: invalid origin")

// Origin is a normalized (scheme, host, port) triple.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

func (o Origin) String() string {
	if o.Port == defaultPort(o.Scheme) {
		return o.Scheme + "://" + o.Host
	}
	return o.Scheme + "://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// ParseOrigin normalizes an origin or URL. Scheme and host are lowercased and
// the default port of the scheme is filled in. Paths and queries are ignored,
// so a Referer value parses to its origin.
func ParseOrigin(raw string) (Origin, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return Origin{}, ErrInvalidOrigin
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: %v", ErrInvalidOrigin, err)
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" || (scheme != "http" && scheme != "https") {
		return Origin{}, ErrInvalidOrigin
	}
	port := defaultPort(scheme)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return Origin{}, ErrInvalidOrigin
		}
		port = n
	}
	return Origin{Scheme: scheme, Host: host, Port: port}, nil
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// RequiresCheck reports whether requests with this method change state.
func RequiresCheck(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Config configures a Guard.
type Config struct {
	// TrustProxy derives the server origin from X-Forwarded-* headers.
	// Enable only behind a proxy that overwrites them.
	TrustProxy bool
	// AllowedOrigins are accepted in addition to the server origin, typically
	// the public base URL of the app and the origin of the OIDC redirect URI.
	AllowedOrigins []string
}

// Guard enforces same-origin on state-changing requests.
type Guard struct {
	trustProxy bool
	allowed    []Origin
}

// NewGuard parses the configured origins. Empty entries are skipped.
func NewGuard(cfg Config) (*Guard, error) {
	g := &Guard{trustProxy: cfg.TrustProxy}
	for _, raw := range cfg.AllowedOrigins {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		o, err := ParseOrigin(raw)
		if err != nil {
			return nil, apperrors.InvalidConfig("csrf.allowed_origins", fmt.Sprintf("%q is not an origin", raw))
		}
		g.allowed = append(g.allowed, o)
	}
	return g, nil
}

// TrustProxy reports whether forwarded headers are honored.
func (g *Guard) TrustProxy() bool { return g.trustProxy }

// ServerOrigin returns the origin the request was addressed to. The boolean
// is false when the request carries no usable host.
func (g *Guard) ServerOrigin(r *http.Request) (Origin, bool) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	forwardedPort := ""
	if g.trustProxy {
		if v := firstValue(r.Header.Get("X-Forwarded-Proto")); v != "" {
			scheme = strings.ToLower(v)
		}
		if v := firstValue(r.Header.Get("X-Forwarded-Host")); v != "" {
			host = v
		}
		forwardedPort = firstValue(r.Header.Get("X-Forwarded-Port"))
	}
	if host == "" {
		return Origin{}, false
	}
	o, err := ParseOrigin(scheme + "://" + host)
	if err != nil {
		return Origin{}, false
	}
	if forwardedPort != "" {
		n, err := strconv.Atoi(forwardedPort)
		if err != nil || n <= 0 || n > 65535 {
			return Origin{}, false
		}
		o.Port = n
	}
	return o, true
}

// Scheme returns the effective request scheme.
func (g *Guard) Scheme(r *http.Request) string {
	if o, ok := g.ServerOrigin(r); ok {
		return o.Scheme
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Check validates Origin, falling back to Referer. A request with neither
// header is rejected.
func (g *Guard) Check(r *http.Request) error {
	if origin := r.Header.Get("Origin"); origin != "" {
		return g.match(r, origin, ReasonOriginMismatch)
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		return g.match(r, referer, ReasonRefererMismatch)
	}
	return apperrors.CSRFViolation(ReasonMissingOrigin)
}

func (g *Guard) match(r *http.Request, raw, mismatch string) error {
	o, err := ParseOrigin(raw)
	if err != nil {
		return apperrors.CSRFViolation(ReasonInvalidOrigin).WithCause(err)
	}
	if g.allows(r, o) {
		return nil
	}
	return apperrors.CSRFViolation(mismatch).WithDetail("origin", o.String())
}

func (g *Guard) allows(r *http.Request, o Origin) bool {
	if server, ok := g.ServerOrigin(r); ok && server == o {
		return true
	}
	for _, a := range g.allowed {
		if a == o {
			return true
		}
	}
	return false
}

// Reason extracts the rejection reason from an error returned by Check.
func Reason(err error) string {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return ""
	}
	reason, _ := appErr.Details["reason"].(string)
	return reason
}

func firstValue(header string) string {
	if i := strings.IndexByte(header, ','); i >= 0 {
		header = header[:i]
	}
	return strings.TrimSpace(header)
}
