package oidc

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/observability"
	"github.com/gustavlms/gustav/resilience"
)

// allowedAlgs is fixed. It is never derived from the token or the JWK.
var allowedAlgs = []string{"RS256"}

// Verifier validates ID tokens issued by the configured realm.
type Verifier struct {
	issuer   string
	jwksURI  string
	clientID string
	skew     time.Duration
	keys     *JWKSCache
	now      func() time.Time
	log      *logger.Logger
	retry    resilience.RetryConfig
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock overrides the clock used for exp/iat checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// WithVerifierLogger sets the verifier logger.
func WithVerifierLogger(log *logger.Logger) VerifierOption {
	return func(v *Verifier) { v.log = log }
}

// NewVerifier creates a verifier for cfg's issuer and client id.
func NewVerifier(cfg Config, keys *JWKSCache, opts ...VerifierOption) *Verifier {
	cfg.ApplyDefaults()
	v := &Verifier{
		issuer:   cfg.IssuerURL(),
		jwksURI:  cfg.JWKSEndpoint(),
		clientID: cfg.ClientID,
		skew:     cfg.ClockSkew,
		keys:     keys,
		now:      time.Now,
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 50 * time.Millisecond,
			RetryIf:        func(err error) bool { return errors.Is(err, ErrJWKSFetch) },
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.log == nil {
		v.log = logger.NewNop()
	}
	v.log = v.log.WithComponent("oidc")
	return v
}

// VerifyIDToken checks signature, issuer, audience, expiry and issued-at and
// returns the claims. Every failure is an invalid_id_token AppError (or its
// algorithm_not_allowed sub-case) with the reason in the details.
func (v *Verifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*Claims, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanVerifyIDToken)
	defer span.End()
	span.SetAttributes(attribute.String(observability.AttrIssuer, v.issuer))

	claims, err := v.verify(ctx, rawIDToken)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			span.SetAttributes(attribute.String(observability.AttrErrorCode, string(appErr.Code)))
		}
		observability.SetSpanError(span, err)
		v.log.Warn("ID token rejected", logger.Fields(logger.FieldError, err.Error()))
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	header, err := decodeHeader(rawIDToken)
	if err != nil {
		return nil, apperrors.InvalidIDToken("malformed").WithCause(err)
	}
	if !isAllowedAlg(header.Alg) {
		return nil, apperrors.AlgorithmNotAllowed(header.Alg)
	}
	if header.Kid == "" {
		return nil, apperrors.InvalidIDToken(ErrMissingKID.Error())
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(allowedAlgs),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.skew),
		jwt.WithTimeFunc(v.now),
	)

	claims := &Claims{}
	_, err = parser.ParseWithClaims(rawIDToken, claims, func(*jwt.Token) (interface{}, error) {
		return v.signingKey(ctx, header.Kid)
	})
	if err != nil {
		return nil, apperrors.InvalidIDToken(rejectionReason(err)).WithCause(err)
	}
	if claims.Subject == "" {
		return nil, apperrors.InvalidIDToken("missing_sub")
	}
	return claims, nil
}

// signingKey resolves kid. A failed JWKS fetch is retried once with a forced
// refresh; unknown kids and invalid documents are not retried.
func (v *Verifier) signingKey(ctx context.Context, kid string) (interface{}, error) {
	return resilience.Retry(ctx, v.retry, func(attempt int) (interface{}, error) {
		key, err := v.keys.Key(ctx, v.issuer, v.jwksURI, kid, attempt > 1)
		if err != nil {
			return nil, err
		}
		return key, nil
	})
}

// CheckNonce binds the token to the login attempt. An empty expected nonce
// means none was stored and the claim is not checked.
func CheckNonce(claims *Claims, expected string) error {
	if expected == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(expected)) != 1 {
		return apperrors.InvalidNonce()
	}
	return nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrUnknownKID):
		return ErrUnknownKID.Error()
	case errors.Is(err, ErrJWKSFetch):
		return ErrJWKSFetch.Error()
	case errors.Is(err, ErrJWKSInvalid):
		return ErrJWKSInvalid.Error()
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "issued_in_future"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer_mismatch"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "audience_mismatch"
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return "missing_claim"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// decodeHeader reads the unverified JOSE header.
func decodeHeader(raw string) (*jwtHeader, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[0], "="))
	if err != nil {
		return nil, err
	}
	var h jwtHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func isAllowedAlg(alg string) bool {
	for _, a := range allowedAlgs {
		if a == alg {
			return true
		}
	}
	return false
}
