// Package oidc is Gustav's OpenID Connect relying party for a Keycloak realm.
//
// It builds Authorization Code + PKCE (S256) redirects, exchanges codes at
// the token endpoint and verifies ID tokens against the realm's JWKS.
//
// # Verification
//
// The accepted signing algorithms are fixed to RS256. The token header's
// "alg" is only compared against that list; it never selects the algorithm.
// Keys are cached per issuer and refreshed when a token names an unknown
// "kid". Concurrent refreshes for the same issuer share one HTTP request.
//
// # Usage
//
//	client := oidc.NewClient(cfg, oidc.WithLogger(log))
//	pkce, _ := oidc.NewPKCE()
//	url := client.BuildAuthorizationURL(state, pkce.CodeChallenge, oidc.WithNonce(nonce))
//
//	tokens, err := client.ExchangeCodeForTokens(ctx, code, pkce.CodeVerifier)
//	claims, err := verifier.VerifyIDToken(ctx, tokens.IDToken)
package oidc
