package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
)

// CodeChallengeMethodS256 is the only PKCE method Gustav sends.
const CodeChallengeMethodS256 = "S256"

// PKCE holds a PKCE (Proof Key for Code Exchange) challenge/verifier pair.
//   - CodeChallenge goes into the authorization URL
//   - CodeVerifier stays server-side and is sent in the token exchange
type PKCE struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// NewPKCE generates a new PKCE pair using the S256 method.
// The verifier is 32 random bytes, base64url-encoded (43 characters).
func NewPKCE() (*PKCE, error) {
	verifier, err := RandomToken(32)
	if err != nil {
		return nil, err
	}
	return &PKCE{
		CodeVerifier:        verifier,
		CodeChallenge:       S256Challenge(verifier),
		CodeChallengeMethod: CodeChallengeMethodS256,
	}, nil
}

// S256Challenge derives BASE64URL(SHA256(verifier)) without padding.
func S256Challenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// GenerateNonce creates a random nonce for ID token replay protection.
func GenerateNonce() (string, error) {
	return RandomToken(24)
}

// RandomToken returns n bytes from crypto/rand, base64url-encoded without padding.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
