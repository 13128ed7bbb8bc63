package oidc

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testRealm    = "gustav"
	testClientID = "gustav-web"
)

// fakeIdP serves a realm's certs and token endpoints.
type fakeIdP struct {
	t   *testing.T
	srv *httptest.Server

	mu        sync.Mutex
	keys      map[string]*rsa.PrivateKey
	failJWKS  int
	jwkAlg    string
	jwksHits  atomic.Int32
	jwksGate  chan struct{}
	tokenResp func(w http.ResponseWriter, r *http.Request)
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{t: t, keys: make(map[string]*rsa.PrivateKey)}
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/certs", idp.serveJWKS)
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if idp.tokenResp == nil {
			http.Error(w, "no token handler", http.StatusInternalServerError)
			return
		}
		idp.tokenResp(w, r)
	})
	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func (idp *fakeIdP) config() Config {
	cfg := Config{
		BaseURL:     idp.srv.URL,
		Realm:       testRealm,
		ClientID:    testClientID,
		RedirectURI: "https://app.test/auth/callback",
	}
	cfg.ApplyDefaults()
	return cfg
}

func (idp *fakeIdP) issuer() string {
	return idp.srv.URL + "/realms/" + testRealm
}

func (idp *fakeIdP) addKey(kid string) *rsa.PrivateKey {
	idp.t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		idp.t.Fatalf("generate key: %v", err)
	}
	idp.mu.Lock()
	idp.keys[kid] = key
	idp.mu.Unlock()
	return key
}

func (idp *fakeIdP) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	idp.jwksHits.Add(1)
	if idp.jwksGate != nil {
		<-idp.jwksGate
	}

	idp.mu.Lock()
	defer idp.mu.Unlock()
	alg := idp.jwkAlg
	if alg == "" {
		alg = "RS256"
	}
	if idp.failJWKS > 0 {
		idp.failJWKS--
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	type jwkJSON struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		Alg string `json:"alg"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	set := struct {
		Keys []jwkJSON `json:"keys"`
	}{}
	for kid, key := range idp.keys {
		set.Keys = append(set.Keys, jwkJSON{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: alg,
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(set)
}

// sign issues an RS256 ID token with sensible defaults that mutate can override.
func (idp *fakeIdP) sign(kid string, mutate func(*Claims)) string {
	idp.t.Helper()
	return idp.signWith(jwt.SigningMethodRS256, kid, mutate)
}

// signWith is sign with an explicit RSA signing method.
func (idp *fakeIdP) signWith(method jwt.SigningMethod, kid string, mutate func(*Claims)) string {
	idp.t.Helper()
	idp.mu.Lock()
	key := idp.keys[kid]
	idp.mu.Unlock()
	if key == nil {
		idp.t.Fatalf("no key %q", kid)
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    idp.issuer(),
			Subject:   "user-123",
			Audience:  jwt.ClaimStrings{testClientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		Nonce: "nonce-abc",
		Email: "ada@school.test",
		Name:  "Ada Lovelace",
		RealmAccess: RealmAccess{
			Roles: []string{"offline_access", "teacher"},
		},
	}
	if mutate != nil {
		mutate(claims)
	}

	tok := jwt.NewWithClaims(method, claims)
	tok.Header["kid"] = kid
	raw, err := tok.SignedString(key)
	if err != nil {
		idp.t.Fatalf("sign token: %v", err)
	}
	return raw
}
