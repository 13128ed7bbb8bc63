package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gustavlms/gustav/auth/oidc"
	"github.com/gustavlms/gustav/auth/session"
	"github.com/gustavlms/gustav/bootstrap"
	"github.com/gustavlms/gustav/config"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
)

const (
	testRealm  = "gustav"
	testClient = "gustav-web"
	appOrigin  = "https://app.test"
)

// keycloak fakes the realm endpoints the service calls server-side.
type keycloak struct {
	t   *testing.T
	srv *httptest.Server
	key *rsa.PrivateKey

	mu    sync.Mutex
	nonce string
}

func newKeycloak(t *testing.T) *keycloak {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	kc := &keycloak{t: t, key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/certs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	mux.HandleFunc("/realms/"+testRealm+"/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_request"}`))
			return
		}
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(oidc.TokenSet{
			AccessToken: "access",
			TokenType:   "Bearer",
			IDToken:     kc.idToken(),
		})
	})
	kc.srv = httptest.NewServer(mux)
	t.Cleanup(kc.srv.Close)
	return kc
}

func (kc *keycloak) setNonce(n string) {
	kc.mu.Lock()
	kc.nonce = n
	kc.mu.Unlock()
}

func (kc *keycloak) idToken() string {
	kc.mu.Lock()
	nonce := kc.nonce
	kc.mu.Unlock()

	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, &oidc.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    kc.srv.URL + "/realms/" + testRealm,
			Subject:   "user-42",
			Audience:  jwt.ClaimStrings{testClient},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
		Nonce:       nonce,
		Email:       "grace@school.test",
		Name:        "Grace Hopper",
		RealmAccess: oidc.RealmAccess{Roles: []string{"teacher", "uma_authorization"}},
	})
	tok.Header["kid"] = "k1"
	raw, err := tok.SignedString(kc.key)
	if err != nil {
		kc.t.Fatalf("sign: %v", err)
	}
	return raw
}

func testConfig(kc *keycloak) *Config {
	return &Config{
		ServiceConfig: config.ServiceConfig{Name: "gustav", Environment: "test"},
		OIDC: oidc.Config{
			BaseURL:     kc.srv.URL,
			Realm:       testRealm,
			ClientID:    testClient,
			RedirectURI: appOrigin + "/auth/callback",
		},
	}
}

// start builds the service and starts every component except the HTTP
// listener; requests go straight to the server handler.
func start(t *testing.T, cfg *Config) *Gustav {
	t.Helper()
	g, err := New(context.Background(), cfg, bootstrap.WithLogger(logger.NewNop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for _, name := range g.App.Components.Names() {
		if name == "http-server" {
			continue
		}
		c := g.App.Components.Get(name)
		if err := c.Start(ctx); err != nil {
			t.Fatalf("start %s: %v", name, err)
		}
		t.Cleanup(func() { _ = c.Stop(context.Background()) })
	}
	return g
}

func serve(g *Gustav, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.Server.Handler().ServeHTTP(w, req)
	return w
}

func TestLoginFlowEndToEnd(t *testing.T) {
	kc := newKeycloak(t)
	g := start(t, testConfig(kc))

	// Anonymous navigation is sent to login with the path preserved.
	w := serve(g, httptest.NewRequest(http.MethodGet, "/courses?tab=2", http.NoBody))
	if w.Code != http.StatusFound {
		t.Fatalf("anonymous status = %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/auth/login?redirect=%2Fcourses%3Ftab%3D2" {
		t.Errorf("Location = %q", got)
	}
	if w.Header().Get("X-Frame-Options") != "DENY" || w.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing server headers: %v", w.Header())
	}

	w = serve(g, httptest.NewRequest(http.MethodGet, "/auth/login?redirect=/courses", http.NoBody))
	if w.Code != http.StatusFound {
		t.Fatalf("login status = %d", w.Code)
	}
	authURL, _ := url.Parse(w.Header().Get("Location"))
	if !strings.HasPrefix(authURL.String(), kc.srv.URL+"/realms/gustav/protocol/openid-connect/auth") {
		t.Fatalf("authorize URL = %s", authURL)
	}
	kc.setNonce(authURL.Query().Get("nonce"))

	w = serve(g, httptest.NewRequest(http.MethodGet,
		"/auth/callback?code=good-code&state="+url.QueryEscape(authURL.Query().Get("state")), http.NoBody))
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/courses" {
		t.Fatalf("callback = %d %q %s", w.Code, w.Header().Get("Location"), w.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("no session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)
	req.AddCookie(cookie)
	w = serve(g, req)
	if w.Code != http.StatusOK {
		t.Fatalf("/api/me = %d %s", w.Code, w.Body.String())
	}
	var me struct {
		Sub   string   `json:"sub"`
		Roles []string `json:"roles"`
		Name  string   `json:"name"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &me); err != nil {
		t.Fatal(err)
	}
	if me.Sub != "user-42" || me.Name != "Grace Hopper" || len(me.Roles) != 1 || me.Roles[0] != "teacher" {
		t.Errorf("me = %+v", me)
	}

	// Cross-site logout is refused.
	req = httptest.NewRequest(http.MethodPost, "/auth/logout", http.NoBody)
	req.Header.Set("Origin", "https://evil.test")
	req.AddCookie(cookie)
	w = serve(g, req)
	if w.Code != http.StatusForbidden || w.Header().Get("X-CSRF-Reason") != "origin_mismatch" {
		t.Fatalf("cross-site logout = %d %q", w.Code, w.Header().Get("X-CSRF-Reason"))
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/logout", http.NoBody)
	req.Header.Set("Origin", appOrigin)
	req.AddCookie(cookie)
	w = serve(g, req)
	if w.Code != http.StatusFound {
		t.Fatalf("logout = %d %s", w.Code, w.Body.String())
	}
	logoutURL, _ := url.Parse(w.Header().Get("Location"))
	if logoutURL.Query().Get("post_logout_redirect_uri") != appOrigin+"/auth/logout/success" {
		t.Errorf("post_logout_redirect_uri = %q", logoutURL.Query().Get("post_logout_redirect_uri"))
	}
	if logoutURL.Query().Get("id_token_hint") == "" {
		t.Error("expected id_token_hint")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)
	req.AddCookie(cookie)
	if w = serve(g, req); w.Code != http.StatusUnauthorized {
		t.Errorf("/api/me after logout = %d", w.Code)
	}
}

func TestCallbackRejectsBadCode(t *testing.T) {
	kc := newKeycloak(t)
	g := start(t, testConfig(kc))

	w := serve(g, httptest.NewRequest(http.MethodGet, "/auth/login", http.NoBody))
	authURL, _ := url.Parse(w.Header().Get("Location"))

	w = serve(g, httptest.NewRequest(http.MethodGet,
		"/auth/callback?code=bad-code&state="+url.QueryEscape(authURL.Query().Get("state")), http.NoBody))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"token_exchange_failed"`) {
		t.Errorf("callback = %d %s", w.Code, w.Body.String())
	}
}

func TestLoginRateLimitBehindProxy(t *testing.T) {
	kc := newKeycloak(t)
	cfg := testConfig(kc)
	cfg.Web.TrustProxy = true
	cfg.Web.LoginRateLimit = 1
	g := start(t, cfg)

	fromProxy := func(target, client string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
		req.RemoteAddr = "10.0.0.2:443"
		req.Header.Set("X-Forwarded-For", client)
		return serve(g, req)
	}

	for i := 1; i <= 35; i++ {
		client := fmt.Sprintf("192.0.2.%d", i)
		w := fromProxy("/auth/login", client)
		if w.Code != http.StatusFound {
			t.Fatalf("login for %s = %d %s", client, w.Code, w.Body.String())
		}
		authURL, _ := url.Parse(w.Header().Get("Location"))
		w = fromProxy("/auth/callback?code=bad-code&state="+url.QueryEscape(authURL.Query().Get("state")), client)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("callback for %s = %d, want 400 (never rate limited)", client, w.Code)
		}
	}

	if w := fromProxy("/auth/login", "192.0.2.1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("second login within the window = %d, want 429", w.Code)
	}
	if w := fromProxy("/auth/callback?code=x&state=unknown", "192.0.2.1"); w.Code != http.StatusBadRequest {
		t.Errorf("callback over budget = %d, want 400", w.Code)
	}
}

func TestRedisAndSQLiteBackends(t *testing.T) {
	kc := newKeycloak(t)
	mr := miniredis.RunT(t)

	cfg := testConfig(kc)
	cfg.State.Backend = BackendRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.Session.Backend = BackendDB
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "sessions.db")
	cfg.Session.SweepInterval = time.Hour

	g := start(t, cfg)

	w := serve(g, httptest.NewRequest(http.MethodGet, "/auth/login", http.NoBody))
	authURL, _ := url.Parse(w.Header().Get("Location"))
	if len(mr.Keys()) != 1 {
		t.Fatalf("redis keys = %v, want one state", mr.Keys())
	}
	kc.setNonce(authURL.Query().Get("nonce"))

	w = serve(g, httptest.NewRequest(http.MethodGet,
		"/auth/callback?code=good-code&state="+url.QueryEscape(authURL.Query().Get("state")), http.NoBody))
	if w.Code != http.StatusFound {
		t.Fatalf("callback = %d %s", w.Code, w.Body.String())
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("state must be consumed, keys = %v", mr.Keys())
	}

	w = serve(g, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if w.Code != http.StatusServiceUnavailable && w.Code != http.StatusOK {
		t.Fatalf("/health = %d", w.Code)
	}
	for _, name := range []string{"redis", "database", "auth-flow"} {
		if !strings.Contains(w.Body.String(), `"`+name+`"`) {
			t.Errorf("/health misses %s: %s", name, w.Body.String())
		}
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			ServiceConfig: config.ServiceConfig{Name: "gustav", Environment: "test"},
			OIDC: oidc.Config{
				BaseURL:     "http://keycloak:8080",
				Realm:       testRealm,
				ClientID:    testClient,
				RedirectURI: appOrigin + "/auth/callback",
			},
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", nil, false},
		{"missing realm", func(c *Config) { c.OIDC.Realm = "" }, true},
		{"unknown session backend", func(c *Config) { c.Session.Backend = "file" }, true},
		{"redis without addr", func(c *Config) { c.State.Backend = BackendRedis }, true},
		{"db without dsn", func(c *Config) { c.Session.Backend = BackendDB }, true},
		{"privileged role", func(c *Config) {
			c.Session.Backend = BackendDB
			c.Database.DSN = "postgres://service_role:pw@db:5432/app"
		}, true},
		{"privileged role allowed", func(c *Config) {
			c.Session.Backend = BackendDB
			c.Database.DSN = "postgres://service_role:pw@db:5432/app"
			c.Session.AllowServiceRole = true
		}, false},
		{"limited role", func(c *Config) {
			c.Session.Backend = BackendDB
			c.Database.DSN = "postgres://gustav_app:pw@db:5432/app"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			cfg.ApplyDefaults()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.name == "privileged role" && !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
				t.Errorf("expected invalid_config, got %v", err)
			}
		})
	}
}

func TestConfigDerived(t *testing.T) {
	cfg := &Config{
		ServiceConfig: config.ServiceConfig{Name: "gustav", Environment: "test"},
		OIDC:          oidc.Config{RedirectURI: "https://lms.school.test/auth/callback"},
		Web:           WebConfig{AllowedOrigins: []string{"https://admin.school.test"}},
	}
	cfg.ApplyDefaults()

	if cfg.Web.BaseURL != "https://lms.school.test" {
		t.Errorf("BaseURL = %q", cfg.Web.BaseURL)
	}
	if cfg.Session.TTL() != time.Hour || cfg.State.TTL() != 900*time.Second {
		t.Errorf("ttl session=%v state=%v", cfg.Session.TTL(), cfg.State.TTL())
	}
	if cfg.Session.CookieName != session.DefaultCookieName || cfg.Session.Table != session.DefaultTable {
		t.Errorf("session = %+v", cfg.Session)
	}
	got := strings.Join(cfg.CSRFOrigins(), " ")
	want := "https://lms.school.test https://lms.school.test https://admin.school.test"
	if got != want {
		t.Errorf("CSRFOrigins = %q, want %q", got, want)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KC_BASE_URL", "http://keycloak:8080")
	t.Setenv("KC_REALM", "school")
	t.Setenv("REDIRECT_URI", "https://lms.school.test/auth/callback")
	t.Setenv("GUSTAV_TRUST_PROXY", "true")
	t.Setenv("SESSION_TTL_SECONDS", "1800")
	t.Setenv("ALLOWED_REGISTRATION_DOMAINS", "@school.test,@uni.test")

	cfg, err := Load(
		config.WithConfigFile(filepath.Join(dir, "none.yml")),
		config.WithEnvFile(filepath.Join(dir, "none.env")),
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.OIDC.Realm != "school" || cfg.OIDC.ClientID != testClient {
		t.Errorf("oidc = %+v", cfg.OIDC)
	}
	if !cfg.Web.TrustProxy {
		t.Error("expected trust proxy")
	}
	if cfg.Session.TTL() != 30*time.Minute {
		t.Errorf("session ttl = %v", cfg.Session.TTL())
	}
	if len(cfg.Web.AllowedRegistrationDomains) != 2 || cfg.Web.AllowedRegistrationDomains[1] != "@uni.test" {
		t.Errorf("domains = %v", cfg.Web.AllowedRegistrationDomains)
	}
	if _, ok := os.LookupEnv("KC_BASE_URL"); !ok {
		t.Error("environment must not be consumed")
	}
}
