package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	apperrors "github.com/gustavlms/gustav/errors"
)

func newStaticServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConfig_Endpoints(t *testing.T) {
	cfg := Config{
		BaseURL:       "http://keycloak:8080/",
		PublicBaseURL: "https://id.school.test",
		Realm:         "gustav",
		ClientID:      "gustav-web",
		RedirectURI:   "https://app.school.test/auth/callback",
	}
	cfg.ApplyDefaults()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"issuer", cfg.IssuerURL(), "http://keycloak:8080/realms/gustav"},
		{"authorize", cfg.AuthorizationEndpoint(), "https://id.school.test/realms/gustav/protocol/openid-connect/auth"},
		{"token", cfg.TokenEndpoint(), "http://keycloak:8080/realms/gustav/protocol/openid-connect/token"},
		{"certs", cfg.JWKSEndpoint(), "http://keycloak:8080/realms/gustav/protocol/openid-connect/certs"},
		{"logout", cfg.EndSessionEndpoint(), "https://id.school.test/realms/gustav/protocol/openid-connect/logout"},
		{"reset", cfg.ResetCredentialsEndpoint(), "https://id.school.test/realms/gustav/login-actions/reset-credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	cfg.Scopes = []string{"profile"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when openid scope is missing")
	}
}

func TestClient_BuildAuthorizationURL(t *testing.T) {
	c := NewClient(Config{
		BaseURL:     "http://keycloak:8080",
		Realm:       "gustav",
		ClientID:    "gustav-web",
		RedirectURI: "https://app.test/auth/callback",
	})

	raw := c.BuildAuthorizationURL("st", "chal",
		WithNonce("n1"),
		WithAction(ActionRegister),
		WithLoginHint("ada@school.test"),
		WithExtraParam("state", "attacker"),
		WithExtraParam("ui_locales", "de"),
	)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/realms/gustav/protocol/openid-connect/auth" {
		t.Errorf("unexpected path %q", u.Path)
	}

	want := map[string]string{
		"response_type":         "code",
		"client_id":             "gustav-web",
		"redirect_uri":          "https://app.test/auth/callback",
		"scope":                 "openid",
		"state":                 "st",
		"code_challenge":        "chal",
		"code_challenge_method": "S256",
		"nonce":                 "n1",
		"kc_action":             "register",
		"login_hint":            "ada@school.test",
		"ui_locales":            "de",
	}
	q := u.Query()
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s: expected %q, got %q", k, v, got)
		}
	}
}

func TestClient_BuildAuthorizationURL_Minimal(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://kc", Realm: "r", ClientID: "c", RedirectURI: "https://a/cb"})
	q, _ := url.ParseQuery(strings.SplitN(c.BuildAuthorizationURL("s", "x"), "?", 2)[1])
	for _, k := range []string{"nonce", "kc_action", "login_hint"} {
		if q.Has(k) {
			t.Errorf("did not expect %s", k)
		}
	}
}

func TestClient_ExchangeCodeForTokens(t *testing.T) {
	idp := newFakeIdP(t)
	idp.tokenResp = func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		want := map[string]string{
			"grant_type":    "authorization_code",
			"code":          "the-code",
			"client_id":     testClientID,
			"redirect_uri":  "https://app.test/auth/callback",
			"code_verifier": "the-verifier",
		}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				t.Errorf("%s: expected %q, got %q", k, v, got)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TokenSet{AccessToken: "at", TokenType: "Bearer", IDToken: "idt", ExpiresIn: 300})
	}

	tokens, err := NewClient(idp.config()).ExchangeCodeForTokens(context.Background(), "the-code", "the-verifier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.IDToken != "idt" || tokens.AccessToken != "at" {
		t.Errorf("unexpected tokens %+v", tokens)
	}
}

func TestClient_ExchangeCodeForTokens_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantError string
	}{
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Code not valid"}`, "invalid_grant"},
		{"server error", http.StatusInternalServerError, `oops`, ""},
		{"missing id_token", http.StatusOK, `{"access_token":"at"}`, "missing_id_token"},
		{"garbage", http.StatusOK, `{not json`, "invalid_response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idp := newFakeIdP(t)
			idp.tokenResp = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}

			tokens, err := NewClient(idp.config()).ExchangeCodeForTokens(context.Background(), "c", "v")
			if tokens != nil {
				t.Error("partial tokens must not be returned")
			}
			if !apperrors.HasCode(err, apperrors.ErrCodeTokenExchangeFailed) {
				t.Fatalf("expected token_exchange_failed, got %v", err)
			}
			appErr, _ := apperrors.AsAppError(err)
			if got, _ := appErr.Details["error"].(string); got != tt.wantError {
				t.Errorf("expected idp error %q, got %q", tt.wantError, got)
			}
			if got, _ := appErr.Details["status"].(int); got != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, got)
			}
		})
	}
}

func TestClient_ExchangeCodeForTokens_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: base, Realm: "r", ClientID: "c", RedirectURI: "https://a/cb"})
	_, err := c.ExchangeCodeForTokens(context.Background(), "c", "v")
	if !apperrors.HasCode(err, apperrors.ErrCodeTokenExchangeFailed) {
		t.Fatalf("expected token_exchange_failed, got %v", err)
	}
}

func TestClient_LogoutAndResetURLs(t *testing.T) {
	c := NewClient(Config{
		BaseURL:       "http://keycloak:8080",
		PublicBaseURL: "https://id.test",
		Realm:         "gustav",
		ClientID:      "gustav-web",
		RedirectURI:   "https://app.test/auth/callback",
	})

	u, _ := url.Parse(c.EndSessionURL("https://app.test/auth/logout/success", "idt"))
	if u.Host != "id.test" {
		t.Errorf("logout must use the public host, got %q", u.Host)
	}
	q := u.Query()
	if q.Get("client_id") != "gustav-web" || q.Get("id_token_hint") != "idt" ||
		q.Get("post_logout_redirect_uri") != "https://app.test/auth/logout/success" {
		t.Errorf("unexpected logout query %v", q)
	}

	u, _ = url.Parse(c.EndSessionURL("https://app.test/auth/logout/success", ""))
	if u.Query().Has("id_token_hint") {
		t.Error("empty id_token_hint must be omitted")
	}

	if got := c.ResetCredentialsURL(""); got != "https://id.test/realms/gustav/login-actions/reset-credentials" {
		t.Errorf("unexpected reset URL %q", got)
	}
	u, _ = url.Parse(c.ResetCredentialsURL("ada@school.test"))
	if u.Query().Get("login_hint") != "ada@school.test" {
		t.Errorf("expected login_hint, got %v", u.Query())
	}
}
