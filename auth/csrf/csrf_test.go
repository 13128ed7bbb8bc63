package csrf

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/gustavlms/gustav/errors"
)

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		raw     string
		want    Origin
		wantErr bool
	}{
		{raw: "https://App.Example.org", want: Origin{"https", "app.example.org", 443}},
		{raw: "http://localhost:8100", want: Origin{"http", "localhost", 8100}},
		{raw: "HTTP://Example.org/path?q=1", want: Origin{"http", "example.org", 80}},
		{raw: "https://example.org:443/x", want: Origin{"https", "example.org", 443}},
		{raw: "https://[::1]:8443", want: Origin{"https", "::1", 8443}},
		{raw: "", wantErr: true},
		{raw: "null", wantErr: true},
		{raw: "example.org", wantErr: true},
		{raw: "ftp://example.org", wantErr: true},
		{raw: "https://", wantErr: true},
		{raw: "https://example.org:99999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseOrigin(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestOriginString(t *testing.T) {
	if s := (Origin{"https", "example.org", 443}).String(); s != "https://example.org" {
		t.Errorf("got %q", s)
	}
	if s := (Origin{"http", "localhost", 8100}).String(); s != "http://localhost:8100" {
		t.Errorf("got %q", s)
	}
}

func TestRequiresCheck(t *testing.T) {
	for _, m := range []string{"POST", "PUT", "PATCH", "DELETE"} {
		if !RequiresCheck(m) {
			t.Errorf("%s should require a check", m)
		}
	}
	for _, m := range []string{"GET", "HEAD", "OPTIONS", "TRACE"} {
		if RequiresCheck(m) {
			t.Errorf("%s should not require a check", m)
		}
	}
}

func TestNewGuard_InvalidOrigin(t *testing.T) {
	_, err := NewGuard(Config{AllowedOrigins: []string{"not an origin"}})
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Fatalf("expected invalid_config, got %v", err)
	}
}

func TestServerOrigin(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		host       string
		tls        bool
		headers    map[string]string
		want       Origin
	}{
		{name: "plain host", host: "app.local:8100", want: Origin{"http", "app.local", 8100}},
		{name: "tls", host: "app.local", tls: true, want: Origin{"https", "app.local", 443}},
		{
			name: "forwarded ignored without trust", host: "internal:8000",
			headers: map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "app.example.org"},
			want:    Origin{"http", "internal", 8000},
		},
		{
			name: "forwarded honored with trust", trustProxy: true, host: "internal:8000",
			headers: map[string]string{"X-Forwarded-Proto": "https, http", "X-Forwarded-Host": "App.Example.org, internal"},
			want:    Origin{"https", "app.example.org", 443},
		},
		{
			name: "forwarded port overrides", trustProxy: true, host: "internal:8000",
			headers: map[string]string{"X-Forwarded-Proto": "https", "X-Forwarded-Host": "app.example.org", "X-Forwarded-Port": "8443"},
			want:    Origin{"https", "app.example.org", 8443},
		},
		{
			name: "forwarded host with port", trustProxy: true, host: "internal:8000",
			headers: map[string]string{"X-Forwarded-Proto": "http", "X-Forwarded-Host": "app.local:8100"},
			want:    Origin{"http", "app.local", 8100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGuard(Config{TrustProxy: tt.trustProxy})
			if err != nil {
				t.Fatal(err)
			}
			r := httptest.NewRequest(http.MethodPost, "/x", http.NoBody)
			r.Host = tt.host
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, ok := g.ServerOrigin(r)
			if !ok {
				t.Fatal("expected a server origin")
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	g, err := NewGuard(Config{AllowedOrigins: []string{"https://app.example.org", ""}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		origin  string
		referer string
		reason  string
	}{
		{name: "same origin", origin: "http://app.local:8100"},
		{name: "trailing slash", origin: "http://app.local:8100/"},
		{name: "configured origin", origin: "https://APP.example.org:443"},
		{name: "referer fallback", referer: "http://app.local:8100/courses/1"},
		{name: "origin wins over referer", origin: "https://evil.example", referer: "http://app.local:8100/", reason: ReasonOriginMismatch},
		{name: "cross origin", origin: "https://evil.example", reason: ReasonOriginMismatch},
		{name: "port mismatch", origin: "http://app.local:8101", reason: ReasonOriginMismatch},
		{name: "scheme mismatch", origin: "https://app.local:8100", reason: ReasonOriginMismatch},
		{name: "cross referer", referer: "https://evil.example/page", reason: ReasonRefererMismatch},
		{name: "null origin", origin: "null", reason: ReasonInvalidOrigin},
		{name: "garbage referer", referer: "::::", reason: ReasonInvalidOrigin},
		{name: "neither header", reason: ReasonMissingOrigin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/submissions", http.NoBody)
			r.Host = "app.local:8100"
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				r.Header.Set("Referer", tt.referer)
			}
			err := g.Check(r)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			if !apperrors.HasCode(err, apperrors.ErrCodeCSRFViolation) {
				t.Fatalf("expected csrf_violation, got %v", err)
			}
			if got := Reason(err); got != tt.reason {
				t.Errorf("reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestCheck_TrustProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/logout", http.NoBody)
	r.Host = "gustav:8000"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "app.example.org")
	r.Header.Set("Origin", "https://app.example.org")

	strict, _ := NewGuard(Config{})
	if err := strict.Check(r); Reason(err) != ReasonOriginMismatch {
		t.Fatalf("without trust proxy: expected origin_mismatch, got %v", err)
	}
	trusting, _ := NewGuard(Config{TrustProxy: true})
	if err := trusting.Check(r); err != nil {
		t.Fatalf("with trust proxy: expected pass, got %v", err)
	}
}
