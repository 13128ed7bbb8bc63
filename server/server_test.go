package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/gustavlms/gustav/component"
	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/logger"
	"github.com/gustavlms/gustav/server/middleware"
)

func testConfig() Config {
	cfg := Config{Host: "127.0.0.1"}
	cfg.ApplyDefaults()
	cfg.Port = 0
	return cfg
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8100 || cfg.ReadHeaderTimeout != 5 || cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected port error")
	}
}

func TestHandler_AppliesMiddleware(t *testing.T) {
	s := New(testConfig(), logger.NewNop())
	s.Use(middleware.RequestID(), middleware.SecurityHeaders(middleware.SecurityHeadersConfig{}))
	s.GinEngine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))

	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(middleware.HeaderRequestID) == "" {
		t.Error("request id middleware not applied")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers not applied")
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     []component.Health
		wantStatus int
		wantBody   string
	}{
		{name: "no components", wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "degraded", health: []component.Health{{Name: "redis", Status: component.StatusDegraded}}, wantStatus: http.StatusOK, wantBody: "degraded"},
		{name: "unhealthy", health: []component.Health{{Name: "db", Status: component.StatusUnhealthy}}, wantStatus: http.StatusServiceUnavailable, wantBody: "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testConfig(), logger.NewNop())
			s.RegisterHealth("gustav", func(context.Context) []component.Health { return tt.health })

			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			var body struct {
				Status     string             `json:"status"`
				Service    string             `json:"service"`
				Components []component.Health `json:"components"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.wantBody || body.Service != "gustav" {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func TestHealth_Head(t *testing.T) {
	s := New(testConfig(), logger.NewNop())
	s.RegisterHealth("gustav", func(context.Context) []component.Health {
		return []component.Health{{Name: "database", Status: component.StatusUnhealthy}}
	})

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodHead, "/health", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable || rr.Body.Len() != 0 {
		t.Fatalf("HEAD /health = %d %q", rr.Code, rr.Body.String())
	}
}

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "app error", err: apperrors.StateNotFound(), wantStatus: http.StatusBadRequest, wantCode: "state_not_found"},
		{name: "sub-case", err: apperrors.AlgorithmNotAllowed("HS256"), wantStatus: http.StatusBadRequest, wantCode: "invalid_id_token"},
		{name: "plain error", err: io.EOF, wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			RespondWithError(c, tt.err)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			var body map[string]string
			_ = json.Unmarshal(rr.Body.Bytes(), &body)
			if body["error"] != tt.wantCode {
				t.Errorf("error = %q, want %q", body["error"], tt.wantCode)
			}
		})
	}
}

func TestComponentLifecycle(t *testing.T) {
	s := New(testConfig(), logger.NewNop())
	s.GinEngine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	comp := NewComponent(s)

	if comp.Health(context.Background()).Status != component.StatusUnhealthy {
		t.Fatal("expected unhealthy before start")
	}
	if err := comp.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = comp.Stop(context.Background()) })

	if comp.Health(context.Background()).Status != component.StatusHealthy {
		t.Fatal("expected healthy after start")
	}

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Errorf("body = %q", body)
	}
	if d := comp.Describe(); d.Type != "server" {
		t.Errorf("unexpected description %+v", d)
	}
}
