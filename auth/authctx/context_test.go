package authctx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestContextRoundTrip(t *testing.T) {
	p := &Principal{Subject: "user-1", Roles: []string{"teacher"}, DisplayName: "Frau Lehmann"}
	ctx := WithPrincipal(context.Background(), p)

	got, ok := FromContext(ctx)
	if !ok || got != p {
		t.Fatalf("FromContext = %v, %v", got, ok)
	}
	if MustFromContext(ctx).Subject != "user-1" {
		t.Error("MustFromContext returned wrong principal")
	}
}

func TestFromContext_Missing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
	if _, err := FromContextOrError(context.Background()); !errors.Is(err, ErrNoPrincipal) {
		t.Fatalf("expected ErrNoPrincipal, got %v", err)
	}
	var nilPrincipal *Principal
	if _, ok := FromContext(WithPrincipal(context.Background(), nilPrincipal)); ok {
		t.Fatal("nil principal must not count as present")
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustFromContext(context.Background())
}

func TestHasRole(t *testing.T) {
	p := &Principal{Roles: []string{"student", "admin"}}
	if !p.HasRole("admin") || p.HasRole("teacher") {
		t.Errorf("HasRole mismatch for %v", p.Roles)
	}
	var nilPrincipal *Principal
	if nilPrincipal.HasRole("student") {
		t.Error("nil principal has no roles")
	}
}

func TestGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/me", http.NoBody)

	if _, ok := FromGin(c); ok {
		t.Fatal("expected no principal before SetGin")
	}
	p := &Principal{Subject: "user-2"}
	SetGin(c, p)

	if got := MustFromGin(c); got != p {
		t.Errorf("MustFromGin = %v", got)
	}
	if got, ok := FromContext(c.Request.Context()); !ok || got != p {
		t.Error("SetGin must also update the request context")
	}
}
