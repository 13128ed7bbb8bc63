package component

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// mockComponent implements Component for testing.
type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	health     Health
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) Health {
	return m.health
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&mockComponent{name: "redis"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&mockComponent{name: "redis"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "database"})

	if got := r.Get("database"); got == nil || got.Name() != "database" {
		t.Fatalf("expected registered component, got %v", got)
	}
	if got := r.Get("missing"); got != nil {
		t.Errorf("expected nil for unknown component, got %v", got)
	}
}

func TestStartStopOrder(t *testing.T) {
	var started, stopped []string
	r := NewRegistry(nil)
	for _, name := range []string{"redis", "database", "http-server"} {
		_ = r.Register(&mockComponent{name: name, startOrder: &started, stopOrder: &stopped})
	}

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}

	if strings.Join(started, ",") != "redis,database,http-server" {
		t.Errorf("unexpected start order %v", started)
	}
	if strings.Join(stopped, ",") != "http-server,database,redis" {
		t.Errorf("unexpected stop order %v", stopped)
	}
}

func TestStartAllFailureStopsOnlyStarted(t *testing.T) {
	var started, stopped []string
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "redis", startOrder: &started, stopOrder: &stopped})
	_ = r.Register(&mockComponent{name: "database", startErr: fmt.Errorf("refused"), startOrder: &started, stopOrder: &stopped})
	_ = r.Register(&mockComponent{name: "http-server", startOrder: &started, stopOrder: &stopped})

	err := r.StartAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database") {
		t.Fatalf("expected database start error, got %v", err)
	}
	_ = r.StopAll(context.Background())

	if strings.Join(stopped, ",") != "redis" {
		t.Errorf("expected only redis to be stopped, got %v", stopped)
	}
}

func TestStopAllCollectsErrors(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "a", stopErr: fmt.Errorf("boom")})
	_ = r.StartAll(context.Background())
	if err := r.StopAll(context.Background()); err == nil {
		t.Error("expected shutdown error")
	}
}

func TestHealthAll(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "redis", health: Health{Name: "redis", Status: StatusHealthy}})
	_ = r.Register(&mockComponent{name: "database", health: Health{Name: "database", Status: StatusUnhealthy, Message: "ping failed"}})

	results := r.HealthAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Status != StatusUnhealthy {
		t.Errorf("expected database unhealthy, got %s", results[1].Status)
	}
}

func TestNames(t *testing.T) {
	r := NewRegistry(nil)
	for _, n := range []string{"database", "redis", "http-server"} {
		_ = r.Register(&mockComponent{name: n})
	}
	if got := fmt.Sprint(r.Names()); got != "[database redis http-server]" {
		t.Errorf("Names() = %s", got)
	}
}
