package registry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

type nopTransport struct{ closed bool }

func (t *nopTransport) Send(*wire.Message) error { return nil }
func (t *nopTransport) Ping() error              { return nil }
func (t *nopTransport) Closed() bool             { return t.closed }
func (t *nopTransport) Close() error             { t.closed = true; return nil }

func meta(id string) wire.ClientMetadata {
	return wire.ClientMetadata{ID: id, Role: "agent", ConnectionTime: time.Unix(1000, 0)}
}

func TestNew_DefaultMax(t *testing.T) {
	r := New(0)
	if r.Max() != DefaultMaxClients {
		t.Errorf("Expected max %d, got %d", DefaultMaxClients, r.Max())
	}
}

func TestAdd_AndGet(t *testing.T) {
	r := New(10)
	if _, err := r.Add(meta("agent-1"), &nopTransport{}); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}

	e, ok := r.Get("agent-1")
	if !ok {
		t.Fatal("Expected agent-1 to be registered")
	}
	if e.Meta.Role != "agent" {
		t.Errorf("Expected role agent, got %s", e.Meta.Role)
	}
	if r.Role("agent-1") != "agent" {
		t.Errorf("Expected Role lookup to return agent")
	}
	if r.Role("missing") != "" {
		t.Errorf("Expected empty role for unknown id")
	}
}

func TestAdd_Capacity(t *testing.T) {
	r := New(2)
	r.Add(meta("a"), &nopTransport{})
	r.Add(meta("b"), &nopTransport{})

	_, err := r.Add(meta("c"), &nopTransport{})
	if !errors.Is(err, ErrFull) {
		t.Errorf("Expected ErrFull, got %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Expected size to stay 2, got %d", r.Len())
	}
}

func TestAdd_ReplacesExistingID(t *testing.T) {
	r := New(1)
	first := &nopTransport{}
	r.Add(meta("a"), first)

	replaced, err := r.Add(meta("a"), &nopTransport{})
	if err != nil {
		t.Fatalf("Expected re-registration at capacity to succeed, got %v", err)
	}
	if replaced == nil || replaced.Transport != first {
		t.Error("Expected the old entry to be returned")
	}
	if r.Len() != 1 {
		t.Errorf("Expected 1 client, got %d", r.Len())
	}
	if len(r.Snapshot()) != 1 {
		t.Errorf("Expected snapshot to hold one entry, got %d", len(r.Snapshot()))
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := New(10)
	r.Add(meta("a"), &nopTransport{})

	if _, ok := r.Remove("a"); !ok {
		t.Error("Expected first remove to succeed")
	}
	if _, ok := r.Remove("a"); ok {
		t.Error("Expected second remove to be a no-op")
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

func TestSnapshot_RegistrationOrder(t *testing.T) {
	r := New(10)
	for i := 0; i < 5; i++ {
		r.Add(meta(fmt.Sprintf("agent-%d", i)), &nopTransport{})
	}
	r.Remove("agent-2")

	var ids []string
	for _, e := range r.Snapshot() {
		ids = append(ids, e.Meta.ID)
	}
	if fmt.Sprint(ids) != "[agent-0 agent-1 agent-3 agent-4]" {
		t.Errorf("Unexpected order: %v", ids)
	}
}

func TestTouch(t *testing.T) {
	r := New(10)
	r.Add(meta("a"), &nopTransport{})

	now := time.Unix(2000, 0)
	if err := r.Touch("a", now); err != nil {
		t.Fatalf("Failed to touch: %v", err)
	}
	e, _ := r.Get("a")
	if !e.Meta.LastSeen.Equal(now) {
		t.Errorf("Expected lastSeen %v, got %v", now, e.Meta.LastSeen)
	}

	if err := r.Touch("missing", now); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestList_ComputesUptime(t *testing.T) {
	r := New(10)
	r.Add(meta("a"), &nopTransport{})

	list := r.List(time.Unix(1060, 0))
	if len(list) != 1 {
		t.Fatalf("Expected 1 client, got %d", len(list))
	}
	if list[0].UptimeSeconds != 60 {
		t.Errorf("Expected uptime 60s, got %v", list[0].UptimeSeconds)
	}
}
