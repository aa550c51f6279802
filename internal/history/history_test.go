package history

import (
	"fmt"
	"testing"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

func envelope(i int) wire.Envelope {
	return wire.Envelope{
		ID:     fmt.Sprintf("env-%d", i),
		From:   fmt.Sprintf("agent-%d", i%3),
		TaskID: fmt.Sprintf("task-%d", i%2),
		Intent: wire.DefaultIntent,
	}
}

func TestNewRing_DefaultCapacity(t *testing.T) {
	r := NewRing(0)
	if r.Cap() != DefaultCapacity {
		t.Errorf("Expected capacity %d, got %d", DefaultCapacity, r.Cap())
	}
	if r.Len() != 0 {
		t.Errorf("Expected empty ring, got %d entries", r.Len())
	}
}

func TestRing_AppendKeepsOrder(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 3; i++ {
		r.Append(envelope(i))
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	for i, env := range all {
		if env.ID != fmt.Sprintf("env-%d", i) {
			t.Errorf("Expected env-%d at position %d, got %s", i, i, env.ID)
		}
	}
}

func TestRing_EvictsOldestWhenFull(t *testing.T) {
	r := NewRing(4)
	for i := 0; i < 5; i++ {
		r.Append(envelope(i))
	}

	if r.Len() != 4 {
		t.Fatalf("Expected size to stay at capacity 4, got %d", r.Len())
	}

	all := r.All()
	if all[0].ID != "env-1" {
		t.Errorf("Expected oldest entry env-1 after eviction, got %s", all[0].ID)
	}
	if all[3].ID != "env-4" {
		t.Errorf("Expected newest entry env-4, got %s", all[3].ID)
	}
	for _, env := range all {
		if env.ID == "env-0" {
			t.Error("Expected env-0 to be evicted")
		}
	}
	if r.Total() != 5 {
		t.Errorf("Expected total 5, got %d", r.Total())
	}
}

func TestRing_NeverExceedsCapacity(t *testing.T) {
	r := NewRing(10)
	for i := 0; i < 1000; i++ {
		r.Append(envelope(i))
		if r.Len() > 10 {
			t.Fatalf("Ring grew beyond capacity: %d", r.Len())
		}
	}
}

func TestRing_RecentLimit(t *testing.T) {
	r := NewRing(500)
	for i := 0; i < 300; i++ {
		r.Append(envelope(i))
	}

	recent := r.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("Expected 5 entries, got %d", len(recent))
	}
	if recent[0].ID != "env-295" || recent[4].ID != "env-299" {
		t.Errorf("Expected env-295..env-299, got %s..%s", recent[0].ID, recent[4].ID)
	}

	if got := len(r.Recent(0)); got != 300 {
		t.Errorf("Expected non-positive limit to return all 300, got %d", got)
	}
	if got := len(r.Recent(1000)); got != 300 {
		t.Errorf("Expected oversized limit to clamp to 300, got %d", got)
	}
}

func TestRing_QueryFiltersNewestFirstThenChronological(t *testing.T) {
	r := NewRing(100)
	for i := 0; i < 20; i++ {
		r.Append(envelope(i))
	}

	got := r.Query(wire.HistoryQuery{AgentID: "agent-0", Limit: 3})
	if len(got) != 3 {
		t.Fatalf("Expected 3 matches, got %d", len(got))
	}
	// agent-0 sent env-0, 3, 6, 9, 12, 15, 18; the newest three are 12, 15, 18
	want := []string{"env-12", "env-15", "env-18"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, got[i].ID)
		}
	}
}

func TestRing_QueryMatchesRecipient(t *testing.T) {
	r := NewRing(10)
	r.Append(wire.Envelope{ID: "x", From: "a", To: "b"})
	r.Append(wire.Envelope{ID: "y", From: "a"})

	got := r.Query(wire.HistoryQuery{AgentID: "b"})
	if len(got) != 1 || got[0].ID != "x" {
		t.Errorf("Expected only envelope x for recipient b, got %v", got)
	}
}

func TestRing_QueryCombinedFilters(t *testing.T) {
	r := NewRing(10)
	r.Append(wire.Envelope{ID: "1", From: "a", TaskID: "t", Intent: "plan"})
	r.Append(wire.Envelope{ID: "2", From: "a", TaskID: "t", Intent: "review"})
	r.Append(wire.Envelope{ID: "3", From: "b", TaskID: "t", Intent: "plan"})

	got := r.Query(wire.HistoryQuery{AgentID: "a", TaskID: "t", Intent: "plan"})
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("Expected only envelope 1, got %v", got)
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing(3)
	r.Append(envelope(1))
	r.Reset()

	if r.Len() != 0 {
		t.Errorf("Expected empty ring after reset, got %d", r.Len())
	}
	r.Append(envelope(2))
	if all := r.All(); len(all) != 1 || all[0].ID != "env-2" {
		t.Errorf("Expected ring to be reusable after reset, got %v", all)
	}
}
