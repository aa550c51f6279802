package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

func env(i int) wire.Envelope {
	return wire.Envelope{ID: fmt.Sprintf("env-%d", i), To: "agent-1"}
}

func TestNew_Defaults(t *testing.T) {
	q := New(0, 0, 0)
	if q.BatchSize() != DefaultBatchSize {
		t.Errorf("Expected batch size %d, got %d", DefaultBatchSize, q.BatchSize())
	}
	if q.maxPerClient != DefaultMaxPerClient {
		t.Errorf("Expected max per client %d, got %d", DefaultMaxPerClient, q.maxPerClient)
	}
}

func TestEnqueueDequeue_FIFO(t *testing.T) {
	q := New(10, 100, 0)
	for i := 0; i < 3; i++ {
		q.Enqueue("agent-1", env(i))
	}

	batch := q.Dequeue("agent-1")
	if len(batch) != 3 {
		t.Fatalf("Expected 3 envelopes, got %d", len(batch))
	}
	for i, e := range batch {
		if e.ID != fmt.Sprintf("env-%d", i) {
			t.Errorf("Expected env-%d at %d, got %s", i, i, e.ID)
		}
	}
}

func TestDequeue_BatchesAndRemovesEmptyEntry(t *testing.T) {
	q := New(10, 100, 0)
	for i := 0; i < 25; i++ {
		q.Enqueue("agent-1", env(i))
	}

	sizes := []int{}
	for q.Has("agent-1") {
		sizes = append(sizes, len(q.Dequeue("agent-1")))
	}

	if fmt.Sprint(sizes) != "[10 10 5]" {
		t.Errorf("Expected batches [10 10 5], got %v", sizes)
	}
	if q.Recipients() != 0 {
		t.Errorf("Expected no entries after drain, got %d", q.Recipients())
	}
	if q.Total() != 0 {
		t.Errorf("Expected total 0 after drain, got %d", q.Total())
	}
}

func TestDequeue_Empty(t *testing.T) {
	q := New(10, 100, 0)
	if batch := q.Dequeue("nobody"); batch != nil {
		t.Errorf("Expected nil batch, got %v", batch)
	}
}

func TestEnqueue_RespectsCap(t *testing.T) {
	q := New(10, 2, 0)

	if q.Enqueue("agent-1", env(0)) != nil || q.Enqueue("agent-1", env(1)) != nil {
		t.Fatal("Expected first two envelopes to be queued")
	}
	if err := q.Enqueue("agent-1", env(2)); !errors.Is(err, ErrBacklogFull) {
		t.Errorf("Expected ErrBacklogFull at cap, got %v", err)
	}
	if q.Pending("agent-1") != 2 {
		t.Errorf("Expected 2 pending, got %d", q.Pending("agent-1"))
	}
}

func TestEnqueue_RespectsTotalCap(t *testing.T) {
	q := New(10, 100, 3)

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(fmt.Sprintf("ghost-%d", i), env(i)); err != nil {
			t.Fatalf("Expected envelope %d to be queued, got %v", i, err)
		}
	}
	if err := q.Enqueue("ghost-3", env(3)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if q.Recipients() != 3 || q.Total() != 3 {
		t.Errorf("Expected 3 recipients holding 3 envelopes, got %d/%d", q.Recipients(), q.Total())
	}

	// draining one backlog frees room again
	q.Dequeue("ghost-0")
	if err := q.Enqueue("ghost-3", env(3)); err != nil {
		t.Errorf("Expected room after dequeue, got %v", err)
	}
}

func TestRequeue_RestoresFrontOrder(t *testing.T) {
	q := New(2, 100, 0)
	for i := 0; i < 4; i++ {
		q.Enqueue("agent-1", env(i))
	}

	batch := q.Dequeue("agent-1")
	q.Requeue("agent-1", batch)

	if q.Total() != 4 {
		t.Errorf("Expected total 4 after requeue, got %d", q.Total())
	}
	again := q.Dequeue("agent-1")
	if again[0].ID != "env-0" || again[1].ID != "env-1" {
		t.Errorf("Expected env-0, env-1 at the front, got %s, %s", again[0].ID, again[1].ID)
	}
}

func TestDiscard(t *testing.T) {
	q := New(10, 100, 0)
	q.Enqueue("agent-1", env(0))
	q.Enqueue("agent-1", env(1))
	q.Enqueue("agent-2", env(2))

	if n := q.Discard("agent-1"); n != 2 {
		t.Errorf("Expected 2 discarded, got %d", n)
	}
	if q.Has("agent-1") {
		t.Error("Expected agent-1 entry to be removed")
	}
	if q.Total() != 1 {
		t.Errorf("Expected total 1, got %d", q.Total())
	}
	if n := q.Discard("agent-1"); n != 0 {
		t.Errorf("Expected second discard to be a no-op, got %d", n)
	}
}

func TestReset(t *testing.T) {
	q := New(10, 100, 0)
	q.Enqueue("agent-1", env(0))
	q.Reset()

	if q.Total() != 0 || q.Recipients() != 0 {
		t.Errorf("Expected empty queue after reset, got total=%d recipients=%d", q.Total(), q.Recipients())
	}
}
