package queue

import (
	"errors"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

const (
	// DefaultBatchSize bounds how many envelopes one Dequeue returns
	DefaultBatchSize = 10
	// DefaultMaxPerClient bounds the backlog kept for one recipient
	DefaultMaxPerClient = 1000
	// DefaultMaxTotal bounds the envelopes held across all recipients
	DefaultMaxTotal = 100000
)

var (
	// ErrBacklogFull is returned by Enqueue when the recipient's backlog is at its cap
	ErrBacklogFull = errors.New("recipient backlog full")
	// ErrQueueFull is returned by Enqueue when the queue as a whole is at its cap
	ErrQueueFull = errors.New("offline queue full")
)

// Offline holds envelopes for recipients that are not connected.
// A client id has an entry only while its backlog is non-empty.
// Not safe for concurrent use; the bridge loop owns it.
type Offline struct {
	pending      map[string][]wire.Envelope
	batchSize    int
	maxPerClient int
	maxTotal     int
	total        int
}

// New creates an offline queue
func New(batchSize, maxPerClient, maxTotal int) *Offline {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if maxPerClient <= 0 {
		maxPerClient = DefaultMaxPerClient
	}
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}
	return &Offline{
		pending:      make(map[string][]wire.Envelope),
		batchSize:    batchSize,
		maxPerClient: maxPerClient,
		maxTotal:     maxTotal,
	}
}

// Enqueue appends an envelope to clientID's backlog. The envelope is not
// stored when either the recipient's backlog or the whole queue is at its cap.
func (q *Offline) Enqueue(clientID string, env wire.Envelope) error {
	if len(q.pending[clientID]) >= q.maxPerClient {
		return ErrBacklogFull
	}
	if q.total >= q.maxTotal {
		return ErrQueueFull
	}
	q.pending[clientID] = append(q.pending[clientID], env)
	q.total++
	return nil
}

// Dequeue removes and returns up to BatchSize envelopes from the front of
// clientID's backlog. Returns nil when nothing is pending.
func (q *Offline) Dequeue(clientID string) []wire.Envelope {
	backlog, ok := q.pending[clientID]
	if !ok {
		return nil
	}

	n := min(q.batchSize, len(backlog))
	batch := make([]wire.Envelope, n)
	copy(batch, backlog[:n])

	if n == len(backlog) {
		delete(q.pending, clientID)
	} else {
		q.pending[clientID] = backlog[n:]
	}
	q.total -= n
	return batch
}

// Requeue puts a batch back at the front of clientID's backlog, keeping its
// order. Used when pushing a dequeued batch fails. Caps are not checked since
// the batch was just removed.
func (q *Offline) Requeue(clientID string, batch []wire.Envelope) {
	if len(batch) == 0 {
		return
	}
	merged := make([]wire.Envelope, 0, len(batch)+len(q.pending[clientID]))
	merged = append(merged, batch...)
	merged = append(merged, q.pending[clientID]...)
	q.pending[clientID] = merged
	q.total += len(batch)
}

// Discard drops clientID's backlog and returns how many envelopes were dropped
func (q *Offline) Discard(clientID string) int {
	n := len(q.pending[clientID])
	delete(q.pending, clientID)
	q.total -= n
	return n
}

// Pending returns the backlog length for clientID
func (q *Offline) Pending(clientID string) int {
	return len(q.pending[clientID])
}

// Has reports whether clientID has an entry
func (q *Offline) Has(clientID string) bool {
	_, ok := q.pending[clientID]
	return ok
}

// Total returns the number of envelopes across all backlogs
func (q *Offline) Total() int {
	return q.total
}

// Recipients returns the number of non-empty backlogs
func (q *Offline) Recipients() int {
	return len(q.pending)
}

// BatchSize returns the configured batch size
func (q *Offline) BatchSize() int {
	return q.batchSize
}

// Reset drops every backlog
func (q *Offline) Reset() {
	clear(q.pending)
	q.total = 0
}
