// Package history keeps the most recent accepted envelopes in a fixed-size
// circular buffer.
//
// The buffer is not safe for concurrent use. It is owned by the bridge loop,
// which serializes every append and query.
package history

import (
	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

// DefaultCapacity is the number of envelopes kept when no capacity is configured
const DefaultCapacity = 500

// Ring is a fixed-capacity envelope log. Appending to a full ring overwrites
// the oldest entry.
type Ring struct {
	entries  []wire.Envelope
	capacity int
	// next is the slot the next Append writes to
	next int
	size int
	// total counts every envelope ever appended
	total uint64
}

// NewRing creates a ring holding at most capacity envelopes
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{
		entries:  make([]wire.Envelope, capacity),
		capacity: capacity,
	}
}

// Append records an envelope, evicting the oldest one once full
func (r *Ring) Append(env wire.Envelope) {
	r.entries[r.next] = env
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	r.total++
}

// Len returns the number of envelopes currently held
func (r *Ring) Len() int {
	return r.size
}

// Cap returns the configured capacity
func (r *Ring) Cap() int {
	return r.capacity
}

// Total returns the number of envelopes ever appended
func (r *Ring) Total() uint64 {
	return r.total
}

// at returns the i-th envelope counting from the oldest (0) to the newest (Len-1)
func (r *Ring) at(i int) *wire.Envelope {
	oldest := (r.next - r.size + r.capacity) % r.capacity
	return &r.entries[(oldest+i)%r.capacity]
}

// All returns every held envelope, oldest first
func (r *Ring) All() []wire.Envelope {
	result := make([]wire.Envelope, r.size)
	for i := 0; i < r.size; i++ {
		result[i] = *r.at(i)
	}
	return result
}

// Recent returns the newest min(limit, Len) envelopes in chronological order.
// A non-positive limit returns everything.
func (r *Ring) Recent(limit int) []wire.Envelope {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	result := make([]wire.Envelope, limit)
	start := r.size - limit
	for i := 0; i < limit; i++ {
		result[i] = *r.at(start + i)
	}
	return result
}

// Query returns up to q.Limit matching envelopes in chronological order.
// Without filters it takes the Recent fast path. With filters it walks from
// newest to oldest and stops as soon as the limit is reached.
func (r *Ring) Query(q wire.HistoryQuery) []wire.Envelope {
	if !q.HasFilter() {
		return r.Recent(q.Limit)
	}

	limit := q.Limit
	if limit <= 0 || limit > r.size {
		limit = r.size
	}

	matched := make([]wire.Envelope, 0, min(limit, 16))
	for i := r.size - 1; i >= 0 && len(matched) < limit; i-- {
		env := r.at(i)
		if q.Matches(env) {
			matched = append(matched, *env)
		}
	}

	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched
}

// Each calls fn for every held envelope, oldest first
func (r *Ring) Each(fn func(env *wire.Envelope)) {
	for i := 0; i < r.size; i++ {
		fn(r.at(i))
	}
}

// Reset drops all entries
func (r *Ring) Reset() {
	clear(r.entries)
	r.next = 0
	r.size = 0
}
