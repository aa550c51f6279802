package registry

import (
	"errors"
	"time"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

// DefaultMaxClients is the connected-client cap used when none is configured
const DefaultMaxClients = 1000

var (
	// ErrFull is returned by Add when the registry is at capacity
	ErrFull = errors.New("registry full")
	// ErrNotFound is returned for unknown client ids
	ErrNotFound = errors.New("client not found")
)

// Transport is the push side of a client connection. Implementations must
// not block: Send and Ping queue work and report only immediate failures.
type Transport interface {
	Send(msg *wire.Message) error
	Ping() error
	Closed() bool
	Close() error
}

// Entry is a registered client and the transport it is reachable on
type Entry struct {
	Meta      wire.ClientMetadata
	Transport Transport
}

// Registry is the authoritative map of connected clients. Iteration follows
// registration order. Not safe for concurrent use; the bridge loop owns it.
type Registry struct {
	entries    map[string]*Entry
	order      []string
	maxClients int
}

// New creates a registry capped at maxClients
func New(maxClients int) *Registry {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &Registry{
		entries:    make(map[string]*Entry),
		maxClients: maxClients,
	}
}

// Add stores a new client. If the id is already registered the old entry is
// replaced in place and returned so the caller can close its transport.
func (r *Registry) Add(meta wire.ClientMetadata, t Transport) (replaced *Entry, err error) {
	if old, ok := r.entries[meta.ID]; ok {
		r.entries[meta.ID] = &Entry{Meta: meta, Transport: t}
		return old, nil
	}
	if len(r.entries) >= r.maxClients {
		return nil, ErrFull
	}
	r.entries[meta.ID] = &Entry{Meta: meta, Transport: t}
	r.order = append(r.order, meta.ID)
	return nil, nil
}

// Get returns the entry for id
func (r *Registry) Get(id string) (*Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Remove deletes id and returns its entry. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) (*Entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

// Touch refreshes lastSeen for id
func (r *Registry) Touch(id string, now time.Time) error {
	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Meta.LastSeen = now
	return nil
}

// Role returns the registered role for id, or "" when unknown
func (r *Registry) Role(id string) string {
	if e, ok := r.entries[id]; ok {
		return e.Meta.Role
	}
	return ""
}

// Snapshot returns the entries in registration order. The slice is a copy,
// the entries are shared.
func (r *Registry) Snapshot() []*Entry {
	result := make([]*Entry, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entries[id])
	}
	return result
}

// List returns copies of every client's metadata with uptime filled in
func (r *Registry) List(now time.Time) []wire.ClientMetadata {
	result := make([]wire.ClientMetadata, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.Describe(r.entries[id], now))
	}
	return result
}

// Describe copies an entry's metadata with uptime computed at now
func (r *Registry) Describe(e *Entry, now time.Time) wire.ClientMetadata {
	meta := e.Meta.Clone()
	meta.UptimeSeconds = now.Sub(meta.ConnectionTime).Seconds()
	return meta
}

// Len returns the number of registered clients
func (r *Registry) Len() int {
	return len(r.entries)
}

// Max returns the capacity
func (r *Registry) Max() int {
	return r.maxClients
}

// Reset drops every entry without closing transports
func (r *Registry) Reset() {
	clear(r.entries)
	r.order = r.order[:0]
}
