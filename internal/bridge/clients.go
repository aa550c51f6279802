package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
	"github.com/scarmonit-creator/LLM-sub005/internal/registry"
	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

const maxClientIDLength = 256

// Disconnect reasons reported in client_disconnected events
const (
	ReasonClosed          = "closed"
	ReasonReplaced        = "replaced"
	ReasonHeartbeatFailed = "heartbeat_failed"
	ReasonStale           = "stale"
	ReasonRemoved         = "removed"
	ReasonShutdown        = "shutdown"
)

// Register validates req, stores the client and replies on t with the
// registered frame and any queued backlog. A client id that is already
// connected is taken over by the new transport.
func (b *Bridge) Register(ctx context.Context, t Transport, req wire.RegisterRequest) (wire.ClientMetadata, error) {
	var (
		meta wire.ClientMetadata
		rerr error
	)
	err := b.exec(ctx, func() {
		meta, rerr = b.register(t, req)
	})
	if err != nil {
		return wire.ClientMetadata{}, err
	}
	return meta, rerr
}

func (b *Bridge) register(t Transport, req wire.RegisterRequest) (wire.ClientMetadata, error) {
	meta, err := newClientMetadata(req)
	if err != nil {
		return wire.ClientMetadata{}, err
	}

	now := b.now()
	if existing, ok := b.clients.Get(meta.ID); ok && existing.Transport == t {
		return b.refresh(existing, meta, now), nil
	}

	meta.ConnectionTime = now
	meta.LastSeen = now

	replaced, err := b.clients.Add(meta, t)
	if errors.Is(err, registry.ErrFull) {
		b.logger.Warn().Str("client_id", meta.ID).Int("max_clients", b.clients.Max()).Msg("registration rejected: capacity exceeded")
		return wire.ClientMetadata{}, ErrCapacityExceeded(b.clients.Max())
	}
	if err != nil {
		return wire.ClientMetadata{}, err
	}

	if replaced != nil {
		if cerr := replaced.Transport.Close(); cerr != nil {
			b.logger.Debug().Err(cerr).Str("client_id", meta.ID).Msg("close replaced transport")
		}
		b.events.Publish(notify.Event{Type: notify.EventClientDisconnected, ClientID: meta.ID, Reason: ReasonReplaced})
	}

	b.totalConnections++
	b.events.Publish(notify.Event{Type: notify.EventClientRegistered, ClientID: meta.ID})

	entry, _ := b.clients.Get(meta.ID)
	described := b.acknowledge(entry, now)

	b.logger.Info().
		Str("client_id", meta.ID).
		Str("role", meta.Role).
		Int("connected", b.clients.Len()).
		Msg("client registered")

	return described, nil
}

// refresh applies a repeated registration on the connection that already
// owns the id. Counters and connection time carry over.
func (b *Bridge) refresh(e *registry.Entry, meta wire.ClientMetadata, now time.Time) wire.ClientMetadata {
	e.Meta.Role = meta.Role
	e.Meta.Labels = meta.Labels
	e.Meta.Tools = meta.Tools
	e.Meta.Intents = meta.Intents
	e.Meta.MaxConcurrentTasks = meta.MaxConcurrentTasks
	e.Meta.LastSeen = now

	b.logger.Debug().Str("client_id", meta.ID).Msg("client metadata refreshed")
	return b.acknowledge(e, now)
}

// acknowledge sends the registered frame followed by any queued backlog
func (b *Bridge) acknowledge(e *registry.Entry, now time.Time) wire.ClientMetadata {
	described := b.clients.Describe(e, now)
	ack := wire.NewRegisteredMessage(described, b.history.Recent(b.opts.RegistrationHistory))
	if err := e.Transport.Send(ack); err != nil {
		b.recordSendFailure(e, err)
		return described
	}
	b.flushQueue(e)
	return described
}

// flushQueue pushes the offline backlog for e in batches. A failed batch is
// put back at the front of the queue.
func (b *Bridge) flushQueue(e *registry.Entry) {
	for b.queue.Has(e.Meta.ID) {
		batch := b.queue.Dequeue(e.Meta.ID)
		if err := e.Transport.Send(wire.NewBatchMessage(batch)); err != nil {
			b.queue.Requeue(e.Meta.ID, batch)
			b.recordSendFailure(e, err)
			return
		}
		b.logger.Debug().Str("client_id", e.Meta.ID).Int("envelopes", len(batch)).Msg("delivered queued batch")
	}
}

func newClientMetadata(req wire.RegisterRequest) (wire.ClientMetadata, error) {
	id := req.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	if err := validateClientID(id); err != nil {
		return wire.ClientMetadata{}, err
	}

	maxTasks := 0
	if req.MaxConcurrentTasks != nil {
		if *req.MaxConcurrentTasks < 0 {
			return wire.ClientMetadata{}, ErrInvalidRegistration("maxConcurrentTasks must be >= 0")
		}
		maxTasks = *req.MaxConcurrentTasks
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = wire.DefaultRole
	}

	return wire.ClientMetadata{
		ID:                 id,
		Role:               role,
		Labels:             stringSet(req.Labels),
		Tools:              stringSet(req.Tools),
		Intents:            stringSet(req.Intents),
		MaxConcurrentTasks: maxTasks,
	}, nil
}

func validateClientID(id string) error {
	if len(id) > maxClientIDLength {
		return ErrInvalidRegistration(fmt.Sprintf("clientId longer than %d bytes", maxClientIDLength))
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ErrInvalidRegistration("clientId must not contain whitespace or control characters")
		}
	}
	return nil
}

// stringSet trims, dedupes and sorts values. Never returns nil so listings
// encode as [] rather than null.
func stringSet(values []string) []string {
	set := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			set = append(set, v)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Unregister removes a client, closes its transport and discards its offline
// queue. Unknown ids are ignored and reported as removed=false.
func (b *Bridge) Unregister(ctx context.Context, clientID string) (removed bool, err error) {
	err = b.exec(ctx, func() {
		removed = b.unregister(clientID, ReasonRemoved)
	})
	return removed, err
}

// Detach unregisters clientID only if it is still bound to t. Transport
// adapters call it when a connection closes so a connection that was already
// replaced does not evict its successor.
func (b *Bridge) Detach(ctx context.Context, clientID string, t Transport) error {
	return b.exec(ctx, func() {
		e, ok := b.clients.Get(clientID)
		if !ok || e.Transport != t {
			return
		}
		b.unregister(clientID, ReasonClosed)
	})
}

func (b *Bridge) unregister(clientID, reason string) bool {
	e, ok := b.clients.Remove(clientID)
	if !ok {
		return false
	}

	dropped := b.queue.Discard(clientID)
	if err := e.Transport.Close(); err != nil {
		b.logger.Debug().Err(err).Str("client_id", clientID).Msg("close transport")
	}

	b.events.Publish(notify.Event{Type: notify.EventClientDisconnected, ClientID: clientID, Reason: reason})
	b.logger.Info().
		Str("client_id", clientID).
		Str("reason", reason).
		Int("queued_discarded", dropped).
		Int("connected", b.clients.Len()).
		Msg("client disconnected")
	return true
}

// ListClients returns a snapshot of every connected client
func (b *Bridge) ListClients(ctx context.Context) ([]wire.ClientMetadata, error) {
	var list []wire.ClientMetadata
	err := b.exec(ctx, func() {
		list = b.clients.List(b.now())
	})
	return list, err
}

// Client returns one connected client's metadata
func (b *Bridge) Client(ctx context.Context, clientID string) (wire.ClientMetadata, error) {
	var (
		meta  wire.ClientMetadata
		found bool
	)
	err := b.exec(ctx, func() {
		e, ok := b.clients.Get(clientID)
		if ok {
			meta, found = b.clients.Describe(e, b.now()), true
		}
	})
	if err != nil {
		return wire.ClientMetadata{}, err
	}
	if !found {
		return wire.ClientMetadata{}, ErrNotFound("client " + clientID)
	}
	return meta, nil
}

// Heartbeat refreshes lastSeen for clientID and acknowledges on its transport
func (b *Bridge) Heartbeat(ctx context.Context, clientID string) error {
	var herr error
	err := b.exec(ctx, func() {
		e, ok := b.clients.Get(clientID)
		if !ok {
			herr = ErrNotFound("client " + clientID)
			return
		}
		e.Meta.LastSeen = b.now()
		if err := e.Transport.Send(&wire.Message{Type: wire.FrameHeartbeatAck}); err != nil {
			b.recordSendFailure(e, err)
		}
	})
	if err != nil {
		return err
	}
	return herr
}

// Touch refreshes lastSeen without replying, for transport level liveness
// signals such as pong frames. Unknown ids are ignored.
func (b *Bridge) Touch(ctx context.Context, clientID string) error {
	return b.exec(ctx, func() {
		_ = b.clients.Touch(clientID, b.now())
	})
}

// ReportDeliveryFailure records a send error observed asynchronously by a
// transport after the core handed it a message.
func (b *Bridge) ReportDeliveryFailure(ctx context.Context, clientID string, cause error) error {
	return b.exec(ctx, func() {
		e, ok := b.clients.Get(clientID)
		if !ok {
			b.totalErrors++
			return
		}
		b.recordSendFailure(e, cause)
	})
}

// ReportMalformed records an undecodable frame received from clientID, which
// may be empty when the connection has not registered yet.
func (b *Bridge) ReportMalformed(ctx context.Context, clientID string, cause error) error {
	return b.exec(ctx, func() {
		b.totalErrors++
		if e, ok := b.clients.Get(clientID); ok {
			e.Meta.ErrorCount++
			e.Meta.LastSeen = b.now()
		}
		b.events.Publish(notify.Event{Type: notify.EventMalformedFrame, ClientID: clientID, Reason: cause.Error()})
	})
}

func (b *Bridge) recordSendFailure(e *registry.Entry, cause error) {
	e.Meta.ErrorCount++
	b.totalErrors++
	b.events.Publish(notify.Event{Type: notify.EventDeliveryFailed, ClientID: e.Meta.ID, Reason: cause.Error()})
	b.logger.Warn().Err(ErrDeliveryFailure(e.Meta.ID, cause)).Str("client_id", e.Meta.ID).Msg("delivery failed")
}
