package bridge

import (
	"context"

	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

// AcceptOptions controls how an envelope is routed
type AcceptOptions struct {
	// AllowQueue stores directed envelopes for offline recipients
	AllowQueue bool
	// Source is the registered client the envelope arrived from, if any.
	// It fills an empty From and counts toward that client's activity.
	Source string
}

// DefaultAcceptOptions queues directed envelopes for offline recipients
func DefaultAcceptOptions() AcceptOptions {
	return AcceptOptions{AllowQueue: true}
}

// Accept enriches env, records it in history and routes it. Delivery
// problems are absorbed into counters; only enrichment errors are returned.
func (b *Bridge) Accept(ctx context.Context, env wire.Envelope, opts AcceptOptions) (wire.Envelope, error) {
	var (
		accepted wire.Envelope
		aerr     error
	)
	err := b.exec(ctx, func() {
		accepted, aerr = b.accept(env, opts)
	})
	if err != nil {
		return wire.Envelope{}, err
	}
	return accepted, aerr
}

func (b *Bridge) accept(partial wire.Envelope, opts AcceptOptions) (wire.Envelope, error) {
	now := b.now()

	if opts.Source != "" {
		if partial.From == "" {
			partial.From = opts.Source
		}
		if e, ok := b.clients.Get(opts.Source); ok {
			e.Meta.LastSeen = now
			e.Meta.MessageCount++
		}
	}

	env, err := Enrich(partial, b.clients.Role, now, b.newEnvelopeID)
	if err != nil {
		b.totalErrors++
		return wire.Envelope{}, err
	}

	b.history.Append(env)
	b.totalMessages++

	event := notify.Event{
		Type:       notify.EventEnvelopeProcessed,
		EnvelopeID: env.ID,
		From:       env.From,
		To:         env.To,
		Intent:     env.Intent,
	}

	if env.IsBroadcast() {
		event.Delivered = b.broadcast(env)
	} else {
		event.Delivered, event.Queued = b.direct(env, opts.AllowQueue)
	}

	b.events.Publish(event)
	b.logger.Debug().
		Str("envelope_id", env.ID).
		Str("from", env.From).
		Str("to", env.To).
		Str("intent", env.Intent).
		Int("delivered", event.Delivered).
		Bool("queued", event.Queued).
		Msg("envelope processed")

	return env, nil
}

// broadcast pushes env to every connected client except the sender and
// returns how many pushes were handed to a transport successfully.
func (b *Bridge) broadcast(env wire.Envelope) int {
	delivered := 0
	for _, e := range b.clients.Snapshot() {
		if e.Meta.ID == env.From {
			continue
		}
		if err := e.Transport.Send(wire.NewEnvelopeMessage(env)); err != nil {
			b.recordSendFailure(e, err)
			continue
		}
		delivered++
	}
	return delivered
}

// direct pushes env to its recipient, falling back to the offline queue when
// the recipient is absent or its transport is already closed.
func (b *Bridge) direct(env wire.Envelope, allowQueue bool) (delivered int, queued bool) {
	if e, ok := b.clients.Get(env.To); ok && !e.Transport.Closed() {
		if err := e.Transport.Send(wire.NewEnvelopeMessage(env)); err != nil {
			b.recordSendFailure(e, err)
			return 0, false
		}
		return 1, false
	}

	if !allowQueue {
		return 0, false
	}

	if err := b.queue.Enqueue(env.To, env); err != nil {
		b.droppedQueued++
		b.events.Publish(notify.Event{
			Type:       notify.EventQueueOverflow,
			ClientID:   env.To,
			EnvelopeID: env.ID,
			Reason:     err.Error(),
		})
		b.logger.Warn().Err(err).Str("client_id", env.To).Str("envelope_id", env.ID).Msg("envelope not queued")
		return 0, false
	}

	b.events.Publish(notify.Event{Type: notify.EventEnvelopeQueued, ClientID: env.To, EnvelopeID: env.ID})
	return 0, true
}
