package bridge

import (
	"context"

	"github.com/scarmonit-creator/LLM-sub005/internal/notify"
)

// CheckHeartbeats runs one liveness pass immediately instead of waiting for
// the next heartbeat tick.
func (b *Bridge) CheckHeartbeats(ctx context.Context) error {
	return b.exec(ctx, b.checkHeartbeats)
}

// CleanupStale runs one stale-connection pass immediately
func (b *Bridge) CleanupStale(ctx context.Context) error {
	return b.exec(ctx, b.cleanupStale)
}

// checkHeartbeats pings every client silent for more than twice the
// heartbeat interval. A failed ping evicts the client.
func (b *Bridge) checkHeartbeats() {
	now := b.now()
	limit := 2 * b.opts.HeartbeatInterval

	for _, e := range b.clients.Snapshot() {
		silent := now.Sub(e.Meta.LastSeen)
		if silent <= limit {
			continue
		}

		b.events.Publish(notify.Event{Type: notify.EventLivenessWarning, ClientID: e.Meta.ID})
		b.logger.Warn().Str("client_id", e.Meta.ID).Dur("silent", silent).Msg("client missed heartbeats")

		if err := e.Transport.Ping(); err != nil {
			b.logger.Warn().Err(err).Str("client_id", e.Meta.ID).Msg("ping failed")
			b.unregister(e.Meta.ID, ReasonHeartbeatFailed)
		}
	}
}

// cleanupStale evicts clients that are both silent past the stale threshold
// and report a closed transport. Quiet clients with open transports stay.
func (b *Bridge) cleanupStale() {
	now := b.now()

	removed := 0
	for _, e := range b.clients.Snapshot() {
		if now.Sub(e.Meta.LastSeen) <= b.opts.StaleThreshold || !e.Transport.Closed() {
			continue
		}
		if b.unregister(e.Meta.ID, ReasonStale) {
			removed++
		}
	}

	if removed > 0 {
		b.logger.Info().Int("removed", removed).Int("connected", b.clients.Len()).Msg("stale connections cleaned up")
	}
}
