package notify

import (
	"github.com/rs/zerolog"
)

// LogObserver writes bridge events to a zerolog logger
type LogObserver struct {
	logger zerolog.Logger
}

// NewLogObserver creates a log observer tagged with component=events
func NewLogObserver(logger zerolog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With().Str("component", "events").Logger()}
}

// Observe logs the event at a level matching its severity
func (o *LogObserver) Observe(e Event) {
	var ev *zerolog.Event
	switch e.Type {
	case EventClientRegistered, EventClientDisconnected:
		ev = o.logger.Info()
	case EventDeliveryFailed, EventLivenessWarning, EventMalformedFrame, EventQueueOverflow:
		ev = o.logger.Warn()
	default:
		ev = o.logger.Debug()
	}

	ev = ev.Str("event", string(e.Type))
	if e.ClientID != "" {
		ev = ev.Str("client_id", e.ClientID)
	}
	if e.EnvelopeID != "" {
		ev = ev.Str("envelope_id", e.EnvelopeID).
			Str("from", e.From).
			Str("to", e.To).
			Str("intent", e.Intent)
	}
	if e.Type == EventEnvelopeProcessed {
		ev = ev.Int("delivered", e.Delivered).Bool("queued", e.Queued)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	ev.Msg("bridge event")
}
