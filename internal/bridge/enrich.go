package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

// TimestampLayout is the ISO-8601 form used for generated envelope timestamps
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Enrich fills every optional envelope field with its default. roleOf resolves
// the sender's role when the envelope does not carry one; newID generates an
// id when none was supplied. Enrich has no side effects.
func Enrich(partial wire.Envelope, roleOf func(clientID string) string, now time.Time, newID func() string) (wire.Envelope, error) {
	env := partial

	if env.Timestamp == "" {
		env.Timestamp = now.UTC().Format(TimestampLayout)
	} else if _, err := time.Parse(time.RFC3339Nano, env.Timestamp); err != nil {
		return wire.Envelope{}, ErrMalformedMessage(fmt.Errorf("timestamp %q is not ISO-8601", env.Timestamp))
	}

	for name, raw := range map[string]json.RawMessage{
		"context":     env.Context,
		"payload":     env.Payload,
		"tools":       env.Tools,
		"attachments": env.Attachments,
		"trace":       env.Trace,
	} {
		if len(raw) > 0 && !json.Valid(raw) {
			return wire.Envelope{}, ErrMalformedMessage(fmt.Errorf("field %s is not valid JSON", name))
		}
	}

	if env.ID == "" {
		env.ID = newID()
	}
	if env.Intent == "" {
		env.Intent = wire.DefaultIntent
	}
	if env.Channel == "" {
		env.Channel = wire.DefaultChannel
	}
	if env.Priority == "" {
		env.Priority = wire.DefaultPriority
	}
	if env.From == "" {
		env.From = wire.UnknownSender
	}
	if env.Role == "" && roleOf != nil {
		env.Role = roleOf(env.From)
	}

	return env, nil
}
