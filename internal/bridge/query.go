package bridge

import (
	"context"
	"runtime"
	"slices"
	"time"

	"github.com/scarmonit-creator/LLM-sub005/pkg/wire"
)

// History returns accepted envelopes matching q in chronological order
func (b *Bridge) History(ctx context.Context, q wire.HistoryQuery) ([]wire.Envelope, error) {
	var result []wire.Envelope
	err := b.exec(ctx, func() {
		result = b.history.Query(q)
	})
	return result, err
}

// Tasks groups the history by task id, most recently active first
func (b *Bridge) Tasks(ctx context.Context) ([]wire.TaskSummary, error) {
	var result []wire.TaskSummary
	err := b.exec(ctx, func() {
		result = b.tasks()
	})
	return result, err
}

func (b *Bridge) tasks() []wire.TaskSummary {
	byID := make(map[string]*wire.TaskSummary)
	latest := make(map[string]time.Time)
	var order []string

	b.history.Each(func(env *wire.Envelope) {
		if env.TaskID == "" {
			return
		}
		t, ok := byID[env.TaskID]
		if !ok {
			t = &wire.TaskSummary{
				TaskID:       env.TaskID,
				Intents:      []string{},
				Participants: []string{},
				FirstSeen:    env.Timestamp,
			}
			byID[env.TaskID] = t
			order = append(order, env.TaskID)
		}
		t.EnvelopeCount++
		// timestamps were validated on accept, so parse errors cannot occur
		if ts, _ := time.Parse(time.RFC3339Nano, env.Timestamp); !ts.Before(latest[env.TaskID]) {
			latest[env.TaskID] = ts
			t.LastSeen = env.Timestamp
		}
		t.Intents = appendUnique(t.Intents, env.Intent)
		t.Participants = appendUnique(t.Participants, env.From)
		if env.To != "" {
			t.Participants = appendUnique(t.Participants, env.To)
		}
	})

	result := make([]wire.TaskSummary, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}
	// history is chronological, so a stable sort keeps ties in first-seen order
	slices.SortStableFunc(result, func(x, y wire.TaskSummary) int {
		return latest[y.TaskID].Compare(latest[x.TaskID])
	})
	return result
}

func appendUnique(values []string, v string) []string {
	if v == "" || slices.Contains(values, v) {
		return values
	}
	return append(values, v)
}

// Metrics returns a counter snapshot. Cost is independent of history size.
func (b *Bridge) Metrics(ctx context.Context) (wire.Metrics, error) {
	var m wire.Metrics
	err := b.exec(ctx, func() {
		m = wire.Metrics{
			TotalMessages:    b.totalMessages,
			TotalConnections: b.totalConnections,
			TotalErrors:      b.totalErrors,
			DroppedQueued:    b.droppedQueued,
			UptimeSeconds:    b.now().Sub(b.started).Seconds(),
			ConnectedClients: b.clients.Len(),
			QueuedMessages:   b.queue.Total(),
			HistorySize:      b.history.Len(),
		}
	})
	if err != nil {
		return wire.Metrics{}, err
	}

	// ReadMemStats stops the world; keep it off the bridge goroutine
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Memory = wire.MemoryUsage{
		AllocBytes:     ms.Alloc,
		HeapInuseBytes: ms.HeapInuse,
		SysBytes:       ms.Sys,
		NumGoroutine:   runtime.NumGoroutine(),
	}
	return m, nil
}
