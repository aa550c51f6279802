package wire

import (
	"encoding/json"
	"slices"
	"time"
)

// Envelope defaults applied during enrichment
const (
	DefaultIntent   = "agent.message"
	DefaultChannel  = "default"
	DefaultPriority = "normal"
	UnknownSender   = "unknown"
	DefaultRole     = "agent"
)

// Envelope represents one routed message between agents.
// An empty To means broadcast.
type Envelope struct {
	ID          string          `json:"id"`
	Timestamp   string          `json:"timestamp"`
	Intent      string          `json:"intent"`
	TaskID      string          `json:"taskId,omitempty"`
	Channel     string          `json:"channel"`
	Priority    string          `json:"priority"`
	From        string          `json:"from"`
	Role        string          `json:"role,omitempty"`
	To          string          `json:"to,omitempty"`
	ReplyTo     string          `json:"replyTo,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
	Trace       json.RawMessage `json:"trace,omitempty"`
}

// IsBroadcast reports whether the envelope has no recipient
func (e *Envelope) IsBroadcast() bool {
	return e.To == ""
}

// Involves reports whether agentID sent or receives the envelope
func (e *Envelope) Involves(agentID string) bool {
	return e.From == agentID || e.To == agentID
}

// ClientMetadata describes a registered client.
type ClientMetadata struct {
	ID                 string    `json:"id"`
	Role               string    `json:"role"`
	Labels             []string  `json:"labels"`
	Tools              []string  `json:"tools"`
	Intents            []string  `json:"intents"`
	MaxConcurrentTasks int       `json:"maxConcurrentTasks"`
	LastSeen           time.Time `json:"lastSeen"`
	MessageCount       int64     `json:"messageCount"`
	ErrorCount         int64     `json:"errorCount"`
	ConnectionTime     time.Time `json:"connectionTime"`
	UptimeSeconds      float64   `json:"uptimeSeconds"`
}

// Clone returns a deep copy safe to hand out of the bridge loop
func (m *ClientMetadata) Clone() ClientMetadata {
	c := *m
	c.Labels = cloneSet(m.Labels)
	c.Tools = cloneSet(m.Tools)
	c.Intents = cloneSet(m.Intents)
	return c
}

// cloneSet copies values. The result is never nil so sets encode as [].
func cloneSet(values []string) []string {
	if values == nil {
		return []string{}
	}
	return slices.Clone(values)
}

// HistoryQuery filters the history buffer. Zero values mean "no filter".
type HistoryQuery struct {
	Limit   int    `json:"limit,omitempty"`
	AgentID string `json:"agentId,omitempty"`
	TaskID  string `json:"taskId,omitempty"`
	Intent  string `json:"intent,omitempty"`
}

// HasFilter reports whether any predicate field is set
func (q HistoryQuery) HasFilter() bool {
	return q.AgentID != "" || q.TaskID != "" || q.Intent != ""
}

// Matches applies the query predicate to an envelope
func (q HistoryQuery) Matches(e *Envelope) bool {
	if q.AgentID != "" && !e.Involves(q.AgentID) {
		return false
	}
	if q.TaskID != "" && e.TaskID != q.TaskID {
		return false
	}
	if q.Intent != "" && e.Intent != q.Intent {
		return false
	}
	return true
}

// TaskSummary groups history entries sharing a task id
type TaskSummary struct {
	TaskID        string   `json:"taskId"`
	Intents       []string `json:"intents"`
	Participants  []string `json:"participants"`
	EnvelopeCount int      `json:"envelopeCount"`
	FirstSeen     string   `json:"firstSeen"`
	LastSeen      string   `json:"lastSeen"`
}

// MemoryUsage is the process memory snapshot reported with metrics
type MemoryUsage struct {
	AllocBytes     uint64 `json:"allocBytes"`
	HeapInuseBytes uint64 `json:"heapInuseBytes"`
	SysBytes       uint64 `json:"sysBytes"`
	NumGoroutine   int    `json:"numGoroutine"`
}

// Metrics is the bridge counter snapshot
type Metrics struct {
	TotalMessages    int64       `json:"totalMessages"`
	TotalConnections int64       `json:"totalConnections"`
	TotalErrors      int64       `json:"totalErrors"`
	DroppedQueued    int64       `json:"droppedQueued"`
	UptimeSeconds    float64     `json:"uptimeSeconds"`
	ConnectedClients int         `json:"connectedClients"`
	QueuedMessages   int         `json:"queuedMessages"`
	HistorySize      int         `json:"historySize"`
	Memory           MemoryUsage `json:"memory"`
}
