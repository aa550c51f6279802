package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeFrame_Register(t *testing.T) {
	data := []byte(`{"type":"register","clientId":"agent-1","role":"coordinator","labels":["a","b"],"maxConcurrentTasks":3}`)

	req, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}

	reg, ok := req.(*RegisterRequest)
	if !ok {
		t.Fatalf("Expected *RegisterRequest, got %T", req)
	}
	if reg.ClientID != "agent-1" {
		t.Errorf("Expected clientId agent-1, got %s", reg.ClientID)
	}
	if reg.Role != "coordinator" {
		t.Errorf("Expected role coordinator, got %s", reg.Role)
	}
	if len(reg.Labels) != 2 {
		t.Errorf("Expected 2 labels, got %d", len(reg.Labels))
	}
	if reg.MaxConcurrentTasks == nil || *reg.MaxConcurrentTasks != 3 {
		t.Errorf("Expected maxConcurrentTasks 3, got %v", reg.MaxConcurrentTasks)
	}
}

func TestDecodeFrame_Heartbeat(t *testing.T) {
	req, err := DecodeFrame([]byte(`{"type":"heartbeat"}`))
	if err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	if req.FrameType() != FrameHeartbeat {
		t.Errorf("Expected heartbeat frame, got %s", req.FrameType())
	}
}

func TestDecodeFrame_Envelope(t *testing.T) {
	data := []byte(`{"type":"envelope","envelope":{"to":"agent-2","payload":{"msg":"hi"}}}`)

	req, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}

	envReq, ok := req.(*EnvelopeRequest)
	if !ok {
		t.Fatalf("Expected *EnvelopeRequest, got %T", req)
	}
	if envReq.Envelope.To != "agent-2" {
		t.Errorf("Expected to agent-2, got %s", envReq.Envelope.To)
	}
	if string(envReq.Envelope.Payload) != `{"msg":"hi"}` {
		t.Errorf("Expected payload to be kept verbatim, got %s", envReq.Envelope.Payload)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"unknown type", `{"type":"subscribe"}`},
		{"missing type", `{}`},
		{"bad labels", `{"type":"register","labels":"oops"}`},
		{"bad envelope", `{"type":"envelope","envelope":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame([]byte(tt.data)); err == nil {
				t.Errorf("Expected error for %q", tt.data)
			}
		})
	}
}

func TestDecodeFrame_UnknownTypeIsWrapped(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"type":"subscribe"}`))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Errorf("Expected ErrUnknownFrame, got %v", err)
	}
}

func TestEnvelope_BroadcastOmitsTo(t *testing.T) {
	env := Envelope{ID: "e1", From: "a", Intent: DefaultIntent}

	if !env.IsBroadcast() {
		t.Error("Expected envelope without recipient to be a broadcast")
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}
	if strings.Contains(string(data), `"to"`) {
		t.Errorf("Expected no to field for broadcast, got %s", data)
	}
}

func TestHistoryQuery_Matches(t *testing.T) {
	env := &Envelope{From: "a", To: "b", TaskID: "t1", Intent: "plan"}

	tests := []struct {
		name  string
		query HistoryQuery
		want  bool
	}{
		{"empty", HistoryQuery{}, true},
		{"sender", HistoryQuery{AgentID: "a"}, true},
		{"recipient", HistoryQuery{AgentID: "b"}, true},
		{"other agent", HistoryQuery{AgentID: "c"}, false},
		{"task", HistoryQuery{TaskID: "t1"}, true},
		{"wrong task", HistoryQuery{TaskID: "t2"}, false},
		{"all match", HistoryQuery{AgentID: "b", TaskID: "t1", Intent: "plan"}, true},
		{"intent mismatch", HistoryQuery{AgentID: "b", Intent: "review"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(env); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestClientMetadata_CloneIsDeep(t *testing.T) {
	meta := ClientMetadata{ID: "a", Labels: []string{"x"}}

	clone := meta.Clone()
	clone.Labels[0] = "y"

	if meta.Labels[0] != "x" {
		t.Error("Expected clone to not share label storage")
	}
}

func TestClientMetadata_CloneKeepsEmptySets(t *testing.T) {
	meta := ClientMetadata{ID: "a", Labels: []string{}}

	clone := meta.Clone()
	if clone.Labels == nil || clone.Tools == nil || clone.Intents == nil {
		t.Fatalf("Expected non-nil sets, got %+v", clone)
	}

	data, err := json.Marshal(clone)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	for _, field := range []string{`"labels":[]`, `"tools":[]`, `"intents":[]`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("Expected %s in %s", field, data)
		}
	}
}

func TestMessage_RegisteredAlwaysCarriesHistory(t *testing.T) {
	data, err := json.Marshal(NewRegisteredMessage(ClientMetadata{ID: "a"}, nil))
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if string(raw["history"]) != "[]" {
		t.Errorf("Expected empty history array, got %s", data)
	}
	if _, ok := raw["client"]; !ok {
		t.Errorf("Expected client in %s", data)
	}

	data, _ = json.Marshal(NewErrorMessage("boom"))
	if strings.Contains(string(data), "history") {
		t.Errorf("Expected error frame without history, got %s", data)
	}
}
