package protocol

import "testing"

func TestParseEvent_Kinds(t *testing.T) {
	tests := []struct {
		line string
		want EventKind
	}{
		{`{"event":{"messageStart":{"role":"assistant"}}}`, EventMessageStart},
		{`{"event":{"contentBlockStart":{"start":{"text":"a"}}}}`, EventContentBlockStart},
		{`{"event":{"contentBlockDelta":{"delta":{"text":"b"}}}}`, EventContentBlockDelta},
		{`{"event":{"contentBlockStop":{}}}`, EventContentBlockStop},
		{`{"event":{"messageStop":{"stopReason":"end_turn"}}}`, EventMessageStop},
		{`{"event":{"metadata":{"usage":{"inputTokens":1,"outputTokens":2,"totalTokens":3}}}}`, EventMetadata},
		{`{"event":{"throttlingException":{"message":"slow down"}}}`, EventException},
		{`{"event":{"redactContent":{"redactAssistantContentMessage":"[redacted]"}}}`, EventRedactContent},
		{`{"event":{"somethingNew":{}}}`, EventUnknown},
		{`{"other":1}`, EventUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.line))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ev.Kind != tt.want {
				t.Errorf("expected %v, got %v", tt.want, ev.Kind)
			}
		})
	}
}

func TestParseEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"event":`)); err == nil {
		t.Error("expected error for truncated envelope")
	}
}

func TestParseEvent_ExceptionName(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":{"validationException":{"message":"bad input"}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Exception == nil {
		t.Fatal("expected exception payload")
	}
	if ev.Exception.Name != "validationException" {
		t.Errorf("expected validationException, got %s", ev.Exception.Name)
	}
	if ev.Exception.Message != "bad input" {
		t.Errorf("expected message 'bad input', got %s", ev.Exception.Message)
	}
}

func TestParseEvent_ToolUseStart(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":{"contentBlockStart":{"start":{"toolUse":{"toolUseId":"t1","name":"search"}}}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Start == nil || ev.Start.ToolUse == nil {
		t.Fatal("expected tool use start")
	}
	if ev.Start.ToolUse.Name != "search" {
		t.Errorf("expected tool name 'search', got %s", ev.Start.ToolUse.Name)
	}
}
