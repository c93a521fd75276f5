package stream

import (
	"reflect"
	"strings"
	"testing"
)

func feedInChunks(d *Decoder, data []byte, size int) []Output {
	var out []Output
	for i := 0; i < len(data); i += size {
		end := i + size
		if end > len(data) {
			end = len(data)
		}
		out = append(out, d.Feed(data[i:end])...)
	}
	return append(out, d.Flush()...)
}

func TestDecoder_SplitSafety(t *testing.T) {
	input := []byte("{\"event\":{\"contentBlockDelta\":{\"delta\":{\"text\":\"héllo\"}}}}\n{\"event\":{\"contentBlockStop\":{}}}\n")
	expected := []Output{{Text: "héllo"}, {Text: "\n"}}

	whole := NewDecoder().Feed(input)
	if !reflect.DeepEqual(whole, expected) {
		t.Fatalf("expected %+v, got %+v", expected, whole)
	}

	for size := 1; size <= 7; size++ {
		got := feedInChunks(NewDecoder(), input, size)
		if !reflect.DeepEqual(got, expected) {
			t.Errorf("chunk size %d: expected %+v, got %+v", size, expected, got)
		}
	}
}

func TestDecoder_ToolUseFencing(t *testing.T) {
	lines := strings.Join([]string{
		`{"event":{"contentBlockStart":{"start":{"toolUse":{"toolUseId":"t1","name":"search"}}}}}`,
		`{"event":{"contentBlockDelta":{"delta":{"toolUse":{"input":"{\"q\":"}}}}}`,
		`{"event":{"contentBlockDelta":{"delta":{"toolUse":{"input":"\"x\"}"}}}}}`,
		`{"event":{"contentBlockStop":{}}}`,
	}, "\n") + "\n"

	d := NewDecoder()
	out := d.Feed([]byte(lines))

	var trace strings.Builder
	for _, o := range out {
		if o.Text != "" {
			t.Errorf("expected no display text, got %q", o.Text)
		}
		trace.WriteString(o.Trace)
	}

	expected := "```search\n{\"q\":\"x\"}\n```\n"
	if trace.String() != expected {
		t.Errorf("expected trace %q, got %q", expected, trace.String())
	}
	if len(out) != 4 {
		t.Errorf("expected 4 outputs, got %d", len(out))
	}
}

func TestDecoder_EventMapping(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected []Output
	}{
		{
			name:     "message start",
			line:     `{"event":{"messageStart":{"role":"assistant"}}}`,
			expected: nil,
		},
		{
			name:     "block start with text",
			line:     `{"event":{"contentBlockStart":{"start":{"text":"Hi"}}}}`,
			expected: []Output{{Text: "Hi"}},
		},
		{
			name:     "block start empty",
			line:     `{"event":{"contentBlockStart":{"start":{}}}}`,
			expected: nil,
		},
		{
			name:     "reasoning delta",
			line:     `{"event":{"contentBlockDelta":{"delta":{"reasoningContent":{"text":"thinking"}}}}}`,
			expected: []Output{{Trace: "thinking"}},
		},
		{
			name:     "stop without block",
			line:     `{"event":{"contentBlockStop":{}}}`,
			expected: nil,
		},
		{
			name:     "throttling with message",
			line:     `{"event":{"throttlingException":{"message":"slow down"}}}`,
			expected: []Output{{Text: "Error: slow down"}},
		},
		{
			name:     "validation without message",
			line:     `{"event":{"validationException":{}}}`,
			expected: []Output{{Text: "Error: An error occurred"}},
		},
		{
			name:     "redact assistant",
			line:     `{"event":{"redactContent":{"redactAssistantContentMessage":"[redacted]"}}}`,
			expected: []Output{{Text: "[redacted]"}},
		},
		{
			name:     "redact user only",
			line:     `{"event":{"redactContent":{"redactUserContentMessage":"[redacted]"}}}`,
			expected: nil,
		},
		{
			name:     "unknown event",
			line:     `{"event":{"somethingNew":{}}}`,
			expected: nil,
		},
		{
			name:     "no event field",
			line:     `{"other":1}`,
			expected: nil,
		},
		{
			name:     "data prefix",
			line:     `data: {"event":{"contentBlockDelta":{"delta":{"text":"x"}}}}`,
			expected: []Output{{Text: "x"}},
		},
		{
			name:     "blank line",
			line:     "   ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDecoder().Feed([]byte(tt.line + "\n"))
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestDecoder_Metadata(t *testing.T) {
	d := NewDecoder()
	out := d.Feed([]byte(`{"event":{"metadata":{"usage":{"inputTokens":10,"outputTokens":5,"totalTokens":15,"cacheReadInputTokens":2}}}}` + "\n"))

	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	md := out[0].Metadata
	if md == nil || md.Usage == nil {
		t.Fatal("expected usage metadata")
	}
	if md.Usage.InputTokens != 10 || md.Usage.OutputTokens != 5 || md.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", md.Usage)
	}
	if md.Usage.CacheReadInputTokens == nil || *md.Usage.CacheReadInputTokens != 2 {
		t.Errorf("expected cache read tokens 2")
	}
	if md.Usage.CacheWriteInputTokens != nil {
		t.Errorf("expected cache write tokens absent")
	}

	if got := d.Feed([]byte(`{"event":{"metadata":{"metrics":{"latencyMs":3}}}}` + "\n")); got != nil {
		t.Errorf("expected no output for metadata without usage, got %+v", got)
	}
}

func TestDecoder_MalformedLineIsSkipped(t *testing.T) {
	d := NewDecoder()
	input := strings.Join([]string{
		`{"event":{"contentBlockStart":{"start":{"text":"a"}}}}`,
		`{"event": not json`,
		`{"event":{"contentBlockStop":{}}}`,
	}, "\n") + "\n"

	got := d.Feed([]byte(input))
	expected := []Output{{Text: "a"}, {Text: "\n"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %+v, got %+v", expected, got)
	}
}

func TestDecoder_FlushTrailingLine(t *testing.T) {
	d := NewDecoder()

	if got := d.Feed([]byte(`{"event":{"contentBlockDelta":{"delta":{"text":"tail"}}}}`)); got != nil {
		t.Errorf("expected buffered line to produce nothing, got %+v", got)
	}
	got := d.Flush()
	if len(got) != 1 || got[0].Text != "tail" {
		t.Errorf("expected flushed 'tail', got %+v", got)
	}
	if got := d.Flush(); got != nil {
		t.Errorf("expected empty second flush, got %+v", got)
	}
}

func TestDecoder_MessageStopResetsState(t *testing.T) {
	d := NewDecoder()
	input := strings.Join([]string{
		`{"event":{"contentBlockStart":{"start":{"toolUse":{"name":"calc"}}}}}`,
		`{"event":{"contentBlockDelta":{"delta":{"toolUse":{"input":"1+1"}}}}}`,
		`{"event":{"messageStop":{"stopReason":"tool_use"}}}`,
		`{"event":{"contentBlockStop":{}}}`,
	}, "\n") + "\n"

	out := d.Feed([]byte(input))
	if len(out) != 2 {
		t.Fatalf("expected fence open and one delta only, got %+v", out)
	}
	if d.ToolInput() != "" {
		t.Errorf("expected tool input cleared, got %q", d.ToolInput())
	}
}

func TestDecoder_InvalidUTF8Replaced(t *testing.T) {
	d := NewDecoder()
	line := append([]byte(`{"event":{"contentBlockDelta":{"delta":{"text":"a`), 0xff)
	line = append(line, []byte(`b"}}}}`+"\n")...)

	out := d.Feed(line)
	if len(out) != 1 || out[0].Text != "a�b" {
		t.Errorf("expected replacement character, got %+v", out)
	}
}

func TestDecodeAll(t *testing.T) {
	input := "data: {\"event\":{\"contentBlockStart\":{\"start\":{\"text\":\"Hello\"}}}}\n" +
		"data: {\"event\":{\"contentBlockDelta\":{\"delta\":{\"text\":\" world\"}}}}\n" +
		"data: {\"event\":{\"contentBlockStop\":{}}}"

	var text strings.Builder
	err := DecodeAll(strings.NewReader(input), func(o Output) {
		text.WriteString(o.Text)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text.String() != "Hello world\n" {
		t.Errorf("expected 'Hello world\\n', got %q", text.String())
	}
}
