// Package stream decodes chunked agent runtime responses into display text,
// trace output and usage metadata.
package stream

import (
	"bytes"
	"errors"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/unicode"

	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/observability/metrics"
	"meeting-minutes-service/internal/protocol"
)

// DataPrefix is the optional server-sent-events prefix of a stream line.
const DataPrefix = "data: "

// DefaultErrorMessage is shown for exception events without a message.
const DefaultErrorMessage = "An error occurred"

// Output is one normalized increment of a response stream. Trace is empty when
// the event carries no side-channel output.
type Output struct {
	Text     string             `json:"text"`
	Trace    string             `json:"trace,omitempty"`
	Metadata *protocol.Metadata `json:"metadata,omitempty"`
}

type blockType int

const (
	blockNone blockType = iota
	blockText
	blockToolUse
	blockReasoning
)

// Decoder turns raw response bytes into Outputs. One Decoder serves one
// response stream; it is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	current blockType
	toolUse bytes.Buffer

	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewDecoder creates a decoder recording to the default metrics.
func NewDecoder() *Decoder {
	return NewDecoderWithMetrics(metrics.DefaultMetrics)
}

// NewDecoderWithMetrics creates a decoder recording to m.
func NewDecoderWithMetrics(m *metrics.Metrics) *Decoder {
	return &Decoder{
		metrics: m,
		logger:  logging.WithComponent("stream-decoder"),
	}
}

// Feed buffers chunk and decodes every complete line it finishes. Bytes after
// the last newline stay buffered until the next Feed or Flush.
func (d *Decoder) Feed(chunk []byte) []Output {
	d.buf = append(d.buf, chunk...)

	var out []Output
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := d.buf[:i]
		if o, ok := d.decodeLine(line); ok {
			out = append(out, o)
		}
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Flush decodes any buffered trailing line at end of stream.
func (d *Decoder) Flush() []Output {
	if len(d.buf) == 0 {
		return nil
	}
	line := d.buf
	d.buf = nil
	if o, ok := d.decodeLine(line); ok {
		return []Output{o}
	}
	return nil
}

// Reset discards buffered bytes and block state.
func (d *Decoder) Reset() {
	d.buf = nil
	d.resetState()
}

// DecodeAll pumps r through a fresh decoder and calls fn for every output,
// flushing at EOF.
func DecodeAll(r io.Reader, fn func(Output)) error {
	d := NewDecoder()
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			for _, o := range d.Feed(chunk[:n]) {
				fn(o)
			}
		}
		if errors.Is(err, io.EOF) {
			for _, o := range d.Flush() {
				fn(o)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Decoder) decodeLine(raw []byte) (Output, bool) {
	text, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		text = raw
	}
	text = bytes.TrimRight(text, "\r")
	text = bytes.TrimPrefix(text, []byte(DataPrefix))
	if len(bytes.TrimSpace(text)) == 0 {
		return Output{}, false
	}

	ev, err := protocol.ParseEvent(text)
	if err != nil {
		d.metrics.RecordMalformedLine()
		d.logger.Debug().Err(err).Int("bytes", len(text)).Msg("Skipping malformed stream line")
		return Output{}, false
	}
	d.metrics.RecordDecodedLine(ev.Kind.String())
	return d.apply(ev)
}

func (d *Decoder) apply(ev protocol.StreamEvent) (Output, bool) {
	switch ev.Kind {
	case protocol.EventMessageStart, protocol.EventMessageStop:
		d.resetState()
		return Output{}, false

	case protocol.EventContentBlockStart:
		start := ev.Start
		switch {
		case start.Text != nil && *start.Text != "":
			d.current = blockText
			return Output{Text: *start.Text}, true
		case start.ToolUse != nil:
			d.current = blockToolUse
			d.toolUse.Reset()
			return Output{Trace: "```" + start.ToolUse.Name + "\n"}, true
		}
		return Output{}, false

	case protocol.EventContentBlockDelta:
		delta := ev.Delta
		switch {
		case delta.Text != nil && *delta.Text != "":
			d.current = blockText
			return Output{Text: *delta.Text}, true
		case delta.ToolUse != nil:
			d.current = blockToolUse
			d.toolUse.WriteString(delta.ToolUse.Input)
			return Output{Trace: delta.ToolUse.Input}, true
		case delta.ReasoningContent != nil && delta.ReasoningContent.Text != "":
			d.current = blockReasoning
			return Output{Trace: delta.ReasoningContent.Text}, true
		}
		return Output{}, false

	case protocol.EventContentBlockStop:
		prev := d.current
		d.current = blockNone
		switch prev {
		case blockText:
			return Output{Text: "\n"}, true
		case blockToolUse:
			return Output{Trace: "\n```\n"}, true
		}
		return Output{}, false

	case protocol.EventMetadata:
		if ev.Metadata.Usage == nil {
			return Output{}, false
		}
		u := *ev.Metadata.Usage
		return Output{Metadata: &protocol.Metadata{Usage: &u}}, true

	case protocol.EventException:
		msg := ev.Exception.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		d.logger.Warn().Str("exception", ev.Exception.Name).Str("message", msg).Msg("Stream carried exception event")
		return Output{Text: "Error: " + msg}, true

	case protocol.EventRedactContent:
		if msg := ev.Redact.RedactAssistantContentMessage; msg != "" {
			return Output{Text: msg}, true
		}
		return Output{}, false
	}
	return Output{}, false
}

// ToolInput returns the tool input accumulated for the current tool-use block.
func (d *Decoder) ToolInput() string {
	return d.toolUse.String()
}

func (d *Decoder) resetState() {
	d.current = blockNone
	d.toolUse.Reset()
}
