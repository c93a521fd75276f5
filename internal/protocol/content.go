// Package protocol holds the agent-runtime wire vocabulary: content blocks and
// streaming event envelopes. The runtime tags variants by which JSON key is
// present; this package converts them into explicit kinds once, at the edge.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"meeting-minutes-service/internal/models"
)

// BlockKind discriminates content block variants.
type BlockKind int

const (
	KindUnknown BlockKind = iota
	KindText
	KindImage
	KindDocument
	KindVideo
	KindToolUse
	KindToolResult
	KindGuardContent
	KindCachePoint
	KindReasoningContent
	KindCitationsContent
)

// blockKeys maps each kind to its JSON key, in detection order.
var blockKeys = []struct {
	kind BlockKind
	key  string
}{
	{KindText, "text"},
	{KindImage, "image"},
	{KindDocument, "document"},
	{KindVideo, "video"},
	{KindToolUse, "toolUse"},
	{KindToolResult, "toolResult"},
	{KindGuardContent, "guardContent"},
	{KindCachePoint, "cachePoint"},
	{KindReasoningContent, "reasoningContent"},
	{KindCitationsContent, "citationsContent"},
}

// String returns the JSON key of the kind.
func (k BlockKind) String() string {
	for _, bk := range blockKeys {
		if bk.kind == k {
			return bk.key
		}
	}
	return "unknown"
}

// ImageFormat is the image format tag.
type ImageFormat string

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
	ImageGIF  ImageFormat = "gif"
	ImageWEBP ImageFormat = "webp"
)

// DocumentFormat is the document format tag.
type DocumentFormat string

const (
	DocumentPDF  DocumentFormat = "pdf"
	DocumentCSV  DocumentFormat = "csv"
	DocumentDOC  DocumentFormat = "doc"
	DocumentDOCX DocumentFormat = "docx"
	DocumentXLS  DocumentFormat = "xls"
	DocumentXLSX DocumentFormat = "xlsx"
	DocumentHTML DocumentFormat = "html"
	DocumentTXT  DocumentFormat = "txt"
	DocumentMD   DocumentFormat = "md"
)

// VideoFormat is the video format tag.
type VideoFormat string

const (
	VideoFLV     VideoFormat = "flv"
	VideoMKV     VideoFormat = "mkv"
	VideoMOV     VideoFormat = "mov"
	VideoMPEG    VideoFormat = "mpeg"
	VideoMPG     VideoFormat = "mpg"
	VideoMP4     VideoFormat = "mp4"
	VideoThreeGP VideoFormat = "three_gp"
	VideoWEBM    VideoFormat = "webm"
	VideoWMV     VideoFormat = "wmv"
)

// BytesSource carries inline base64 encoded bytes. Media never references
// external locations.
type BytesSource struct {
	Bytes string `json:"bytes"`
}

// ImageBlock is an inline image.
type ImageBlock struct {
	Format ImageFormat `json:"format,omitempty"`
	Source BytesSource `json:"source"`
}

// DocumentBlock is an inline document.
type DocumentBlock struct {
	Format DocumentFormat `json:"format,omitempty"`
	Name   string         `json:"name,omitempty"`
	Source BytesSource    `json:"source"`
}

// VideoBlock is an inline video.
type VideoBlock struct {
	Format VideoFormat `json:"format,omitempty"`
	Source BytesSource `json:"source"`
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ToolUseID string          `json:"toolUseId,omitempty"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// ToolResultBlock carries the output of a tool invocation.
type ToolResultBlock struct {
	ToolUseID string          `json:"toolUseId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// ContentBlock is one part of a multi-part message. Exactly one of the
// variant fields matching Kind is set. Variants without a typed payload keep
// their JSON value in Raw; unknown blocks keep the whole object.
type ContentBlock struct {
	Kind       BlockKind
	Text       string
	Image      *ImageBlock
	Document   *DocumentBlock
	Video      *VideoBlock
	ToolUse    *ToolUseBlock
	ToolResult *ToolResultBlock
	Raw        json.RawMessage
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: KindText, Text: text}
}

// ImageContent returns an image content block.
func ImageContent(format ImageFormat, data string) ContentBlock {
	return ContentBlock{Kind: KindImage, Image: &ImageBlock{Format: format, Source: BytesSource{Bytes: data}}}
}

// DocumentContent returns a document content block.
func DocumentContent(format DocumentFormat, name, data string) ContentBlock {
	return ContentBlock{Kind: KindDocument, Document: &DocumentBlock{Format: format, Name: name, Source: BytesSource{Bytes: data}}}
}

// VideoContent returns a video content block.
func VideoContent(format VideoFormat, data string) ContentBlock {
	return ContentBlock{Kind: KindVideo, Video: &VideoBlock{Format: format, Source: BytesSource{Bytes: data}}}
}

var errEmptyBlock = errors.New("content block has no recognized key")

// UnmarshalJSON detects the variant by key presence.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("content block: %w", err)
	}

	*b = ContentBlock{}
	for _, bk := range blockKeys {
		raw, ok := fields[bk.key]
		if !ok || isNull(raw) {
			continue
		}
		if err := b.decodeVariant(bk.kind, raw); err != nil {
			// A recognized key with an unexpected shape is kept as unknown.
			*b = ContentBlock{Kind: KindUnknown, Raw: append(json.RawMessage(nil), data...)}
			return nil
		}
		b.Kind = bk.kind
		return nil
	}

	b.Kind = KindUnknown
	b.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (b *ContentBlock) decodeVariant(kind BlockKind, raw json.RawMessage) error {
	switch kind {
	case KindText:
		return json.Unmarshal(raw, &b.Text)
	case KindImage:
		b.Image = &ImageBlock{}
		return json.Unmarshal(raw, b.Image)
	case KindDocument:
		b.Document = &DocumentBlock{}
		return json.Unmarshal(raw, b.Document)
	case KindVideo:
		b.Video = &VideoBlock{}
		return json.Unmarshal(raw, b.Video)
	case KindToolUse:
		b.ToolUse = &ToolUseBlock{}
		return json.Unmarshal(raw, b.ToolUse)
	case KindToolResult:
		b.ToolResult = &ToolResultBlock{}
		return json.Unmarshal(raw, b.ToolResult)
	default:
		b.Raw = append(json.RawMessage(nil), raw...)
		return nil
	}
}

// MarshalJSON writes the block with its single variant key.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	var value any
	switch b.Kind {
	case KindText:
		value = b.Text
	case KindImage:
		value = b.Image
	case KindDocument:
		value = b.Document
	case KindVideo:
		value = b.Video
	case KindToolUse:
		value = b.ToolUse
	case KindToolResult:
		value = b.ToolResult
	case KindGuardContent, KindCachePoint, KindReasoningContent, KindCitationsContent:
		raw := b.Raw
		if len(raw) == 0 {
			raw = json.RawMessage(`{}`)
		}
		value = raw
	default:
		if len(b.Raw) > 0 {
			return b.Raw, nil
		}
		return nil, errEmptyBlock
	}
	return json.Marshal(map[string]any{b.Kind.String(): value})
}

// Message is a protocol-level chat message.
type Message struct {
	Role    models.Role    `json:"role"`
	Content []ContentBlock `json:"content"`
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
