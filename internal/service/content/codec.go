// Package content converts between internal chat messages and agent runtime
// content blocks, and extracts display text from runtime responses.
package content

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/protocol"
)

var logger = logging.WithComponent("content-codec")

var documentFormats = map[string]protocol.DocumentFormat{
	"pdf":  protocol.DocumentPDF,
	"csv":  protocol.DocumentCSV,
	"doc":  protocol.DocumentDOC,
	"docx": protocol.DocumentDOCX,
	"xls":  protocol.DocumentXLS,
	"xlsx": protocol.DocumentXLSX,
	"html": protocol.DocumentHTML,
	"txt":  protocol.DocumentTXT,
	"md":   protocol.DocumentMD,
}

// ToProtocolFormat converts user and assistant chat messages into protocol
// messages. Other roles are dropped. Every produced message has at least one
// content block.
func ToProtocolFormat(messages []models.ChatMessage) []protocol.Message {
	out := make([]protocol.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
			continue
		}
		out = append(out, protocol.Message{
			Role:    msg.Role,
			Content: toBlocks(msg),
		})
	}
	return out
}

func toBlocks(msg models.ChatMessage) []protocol.ContentBlock {
	if len(msg.ExtraData) == 0 {
		return []protocol.ContentBlock{protocol.TextBlock(msg.Content)}
	}

	var blocks []protocol.ContentBlock
	if msg.Content != "" {
		blocks = append(blocks, protocol.TextBlock(msg.Content))
	}
	for _, att := range msg.ExtraData {
		switch att.Type {
		case models.AttachmentImage:
			blocks = append(blocks, protocol.ImageContent(ImageFormatFor(att.Name), att.Source.Data))
		case models.AttachmentFile:
			blocks = append(blocks, protocol.DocumentContent(DocumentFormatFor(att.Name), att.Name, att.Source.Data))
		default:
			logger.Debug().Str("type", string(att.Type)).Str("name", att.Name).Msg("Skipping attachment of unknown type")
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, protocol.TextBlock(""))
	}
	return blocks
}

// ImageFormatFor maps a file name to an image format tag, defaulting to png.
func ImageFormatFor(name string) protocol.ImageFormat {
	switch extension(name) {
	case "jpg", "jpeg":
		return protocol.ImageJPEG
	case "gif":
		return protocol.ImageGIF
	case "webp":
		return protocol.ImageWEBP
	default:
		return protocol.ImagePNG
	}
}

// DocumentFormatFor maps a file name to a document format, or "" when the
// extension is not a supported document type.
func DocumentFormatFor(name string) protocol.DocumentFormat {
	return documentFormats[extension(name)]
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// ToDisplayText renders content blocks as display text.
func ToDisplayText(blocks []protocol.ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		switch b.Kind {
		case protocol.KindText:
			sb.WriteString(b.Text)
		case protocol.KindImage:
			format := string(b.Image.Format)
			if format == "" {
				format = "unknown"
			}
			fmt.Fprintf(&sb, "[Image: %s]", format)
		case protocol.KindDocument:
			name := b.Document.Name
			if name == "" {
				name = "document"
			}
			format := string(b.Document.Format)
			if format == "" {
				format = "unknown"
			}
			fmt.Fprintf(&sb, "[Document: %s (%s)]", name, format)
		case protocol.KindVideo:
			sb.WriteString("[Video]")
		case protocol.KindToolUse:
			fmt.Fprintf(&sb, "[Tool Use: %s]", b.ToolUse.Name)
		case protocol.KindToolResult:
			fmt.Fprintf(&sb, "\n[Tool Result: %s]\n", toolResultText(b.ToolResult.Content))
		case protocol.KindGuardContent:
			sb.WriteString("[Guard Content]")
		case protocol.KindCachePoint:
			sb.WriteString("[Cache Point]")
		case protocol.KindReasoningContent:
			sb.WriteString("[Reasoning]")
		case protocol.KindCitationsContent:
			sb.WriteString("[Citations]")
		default:
			logger.Warn().RawJSON("block", rawOrEmpty(b.Raw)).Msg("Skipping unknown content block")
		}
	}
	return sb.String()
}

func toolResultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}

func rawOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("{}")
	}
	return raw
}

type textItem struct {
	Text *string `json:"text"`
}

type responseBody struct {
	Output *struct {
		Message *struct {
			Content []textItem `json:"content"`
		} `json:"message"`
	} `json:"output"`
	Message *struct {
		Content []protocol.ContentBlock `json:"content"`
	} `json:"message"`
	Messages []struct {
		Role    models.Role             `json:"role"`
		Content []protocol.ContentBlock `json:"content"`
	} `json:"messages"`
	Content []protocol.ContentBlock `json:"content"`
	Text    *string                 `json:"text"`
}

// ExtractFinalText interprets a buffered runtime response body, trying the
// known response shapes in order. A body matching none of them, or not JSON
// at all, is returned unchanged.
func ExtractFinalText(raw string) string {
	var asString string
	if err := json.Unmarshal([]byte(raw), &asString); err == nil {
		return asString
	}

	var body responseBody
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return raw
	}

	if body.Output != nil && body.Output.Message != nil && body.Output.Message.Content != nil {
		var sb strings.Builder
		for _, item := range body.Output.Message.Content {
			if item.Text != nil {
				sb.WriteString(*item.Text)
			}
		}
		return sb.String()
	}
	if body.Message != nil && body.Message.Content != nil {
		return ToDisplayText(body.Message.Content)
	}
	if len(body.Messages) > 0 {
		idx := len(body.Messages) - 1
		for i, m := range body.Messages {
			if m.Role == models.RoleAssistant {
				idx = i
				break
			}
		}
		return ToDisplayText(body.Messages[idx].Content)
	}
	if body.Content != nil {
		return ToDisplayText(body.Content)
	}
	if body.Text != nil {
		return *body.Text
	}
	return raw
}
