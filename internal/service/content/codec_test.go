package content

import (
	"encoding/json"
	"testing"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/protocol"
)

func TestToProtocolFormat_RoundTripText(t *testing.T) {
	msgs := ToProtocolFormat([]models.ChatMessage{
		{Role: models.RoleUser, Content: "hi", ExtraData: []models.Attachment{}},
	})

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if got := ToDisplayText(msgs[0].Content); got != "hi" {
		t.Errorf("expected 'hi', got %q", got)
	}
}

func TestToProtocolFormat_FiltersRoles(t *testing.T) {
	msgs := ToProtocolFormat([]models.ChatMessage{
		{Role: models.RoleSystem, Content: "be nice"},
		{Role: models.RoleUser, Content: "question"},
		{Role: models.RoleAssistant, Content: "answer"},
		{Role: models.Role("tool"), Content: "ignored"},
	})

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[1].Role != models.RoleAssistant {
		t.Errorf("unexpected roles %v, %v", msgs[0].Role, msgs[1].Role)
	}
}

func TestToProtocolFormat_Attachments(t *testing.T) {
	msgs := ToProtocolFormat([]models.ChatMessage{{
		Role:    models.RoleUser,
		Content: "see attached",
		ExtraData: []models.Attachment{
			{Type: models.AttachmentImage, Name: "photo.JPG", Source: models.AttachmentSource{Type: "base64", Data: "aW1n"}},
			{Type: models.AttachmentFile, Name: "report.pdf", Source: models.AttachmentSource{Type: "base64", Data: "cGRm"}},
			{Type: models.AttachmentFile, Name: "archive.zip", Source: models.AttachmentSource{Type: "base64", Data: "emlw"}},
		},
	}})

	blocks := msgs[0].Content
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
	if blocks[0].Kind != protocol.KindText || blocks[0].Text != "see attached" {
		t.Errorf("expected leading text block, got %+v", blocks[0])
	}
	if blocks[1].Image.Format != protocol.ImageJPEG || blocks[1].Image.Source.Bytes != "aW1n" {
		t.Errorf("unexpected image block %+v", blocks[1].Image)
	}
	if blocks[2].Document.Format != protocol.DocumentPDF || blocks[2].Document.Name != "report.pdf" {
		t.Errorf("unexpected document block %+v", blocks[2].Document)
	}
	if blocks[3].Document.Format != "" {
		t.Errorf("expected unset format for unknown extension, got %q", blocks[3].Document.Format)
	}
}

func TestToProtocolFormat_AttachmentWithoutText(t *testing.T) {
	msgs := ToProtocolFormat([]models.ChatMessage{{
		Role:      models.RoleUser,
		ExtraData: []models.Attachment{{Type: models.AttachmentImage, Name: "a.gif"}},
	}})

	blocks := msgs[0].Content
	if len(blocks) != 1 || blocks[0].Kind != protocol.KindImage {
		t.Errorf("expected only an image block, got %+v", blocks)
	}
}

func TestToProtocolFormat_NeverEmpty(t *testing.T) {
	msgs := ToProtocolFormat([]models.ChatMessage{{Role: models.RoleAssistant}})

	if len(msgs[0].Content) != 1 || msgs[0].Content[0].Kind != protocol.KindText {
		t.Fatalf("expected single empty text block, got %+v", msgs[0].Content)
	}

	data, err := json.Marshal(msgs[0])
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"role":"assistant","content":[{"text":""}]}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestImageFormatFor(t *testing.T) {
	tests := []struct {
		name     string
		expected protocol.ImageFormat
	}{
		{"a.jpg", protocol.ImageJPEG},
		{"a.jpeg", protocol.ImageJPEG},
		{"a.gif", protocol.ImageGIF},
		{"a.webp", protocol.ImageWEBP},
		{"a.png", protocol.ImagePNG},
		{"a.bmp", protocol.ImagePNG},
		{"noext", protocol.ImagePNG},
	}

	for _, tt := range tests {
		if got := ImageFormatFor(tt.name); got != tt.expected {
			t.Errorf("ImageFormatFor(%s) = %v, want %v", tt.name, got, tt.expected)
		}
	}
}

func TestToDisplayText_Labels(t *testing.T) {
	raw := `[
		{"text":"Hello "},
		{"image":{"format":"png","source":{"bytes":"x"}}},
		{"image":{"source":{"bytes":"x"}}},
		{"document":{"name":"notes","format":"md","source":{"bytes":"x"}}},
		{"document":{"source":{"bytes":"x"}}},
		{"video":{"format":"mp4","source":{"bytes":"x"}}},
		{"toolUse":{"toolUseId":"t1","name":"search","input":{}}},
		{"toolResult":{"toolUseId":"t1","content":"done"}},
		{"guardContent":{"text":{"text":"x"}}},
		{"cachePoint":{"type":"default"}},
		{"reasoningContent":{"reasoningText":{"text":"x"}}},
		{"citationsContent":{"citations":[]}},
		{"mystery":{}}
	]`

	var blocks []protocol.ContentBlock
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	expected := "Hello [Image: png][Image: unknown][Document: notes (md)][Document: document (unknown)][Video][Tool Use: search]\n[Tool Result: done]\n[Guard Content][Cache Point][Reasoning][Citations]"
	if got := ToDisplayText(blocks); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestToDisplayText_ToolResultJSON(t *testing.T) {
	var blocks []protocol.ContentBlock
	raw := `[{"toolResult":{"toolUseId":"t1","content":[{"text":"42"}]}}]`
	if err := json.Unmarshal([]byte(raw), &blocks); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	expected := "\n[Tool Result: [{\"text\":\"42\"}]]\n"
	if got := ToDisplayText(blocks); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestExtractFinalText(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"plain text", "plain text", "plain text"},
		{"output message", `{"output":{"message":{"role":"assistant","content":[{"text":"a"},{"text":"b"}]}}}`, "ab"},
		{"message content", `{"message":{"role":"assistant","content":[{"text":"hi"},{"video":{"source":{"bytes":""}}}]}}`, "hi[Video]"},
		{"messages assistant", `{"messages":[{"role":"user","content":[{"text":"q"}]},{"role":"assistant","content":[{"text":"answer"}]},{"role":"user","content":[{"text":"later"}]}]}`, "answer"},
		{"messages last fallback", `{"messages":[{"role":"user","content":[{"text":"q1"}]},{"role":"user","content":[{"text":"q2"}]}]}`, "q2"},
		{"bare content", `{"content":[{"text":"c"}]}`, "c"},
		{"malformed image skipped", `{"content":[{"text":"hi"},{"image":"oops"}]}`, "hi"},
		{"malformed tool use skipped", `{"message":{"role":"assistant","content":[{"text":"hi"},{"toolUse":{"name":5}}]}}`, "hi"},
		{"json string", `"just a string"`, "just a string"},
		{"text field", `{"text":"t"}`, "t"},
		{"unmatched object", `{"foo":1}`, `{"foo":1}`},
		{"json array", `[1,2]`, `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractFinalText(tt.body); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
