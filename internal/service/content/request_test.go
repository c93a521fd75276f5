package content

import (
	"encoding/json"
	"testing"

	"meeting-minutes-service/internal/models"
)

func TestBuildAgentRequest_Defaults(t *testing.T) {
	req := BuildAgentRequest(nil, "", "hello", ModelSpec{})

	if req.SystemPrompt != DefaultSystemPrompt {
		t.Errorf("expected default system prompt, got %q", req.SystemPrompt)
	}
	if req.Model.Type != "bedrock" || req.Model.ModelID != DefaultModelID || req.Model.Region != "us-east-1" {
		t.Errorf("unexpected model defaults %+v", req.Model)
	}
	if len(req.Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(req.Messages))
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	expected := `{"messages":[],"systemPrompt":"You are a helpful assistant.","prompt":[{"text":"hello"}],"model":{"type":"bedrock","modelId":"us.anthropic.claude-3-5-sonnet-20241022-v2:0","region":"us-east-1"}}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}
}

func TestBuildAgentRequest_Overrides(t *testing.T) {
	req := BuildAgentRequest(
		[]models.ChatMessage{{Role: models.RoleUser, Content: "earlier"}},
		"custom system",
		"now",
		ModelSpec{ModelID: "us.amazon.nova-pro-v1:0", Region: "us-west-2"},
	)

	if req.SystemPrompt != "custom system" {
		t.Errorf("expected custom system prompt, got %q", req.SystemPrompt)
	}
	if req.Model.ModelID != "us.amazon.nova-pro-v1:0" || req.Model.Region != "us-west-2" {
		t.Errorf("unexpected model %+v", req.Model)
	}
	if len(req.Messages) != 1 {
		t.Errorf("expected 1 prior message, got %d", len(req.Messages))
	}
}

func TestPreviousMessages(t *testing.T) {
	history := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "system"},
		{Role: models.RoleUser, Content: "first question"},
		{Role: models.RoleAssistant, Content: "first answer"},
		{Role: models.RoleAssistant, Content: "   "},
		{Role: models.RoleUser, Content: "latest question"},
		{Role: models.RoleAssistant, Content: ""},
	}

	got := PreviousMessages(history)

	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d: %+v", len(got), got)
	}
	if got[0].Content != "first question" || got[1].Content != "first answer" {
		t.Errorf("unexpected messages %+v", got)
	}
}

func TestPreviousMessages_NoUser(t *testing.T) {
	got := PreviousMessages([]models.ChatMessage{{Role: models.RoleAssistant, Content: "hello"}})
	if len(got) != 1 {
		t.Errorf("expected assistant message to be kept, got %+v", got)
	}
}

func TestModelSpec_WithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		in       ModelSpec
		expected ModelSpec
	}{
		{"blank", ModelSpec{}, ModelSpec{Type: "bedrock", ModelID: DefaultModelID, Region: DefaultRegion}},
		{"region kept", ModelSpec{Region: "us-west-2"}, ModelSpec{Type: "bedrock", ModelID: DefaultModelID, Region: "us-west-2"}},
		{"all set", ModelSpec{Type: "custom", ModelID: "m", Region: "r"}, ModelSpec{Type: "custom", ModelID: "m", Region: "r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.WithDefaults(); got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}
