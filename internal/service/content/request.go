package content

import (
	"strings"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/protocol"
)

// Defaults applied when a request leaves them unset.
const (
	DefaultModelID      = "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultRegion       = "us-east-1"
	DefaultSystemPrompt = "You are a helpful assistant."
	ModelTypeBedrock    = "bedrock"
)

// ModelSpec identifies the model the agent runtime should use.
type ModelSpec struct {
	Type    string `json:"type"`
	ModelID string `json:"modelId"`
	Region  string `json:"region"`
}

// WithDefaults fills a blank type, model id and region.
func (m ModelSpec) WithDefaults() ModelSpec {
	if m.Type == "" {
		m.Type = ModelTypeBedrock
	}
	if m.ModelID == "" {
		m.ModelID = DefaultModelID
	}
	if m.Region == "" {
		m.Region = DefaultRegion
	}
	return m
}

// AgentRequest is the agent runtime invocation payload.
type AgentRequest struct {
	Messages     []protocol.Message      `json:"messages"`
	SystemPrompt string                  `json:"systemPrompt"`
	Prompt       []protocol.ContentBlock `json:"prompt"`
	Model        ModelSpec               `json:"model"`
}

// BuildAgentRequest assembles the runtime payload from prior chat history and
// the new user prompt. Blank model, region and system prompt take defaults.
func BuildAgentRequest(previous []models.ChatMessage, systemPrompt, prompt string, model ModelSpec) AgentRequest {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}

	return AgentRequest{
		Messages:     ToProtocolFormat(previous),
		SystemPrompt: systemPrompt,
		Prompt:       []protocol.ContentBlock{protocol.TextBlock(prompt)},
		Model:        model.WithDefaults(),
	}
}

// PreviousMessages selects the history sent along with a new prompt: system
// messages, the last user message and empty assistant messages are left out.
func PreviousMessages(history []models.ChatMessage) []models.ChatMessage {
	lastUser := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			lastUser = i
			break
		}
	}

	out := make([]models.ChatMessage, 0, len(history))
	for i, msg := range history {
		switch {
		case msg.Role == models.RoleSystem:
			continue
		case msg.Role == models.RoleUser && i == lastUser:
			continue
		case msg.Role == models.RoleAssistant && strings.TrimSpace(msg.Content) == "":
			continue
		}
		out = append(out, msg)
	}
	return out
}
