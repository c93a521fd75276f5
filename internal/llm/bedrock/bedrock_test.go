package bedrock

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"meeting-minutes-service/internal/llm"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/agent"
)

type fakeConverse struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
	err error
}

func (f *fakeConverse) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = in
	return f.out, f.err
}

func textOutput(parts ...string) *bedrockruntime.ConverseOutput {
	var blocks []types.ContentBlock
	for _, p := range parts {
		blocks = append(blocks, &types.ContentBlockMemberText{Value: p})
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{Role: types.ConversationRoleAssistant, Content: blocks}},
	}
}

func TestPredictor_Predict(t *testing.T) {
	fake := &fakeConverse{out: textOutput("<output>", "Hallo", "</output>")}
	p := NewPredictor(fake)

	got, err := p.Predict(context.Background(), llm.PredictRequest{
		ModelID: "us.amazon.nova-pro-v1:0",
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "translate"},
			{Role: models.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "<output>Hallo</output>" {
		t.Errorf("expected joined text, got %q", got)
	}

	if aws.ToString(fake.in.ModelId) != "us.amazon.nova-pro-v1:0" {
		t.Errorf("unexpected model id %s", aws.ToString(fake.in.ModelId))
	}
	if len(fake.in.System) != 1 || len(fake.in.Messages) != 1 || fake.in.Messages[0].Role != types.ConversationRoleUser {
		t.Errorf("unexpected converse input %+v", fake.in)
	}
}

func TestPredictor_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeConverse
		expected error
	}{
		{"unknown model", &fakeConverse{err: &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no model"}}, llm.ErrModelNotFound},
		{"no text", &fakeConverse{out: textOutput()}, llm.ErrEmptyResponse},
		{"no message", &fakeConverse{out: &bedrockruntime.ConverseOutput{}}, llm.ErrEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPredictor(tt.fake).Predict(context.Background(), llm.PredictRequest{ModelID: "m"})
			if !errors.Is(err, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

type fakeAgentCore struct {
	in  *bedrockagentcore.InvokeAgentRuntimeInput
	out *bedrockagentcore.InvokeAgentRuntimeOutput
}

func (f *fakeAgentCore) InvokeAgentRuntime(ctx context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error) {
	f.in = in
	return f.out, nil
}

func TestAgentRuntime_Invoke(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		streaming   bool
	}{
		{"event stream", "text/event-stream", true},
		{"unspecified", "", true},
		{"json body", "application/json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAgentCore{out: &bedrockagentcore.InvokeAgentRuntimeOutput{
				ContentType: aws.String(tt.contentType),
				Response:    io.NopCloser(strings.NewReader(`{"text":"hi"}`)),
			}}
			rt := NewAgentRuntime(fake)

			resp, err := rt.Invoke(context.Background(), agent.RuntimeRequest{
				RuntimeARN: "arn:aws:bedrock-agentcore:us-east-1:123:runtime/r",
				SessionID:  "session-0123456789-0123456789-0123456789",
				Qualifier:  "DEFAULT",
				Payload:    []byte(`{}`),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (resp.Stream != nil) != tt.streaming {
				t.Errorf("expected streaming=%v, got %+v", tt.streaming, resp)
			}
			if !tt.streaming && string(resp.Body) != `{"text":"hi"}` {
				t.Errorf("unexpected body %q", resp.Body)
			}
			if aws.ToString(fake.in.Qualifier) != "DEFAULT" || aws.ToString(fake.in.RuntimeSessionId) == "" {
				t.Errorf("unexpected input %+v", fake.in)
			}
		})
	}
}
