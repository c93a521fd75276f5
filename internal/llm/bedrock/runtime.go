package bedrock

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"

	"meeting-minutes-service/internal/service/agent"
)

// InvokeAgentRuntimeAPI is the subset of the AgentCore client used by AgentRuntime.
type InvokeAgentRuntimeAPI interface {
	InvokeAgentRuntime(ctx context.Context, in *bedrockagentcore.InvokeAgentRuntimeInput, optFns ...func(*bedrockagentcore.Options)) (*bedrockagentcore.InvokeAgentRuntimeOutput, error)
}

// AgentRuntime invokes a Bedrock AgentCore runtime.
type AgentRuntime struct {
	client InvokeAgentRuntimeAPI
}

// NewAgentRuntime creates a runtime over client.
func NewAgentRuntime(client InvokeAgentRuntimeAPI) *AgentRuntime {
	return &AgentRuntime{client: client}
}

// NewAgentRuntimeFromConfig creates a runtime with an AgentCore client.
func NewAgentRuntimeFromConfig(cfg aws.Config) *AgentRuntime {
	return NewAgentRuntime(bedrockagentcore.NewFromConfig(cfg))
}

// Invoke implements agent.Runtime. Event-stream and JSON-lines responses are
// returned as a stream; other content types are read into Body.
func (r *AgentRuntime) Invoke(ctx context.Context, req agent.RuntimeRequest) (*agent.Response, error) {
	in := &bedrockagentcore.InvokeAgentRuntimeInput{
		AgentRuntimeArn: aws.String(req.RuntimeARN),
		Qualifier:       aws.String(req.Qualifier),
		Payload:         req.Payload,
		ContentType:     aws.String("application/json"),
	}
	if req.SessionID != "" {
		in.RuntimeSessionId = aws.String(req.SessionID)
	}

	out, err := r.client.InvokeAgentRuntime(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("invoke agent runtime: %w", err)
	}
	if out.Response == nil {
		return &agent.Response{}, nil
	}

	if isStreaming(aws.ToString(out.ContentType)) {
		return &agent.Response{Stream: out.Response}, nil
	}

	defer out.Response.Close()
	body, err := io.ReadAll(out.Response)
	if err != nil {
		return nil, fmt.Errorf("read agent runtime response: %w", err)
	}
	return &agent.Response{Body: body}, nil
}

func isStreaming(contentType string) bool {
	ct := strings.ToLower(contentType)
	return ct == "" ||
		strings.HasPrefix(ct, "text/event-stream") ||
		strings.HasPrefix(ct, "application/x-ndjson") ||
		strings.HasPrefix(ct, "application/jsonl")
}
