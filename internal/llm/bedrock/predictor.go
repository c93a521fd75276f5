package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/llm"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
)

// ConverseAPI is the subset of the Bedrock Runtime client used by Predictor.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Predictor sends single-shot requests through the Converse API.
type Predictor struct {
	client ConverseAPI
	logger zerolog.Logger
}

// NewPredictor creates a predictor over client.
func NewPredictor(client ConverseAPI) *Predictor {
	return &Predictor{
		client: client,
		logger: logging.WithComponent("bedrock-predictor"),
	}
}

// NewPredictorFromConfig creates a predictor with a Bedrock Runtime client.
func NewPredictorFromConfig(cfg aws.Config) *Predictor {
	return NewPredictor(bedrockruntime.NewFromConfig(cfg))
}

// Predict implements llm.Predictor. System messages become the system prompt;
// user and assistant messages are sent in order.
func (p *Predictor) Predict(ctx context.Context, req llm.PredictRequest) (string, error) {
	in := &bedrockruntime.ConverseInput{ModelId: aws.String(req.ModelID)}
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case models.RoleUser:
			in.Messages = append(in.Messages, textMessage(types.ConversationRoleUser, m.Content))
		case models.RoleAssistant:
			in.Messages = append(in.Messages, textMessage(types.ConversationRoleAssistant, m.Content))
		}
	}

	out, err := p.client.Converse(ctx, in)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return "", fmt.Errorf("%w: %s", llm.ErrModelNotFound, req.ModelID)
		}
		return "", fmt.Errorf("converse %s: %w", req.ModelID, err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", llm.ErrEmptyResponse
	}

	var sb strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			sb.WriteString(t.Value)
		}
	}
	if sb.Len() == 0 {
		return "", llm.ErrEmptyResponse
	}

	if out.Usage != nil {
		p.logger.Debug().
			Str("requestId", req.RequestID).
			Str("modelId", req.ModelID).
			Int32("inputTokens", aws.ToInt32(out.Usage.InputTokens)).
			Int32("outputTokens", aws.ToInt32(out.Usage.OutputTokens)).
			Msg("Converse completed")
	}
	return sb.String(), nil
}

func textMessage(role types.ConversationRole, text string) types.Message {
	return types.Message{
		Role:    role,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
	}
}
