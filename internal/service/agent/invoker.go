// Package agent runs one prompt/response exchange with a remote agent runtime,
// streaming decoded output into a conversation and persisting the result.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/observability/metrics"
	"meeting-minutes-service/internal/service/content"
	"meeting-minutes-service/internal/service/stream"
	"meeting-minutes-service/internal/store"
)

// ThinkingPlaceholder is shown as the assistant message until the first chunk arrives.
const ThinkingPlaceholder = "Thinking..."

// DefaultQualifier is the runtime endpoint qualifier used when none is given.
const DefaultQualifier = "DEFAULT"

// ErrNotAuthenticated is returned when no identity token is available.
var ErrNotAuthenticated = errors.New("User is not authenticated")

// RuntimeRequest is one invocation of the agent runtime.
type RuntimeRequest struct {
	RuntimeARN string
	SessionID  string
	Qualifier  string
	Payload    []byte
	// IdentityToken authenticates the caller to the runtime.
	IdentityToken string
}

// Response is the runtime reply: a byte stream when the runtime streams,
// otherwise a complete Body.
type Response struct {
	Stream io.ReadCloser
	Body   []byte
}

// Runtime invokes an agent runtime.
type Runtime interface {
	Invoke(ctx context.Context, req RuntimeRequest) (*Response, error)
}

// TokenSource returns the identity token of the current user, or "" when the
// user is not signed in.
type TokenSource func(ctx context.Context) (string, error)

type identityTokenKey struct{}

// WithIdentityToken returns a context carrying the caller's identity token.
func WithIdentityToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, identityTokenKey{}, token)
}

// ContextToken is a TokenSource reading the token set by WithIdentityToken.
func ContextToken(ctx context.Context) (string, error) {
	token, _ := ctx.Value(identityTokenKey{}).(string)
	return token, nil
}

// Request describes one user prompt.
type Request struct {
	RuntimeARN   string
	SessionID    string
	Qualifier    string
	SystemPrompt string
	Prompt       string
	Model        content.ModelSpec
}

// OutputFunc receives every decoded increment of the response.
type OutputFunc func(stream.Output)

// Invoker runs exchanges against a Runtime.
type Invoker struct {
	runtime Runtime
	store   store.ChatStore
	tokens  TokenSource
	region  string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewInvoker creates an invoker. region fills a blank model region.
func NewInvoker(runtime Runtime, chats store.ChatStore, tokens TokenSource, region string) *Invoker {
	return NewInvokerWithMetrics(runtime, chats, tokens, region, metrics.DefaultMetrics)
}

// NewInvokerWithMetrics creates an invoker recording to m.
func NewInvokerWithMetrics(runtime Runtime, chats store.ChatStore, tokens TokenSource, region string, m *metrics.Metrics) *Invoker {
	return &Invoker{
		runtime: runtime,
		store:   chats,
		tokens:  tokens,
		region:  region,
		metrics: m,
		logger:  logging.WithComponent("agent-invoker"),
	}
}

// Invoke sends req.Prompt with the prior messages of conv to the runtime. It
// appends the user message and an assistant message to conv, fills the
// assistant message as output is decoded and persists the exchange once it
// completes. On failure the assistant message reads "Error: <msg>" and the
// error is returned; nothing is persisted.
func (i *Invoker) Invoke(ctx context.Context, conv *Conversation, req Request, onOutput OutputFunc) error {
	previous := content.PreviousMessages(append(conv.History(), models.ChatMessage{Role: models.RoleUser, Content: req.Prompt}))
	start := conv.len()

	conv.push(models.RoleUser, req.Prompt)
	conv.push(models.RoleAssistant, ThinkingPlaceholder)

	path, err := i.exchange(ctx, conv, req, previous, onOutput)
	if err != nil {
		msg := "Error: " + err.Error()
		conv.updateLast(func(m *models.RecordedMessage) {
			m.Role = models.RoleAssistant
			m.Content = msg
		})
		if onOutput != nil {
			onOutput(stream.Output{Text: msg})
		}
		i.metrics.RecordAgentInvocation(path, "failed")
		i.logger.Error().Err(err).Str("runtimeArn", req.RuntimeARN).Msg("Agent runtime invocation failed")
		return err
	}

	chatID, err := i.store.CreateChatIfNotExist(ctx, conv.ChatID())
	if err != nil {
		i.metrics.RecordAgentInvocation(path, "persist_failed")
		return fmt.Errorf("create chat: %w", err)
	}
	stored, err := i.store.CreateMessages(ctx, chatID, conv.unrecorded(start))
	if err != nil {
		i.metrics.RecordAgentInvocation(path, "persist_failed")
		return fmt.Errorf("create messages: %w", err)
	}
	conv.recorded(chatID, start, stored)

	i.metrics.RecordAgentInvocation(path, "success")
	i.logger.Info().Str("chatId", chatID).Str("path", path).Msg("Agent exchange recorded")
	return nil
}

func (i *Invoker) exchange(ctx context.Context, conv *Conversation, req Request, previous []models.ChatMessage, onOutput OutputFunc) (string, error) {
	token := ""
	if i.tokens != nil {
		t, err := i.tokens(ctx)
		if err != nil {
			return "none", fmt.Errorf("fetch identity token: %w", err)
		}
		token = t
	}
	if token == "" {
		return "none", ErrNotAuthenticated
	}

	model := req.Model
	if model.Region == "" {
		model.Region = i.region
	}
	model = model.WithDefaults()
	payload, err := json.Marshal(content.BuildAgentRequest(previous, req.SystemPrompt, req.Prompt, model))
	if err != nil {
		return "none", fmt.Errorf("encode payload: %w", err)
	}

	qualifier := req.Qualifier
	if qualifier == "" {
		qualifier = DefaultQualifier
	}
	resp, err := i.runtime.Invoke(ctx, RuntimeRequest{
		RuntimeARN:    req.RuntimeARN,
		SessionID:     req.SessionID,
		Qualifier:     qualifier,
		Payload:       payload,
		IdentityToken: token,
	})
	if err != nil {
		return "none", err
	}

	if resp.Stream == nil {
		conv.replaceLast(models.RoleAssistant)
		text := content.ExtractFinalText(string(resp.Body))
		apply(conv, stream.Output{Text: text}, model.ModelID)
		if onOutput != nil {
			onOutput(stream.Output{Text: text})
		}
		return "body", nil
	}
	defer resp.Stream.Close()

	return "stream", i.pump(ctx, conv, resp.Stream, model.ModelID, onOutput)
}

func (i *Invoker) pump(ctx context.Context, conv *Conversation, r io.Reader, modelID string, onOutput OutputFunc) error {
	dec := stream.NewDecoderWithMetrics(i.metrics)
	first := true
	emit := func(outs []stream.Output) {
		for _, o := range outs {
			apply(conv, o, modelID)
			if o.Metadata != nil && o.Metadata.Usage != nil {
				i.metrics.RecordAgentTokens(o.Metadata.Usage.InputTokens, o.Metadata.Usage.OutputTokens)
			}
			if onOutput != nil {
				onOutput(o)
			}
		}
	}

	chunk := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			if first {
				conv.replaceLast(models.RoleAssistant)
				first = false
			}
			emit(dec.Feed(chunk[:n]))
		}
		if errors.Is(err, io.EOF) {
			if first {
				conv.replaceLast(models.RoleAssistant)
			}
			emit(dec.Flush())
			return nil
		}
		if err != nil {
			return fmt.Errorf("read response stream: %w", err)
		}
	}
}

func apply(conv *Conversation, o stream.Output, modelID string) {
	conv.updateLast(func(m *models.RecordedMessage) {
		m.Content += o.Text
		if o.Trace != "" {
			m.Trace += o.Trace
		}
		if modelID != "" {
			m.ModelID = modelID
		}
		if o.Metadata != nil && o.Metadata.Usage != nil {
			u := *o.Metadata.Usage
			m.Usage = &u
		}
	})
}
