package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"meeting-minutes-service/internal/service/agent"
	"meeting-minutes-service/internal/service/content"
	"meeting-minutes-service/internal/service/stream"
)

type invokeRequest struct {
	ChatID       string `json:"chatId"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"systemPrompt"`
	ModelID      string `json:"modelId"`
}

// invokeLine is one line of the ndjson invoke response.
type invokeLine struct {
	Type   string         `json:"type"`
	ChatID string         `json:"chatId,omitempty"`
	Output *stream.Output `json:"output,omitempty"`
	Reply  string         `json:"reply,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// invokeAgent runs one agent exchange and streams every decoded increment
// as a line of newline-delimited JSON. The identity token is taken from the
// Authorization bearer header.
func (h *handlers) invokeAgent(w http.ResponseWriter, r *http.Request) {
	invoker := h.app.Invoker()
	if invoker == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "agent runtime not configured")
		return
	}

	var req invokeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}
	token := bearerToken(r)
	if token == "" {
		respondErr(w, agent.ErrNotAuthenticated)
		return
	}

	cfg := h.app.Cfg
	conv := h.app.Conversation(req.ChatID)
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = cfg.Agent.SystemPrompt
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = cfg.Agent.DefaultModelID
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	write := func(line invokeLine) {
		_ = enc.Encode(line)
		if flusher != nil {
			flusher.Flush()
		}
	}

	write(invokeLine{Type: "chat", ChatID: conv.ChatID()})

	ctx := agent.WithIdentityToken(r.Context(), token)
	err := invoker.Invoke(ctx, conv, agent.Request{
		RuntimeARN:   cfg.Agent.RuntimeARN,
		SessionID:    conv.ChatID(),
		Qualifier:    cfg.Agent.Qualifier,
		SystemPrompt: systemPrompt,
		Prompt:       req.Prompt,
		Model: content.ModelSpec{
			Type:    content.ModelTypeBedrock,
			ModelID: modelID,
			Region:  cfg.AWS.Region,
		},
	}, func(o stream.Output) {
		write(invokeLine{Type: "output", Output: &o})
	})
	if err != nil {
		h.logger.Warn().Err(err).Str("chatId", conv.ChatID()).Msg("Agent invocation failed")
		write(invokeLine{Type: "error", ChatID: conv.ChatID(), Error: err.Error()})
		return
	}
	write(invokeLine{Type: "done", ChatID: conv.ChatID(), Reply: conv.LastReply()})
}

func (h *handlers) listChatMessages(w http.ResponseWriter, r *http.Request) {
	chats := h.app.Store()
	if chats == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "chat store not configured")
		return
	}
	msgs, err := chats.ListMessages(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
