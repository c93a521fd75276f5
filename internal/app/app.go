// Package app wires the meeting-minutes collaborators and owns the registry
// of live meeting sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/config"
	"meeting-minutes-service/internal/llm"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/service/agent"
	"meeting-minutes-service/internal/service/audio"
	"meeting-minutes-service/internal/service/filetranscribe"
	"meeting-minutes-service/internal/service/minutes"
	"meeting-minutes-service/internal/service/stt"
	"meeting-minutes-service/internal/service/translation"
	"meeting-minutes-service/internal/store"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrFileTranscribeUnset = errors.New("file transcription not configured")
)

// EventPublisher receives every event produced by a session.
type EventPublisher interface {
	audio.Publisher
	PublishMinutes(ctx context.Context, key string, event models.MinutesEvent) error
	PublishTranslation(ctx context.Context, key string, event models.TranslationEvent) error
	Close() error
}

// FileTranscriber turns a media file into transcript fragments.
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path string) (filetranscribe.Result, error)
}

// Dependencies are the collaborators shared by all sessions.
type Dependencies struct {
	Publisher  EventPublisher
	Store      store.ChatStore
	Predictor  llm.Predictor
	STT        stt.Factory
	Invoker    *agent.Invoker
	Files      FileTranscriber
	Translator *translation.Orchestrator
	// Tokens counts minutes prompt tokens. Nil selects a tokenizer for the
	// minutes model.
	Tokens minutes.TokenCounter
}

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	deps Dependencies

	mu            sync.RWMutex
	sessions      map[string]*Session
	conversations map[string]*agent.Conversation
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration, deps Dependencies) *Application {
	if deps.Translator == nil && deps.Predictor != nil {
		deps.Translator = translation.NewOrchestrator(deps.Predictor, cfg.Translation.ModelIDs)
	}
	a := &Application{
		Cfg:           cfg,
		Logger:        logging.WithComponent("application"),
		deps:          deps,
		sessions:      make(map[string]*Session),
		conversations: make(map[string]*agent.Conversation),
	}

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Bool("fileTranscribe", deps.Files != nil).
		Msg("Meeting minutes application created")
	return a
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Meeting minutes service starting")
	return nil
}

// Shutdown closes every session and the shared collaborators.
func (a *Application) Shutdown() {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.sessions = make(map[string]*Session)
	a.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if a.deps.Publisher != nil {
		if err := a.deps.Publisher.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close event publisher")
		}
	}
	if a.deps.Store != nil {
		if err := a.deps.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close chat store")
		}
	}
	a.Logger.Info().Int("sessions", len(sessions)).Msg("Meeting minutes service shutting down")
}

// CreateSession registers a new meeting session. A blank key is replaced by
// a generated one.
func (a *Application) CreateSession(key string) (*Session, error) {
	if key == "" {
		key = uuid.NewString()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, key)
	}
	s, err := newSession(key, a.Cfg, a.deps)
	if err != nil {
		return nil, err
	}
	a.sessions[key] = s
	return s, nil
}

// Session returns the session registered under key.
func (a *Application) Session(key string) (*Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return s, nil
}

// SessionKeys returns the keys of all live sessions, sorted.
func (a *Application) SessionKeys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.sessions))
	for k := range a.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CloseSession stops and removes the session registered under key.
func (a *Application) CloseSession(key string) error {
	a.mu.Lock()
	s, ok := a.sessions[key]
	delete(a.sessions, key)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	s.Close()
	return nil
}

// Conversation returns the agent conversation for chatID, creating it on
// first use. A blank chatID starts a new conversation.
func (a *Application) Conversation(chatID string) *agent.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	if chatID != "" {
		if c, ok := a.conversations[chatID]; ok {
			return c
		}
	} else {
		chatID = uuid.NewString()
	}
	c := agent.NewConversation(chatID)
	a.conversations[chatID] = c
	return c
}

// Store returns the chat store, or nil when none is configured.
func (a *Application) Store() store.ChatStore {
	return a.deps.Store
}

// Invoker returns the agent invoker, or nil when no runtime is configured.
func (a *Application) Invoker() *agent.Invoker {
	return a.deps.Invoker
}

// Translator returns the translation orchestrator, or nil without a predictor.
func (a *Application) Translator() *translation.Orchestrator {
	return a.deps.Translator
}

// TranscribeFile runs batch transcription of path and makes the result the
// file input of the session's minutes.
func (a *Application) TranscribeFile(ctx context.Context, key, path string) (filetranscribe.Result, error) {
	if a.deps.Files == nil {
		return filetranscribe.Result{}, ErrFileTranscribeUnset
	}
	s, err := a.Session(key)
	if err != nil {
		return filetranscribe.Result{}, err
	}
	res, err := a.deps.Files.TranscribeFile(ctx, path)
	if err != nil {
		return filetranscribe.Result{}, fmt.Errorf("transcribe file: %w", err)
	}
	if err := s.SetFileText(res.Text()); err != nil {
		return filetranscribe.Result{}, err
	}
	return res, nil
}
