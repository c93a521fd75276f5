// Package minutes generates meeting minutes from the transcript, on demand or
// on a countdown, with at most one generation in flight.
package minutes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/llm"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/observability/metrics"
)

// Errors returned by Generate.
var (
	ErrCustomPromptRequired = errors.New("custom prompt is required for the custom style")
	ErrNoTranscript         = errors.New("no transcript text to generate minutes from")
	ErrGenerationInFlight   = errors.New("minutes generation already in progress")
	ErrGenerationFailed     = errors.New("minutes generation failed")
	ErrUnknownStyle         = errors.New("unknown minutes style")
	ErrUnknownInputMethod   = errors.New("unknown input method")
)

// RequestID identifies minutes calls to the predictor.
const RequestID = "/meeting-minutes"

// InputMethod selects the transcript text minutes are generated from.
type InputMethod string

const (
	InputRealtime InputMethod = "realtime"
	InputDirect   InputMethod = "direct"
	InputFile     InputMethod = "file"
)

// Trigger names what started a generation.
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerAuto   Trigger = "auto"
)

// Status is the outcome reported to status listeners.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// StatusEvent is delivered after every generation attempt that reached the model.
type StatusEvent struct {
	Status      Status
	Trigger     Trigger
	Style       Style
	ModelID     string
	Minutes     string
	GeneratedAt time.Time
	Err         error
}

// StatusFunc receives generation outcomes.
type StatusFunc func(StatusEvent)

// Settings are the user-adjustable generation settings.
type Settings struct {
	ModelID      string      `json:"modelId"`
	Style        Style       `json:"style"`
	CustomPrompt string      `json:"customPrompt,omitempty"`
	InputMethod  InputMethod `json:"inputMethod"`
	DirectText   string      `json:"directText,omitempty"`
	FileText     string      `json:"fileText,omitempty"`
}

// Config configures a Scheduler.
type Config struct {
	SessionKey      string
	Settings        Settings
	MaxPromptTokens int
	// Counter counts prompt tokens. Nil selects NewTokenCounter(ModelID).
	Counter TokenCounter
}

// Scheduler owns minutes generation for one session.
// Thread-safe for concurrent access.
type Scheduler struct {
	predictor llm.Predictor
	realtime  func() string
	maxTokens int
	counter   TokenCounter
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// configMu serializes countdown restarts.
	configMu sync.Mutex

	mu            sync.Mutex
	settings      Settings
	autoGenerate  bool
	frequency     int
	countdown     int
	generating    bool
	lastProcessed string
	minutes       string
	generatedAt   time.Time
	listeners     []StatusFunc

	stopTicker context.CancelFunc
	tickerDone chan struct{}
	// manualTicks leaves Tick to the caller instead of a wall-clock ticker.
	manualTicks bool

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler reading realtime transcript text from realtime.
func NewScheduler(predictor llm.Predictor, realtime func() string, cfg Config) (*Scheduler, error) {
	return NewSchedulerWithMetrics(predictor, realtime, cfg, metrics.DefaultMetrics)
}

// NewSchedulerWithMetrics creates a scheduler recording to m.
func NewSchedulerWithMetrics(predictor llm.Predictor, realtime func() string, cfg Config, m *metrics.Metrics) (*Scheduler, error) {
	settings, err := normalize(cfg.Settings)
	if err != nil {
		return nil, err
	}
	counter := cfg.Counter
	if counter == nil {
		counter = NewTokenCounter(settings.ModelID)
	}
	return &Scheduler{
		predictor: predictor,
		realtime:  realtime,
		maxTokens: cfg.MaxPromptTokens,
		counter:   counter,
		metrics:   m,
		logger:    logging.WithSession("minutes", cfg.SessionKey),
		settings:  settings,
	}, nil
}

func normalize(s Settings) (Settings, error) {
	style, err := ParseStyle(string(s.Style))
	if err != nil {
		return Settings{}, err
	}
	s.Style = style
	switch s.InputMethod {
	case "":
		s.InputMethod = InputRealtime
	case InputRealtime, InputDirect, InputFile:
	default:
		return Settings{}, fmt.Errorf("%w: %q", ErrUnknownInputMethod, s.InputMethod)
	}
	return s, nil
}

// UpdateSettings replaces the generation settings.
func (s *Scheduler) UpdateSettings(settings Settings) error {
	settings, err := normalize(settings)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

// Settings returns the current generation settings.
func (s *Scheduler) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// OnStatus registers a listener for generation outcomes.
func (s *Scheduler) OnStatus(fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Configure sets automatic generation. Any running countdown is cancelled;
// when enabled the countdown restarts from frequencyMinutes*60 seconds and
// a ticker decrements it every second.
func (s *Scheduler) Configure(autoGenerate bool, frequencyMinutes int) {
	s.configMu.Lock()
	defer s.configMu.Unlock()

	s.haltTicker()

	if frequencyMinutes <= 0 {
		autoGenerate = false
	}

	s.mu.Lock()
	s.autoGenerate = autoGenerate
	s.frequency = frequencyMinutes
	s.countdown = 0
	if autoGenerate {
		s.countdown = frequencyMinutes * 60
	}
	s.mu.Unlock()

	s.logger.Info().
		Bool("autoGenerate", autoGenerate).
		Int("frequencyMinutes", frequencyMinutes).
		Msg("Minutes schedule configured")

	if !autoGenerate || s.manualTicks {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.stopTicker = cancel
	s.tickerDone = done
	s.mu.Unlock()

	go s.runTicker(ctx, done)
}

// Close stops the countdown and waits for running generations.
func (s *Scheduler) Close() {
	s.configMu.Lock()
	s.haltTicker()
	s.configMu.Unlock()
	s.wg.Wait()
}

// Wait blocks until all started automatic generations have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) haltTicker() {
	s.mu.Lock()
	cancel, done := s.stopTicker, s.tickerDone
	s.stopTicker, s.tickerDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) runTicker(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick advances the countdown by one second. When it reaches zero the
// countdown is reset and a generation starts if the realtime transcript has
// text, changed since the last generation, and no generation is in flight.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	if !s.autoGenerate || s.countdown <= 0 {
		s.mu.Unlock()
		return
	}
	s.countdown--
	if s.countdown > 0 {
		s.mu.Unlock()
		return
	}
	s.countdown = s.frequency * 60
	s.mu.Unlock()

	text := s.realtimeText()
	if strings.TrimSpace(text) == "" {
		return
	}

	s.mu.Lock()
	if s.generating || text == s.lastProcessed {
		generating := s.generating
		s.mu.Unlock()
		s.logger.Debug().Bool("generating", generating).Msg("Automatic generation skipped")
		return
	}
	s.generating = true
	settings := s.settings
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.run(context.Background(), TriggerAuto, settings, text)
	}()
}

// Generate runs a manual generation from the text of the configured input
// method and returns once it has finished. It is a no-op returning
// ErrGenerationInFlight while another generation is running.
func (s *Scheduler) Generate(ctx context.Context) error {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()

	if settings.Style == StyleCustom && strings.TrimSpace(settings.CustomPrompt) == "" {
		s.metrics.RecordMinutes(string(TriggerManual), "rejected", 0)
		return ErrCustomPromptRequired
	}

	text := s.inputText(settings)
	if strings.TrimSpace(text) == "" {
		s.metrics.RecordMinutes(string(TriggerManual), "rejected", 0)
		return ErrNoTranscript
	}

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		s.metrics.RecordMinutes(string(TriggerManual), "in_flight", 0)
		return ErrGenerationInFlight
	}
	s.generating = true
	s.mu.Unlock()

	return s.run(ctx, TriggerManual, settings, text)
}

func (s *Scheduler) run(ctx context.Context, trigger Trigger, settings Settings, text string) error {
	systemPrompt := SystemPrompt(settings.Style, settings.CustomPrompt)

	transcript := text
	if s.maxTokens > 0 {
		budget := s.maxTokens - s.counter.Count(systemPrompt) - s.counter.Count(UserPrompt(""))
		var trimmed bool
		transcript, trimmed = trimToBudget(s.counter, text, budget)
		if trimmed {
			s.metrics.RecordMinutesTrimmed()
			s.logger.Warn().Int("maxPromptTokens", s.maxTokens).Msg("Transcript trimmed to fit prompt budget")
		}
	}

	req := llm.PredictRequest{
		ModelID: settings.ModelID,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: UserPrompt(transcript)},
		},
		RequestID: RequestID + "/" + uuid.NewString(),
	}

	start := time.Now()
	out, err := s.predictor.Predict(ctx, req)
	elapsed := time.Since(start).Seconds()
	if err == nil && strings.TrimSpace(out) == "" {
		err = llm.ErrEmptyResponse
	}

	s.mu.Lock()
	s.generating = false
	ev := StatusEvent{Trigger: trigger, Style: settings.Style, ModelID: settings.ModelID}
	if err == nil {
		s.minutes = strings.TrimSpace(out)
		s.generatedAt = time.Now()
		s.lastProcessed = text
		ev.Status = StatusSuccess
		ev.Minutes = s.minutes
		ev.GeneratedAt = s.generatedAt
	} else {
		err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		ev.Status = StatusError
		ev.Err = err
	}
	listeners := append([]StatusFunc(nil), s.listeners...)
	s.mu.Unlock()

	if err != nil {
		s.metrics.RecordMinutes(string(trigger), "failed", elapsed)
		s.logger.Error().Err(err).Str("trigger", string(trigger)).Str("modelId", settings.ModelID).Msg("Minutes generation failed")
	} else {
		s.metrics.RecordMinutes(string(trigger), "success", elapsed)
		s.logger.Info().
			Str("trigger", string(trigger)).
			Str("style", string(settings.Style)).
			Float64("latencySec", elapsed).
			Msg("Minutes generated")
	}

	for _, fn := range listeners {
		fn(ev)
	}
	return err
}

func (s *Scheduler) realtimeText() string {
	if s.realtime == nil {
		return ""
	}
	return s.realtime()
}

func (s *Scheduler) inputText(settings Settings) string {
	switch settings.InputMethod {
	case InputDirect:
		return settings.DirectText
	case InputFile:
		return settings.FileText
	default:
		return s.realtimeText()
	}
}

// Minutes returns the latest generated minutes.
func (s *Scheduler) Minutes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minutes
}

// GeneratedAt returns when the latest minutes were generated.
func (s *Scheduler) GeneratedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generatedAt
}

// IsGenerating reports whether a generation is in flight.
func (s *Scheduler) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// Countdown returns the seconds left until the next automatic generation, or
// 0 when automatic generation is off.
func (s *Scheduler) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

// AutoGenerate reports whether automatic generation is enabled.
func (s *Scheduler) AutoGenerate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoGenerate
}

// Clear discards generated minutes and the last processed transcript.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minutes = ""
	s.generatedAt = time.Time{}
	s.lastProcessed = ""
}
