package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/config"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/schema"
	"meeting-minutes-service/internal/service/audio"
	"meeting-minutes-service/internal/service/minutes"
	"meeting-minutes-service/internal/service/segment"
	"meeting-minutes-service/internal/service/stt"
	"meeting-minutes-service/internal/service/transcript"
	"meeting-minutes-service/internal/service/translation"
)

var (
	ErrInvalidSource      = errors.New("invalid audio source")
	ErrSourceActive       = errors.New("audio source already active")
	ErrSourceNotStarted   = errors.New("audio source not started")
	ErrNoSTT              = errors.New("speech-to-text not configured")
	ErrNoPredictor        = errors.New("inference not configured")
	ErrSegmentNotFound    = errors.New("segment not found")
	ErrTranslationSkipped = errors.New("translation skipped")
)

// Session is one meeting: the merged transcript of its audio sources, its
// minutes and its realtime translation.
type Session struct {
	key       string
	createdAt time.Time
	cfg       *config.Configuration
	deps      Dependencies
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	merger    *transcript.Merger
	counter   *segment.SessionCounter
	validator *schema.Validator
	minutes   *minutes.Scheduler
	watcher   *translation.Watcher

	mu      sync.Mutex
	sources map[models.Source]*audio.Handler

	listenersMu  sync.Mutex
	listeners    map[int]minutes.StatusFunc
	nextListener int
}

func newSession(key string, cfg *config.Configuration, deps Dependencies) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		key:       key,
		createdAt: time.Now().UTC(),
		cfg:       cfg,
		deps:      deps,
		logger:    logging.WithSession("session", key),
		ctx:       ctx,
		cancel:    cancel,
		merger:    transcript.NewMerger(key),
		counter:   segment.New(),
		validator: schema.New(),
		sources:   make(map[models.Source]*audio.Handler),
		listeners: make(map[int]minutes.StatusFunc),
	}

	if deps.Predictor != nil {
		sched, err := minutes.NewScheduler(deps.Predictor, s.merger.Render, minutes.Config{
			SessionKey: key,
			Settings: minutes.Settings{
				ModelID: cfg.Minutes.ModelID,
				Style:   minutes.Style(cfg.Minutes.Style),
			},
			MaxPromptTokens: cfg.Minutes.MaxPromptTokens,
			Counter:         deps.Tokens,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("minutes scheduler: %w", err)
		}
		sched.OnStatus(s.onMinutes)
		s.minutes = sched
	}

	if deps.Translator != nil {
		s.watcher = deps.Translator.Watch(ctx, s.merger, translation.Settings{
			TargetLanguage:  cfg.Translation.TargetLanguage,
			ContextSegments: cfg.Translation.ContextSegments,
		}, s.onTranslated)
	}

	s.logger.Info().
		Bool("minutes", s.minutes != nil).
		Bool("translation", s.watcher != nil).
		Msg("Meeting session created")
	return s, nil
}

// Key returns the session key.
func (s *Session) Key() string { return s.key }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Merger returns the merged transcript of the session.
func (s *Session) Merger() *transcript.Merger { return s.merger }

// RecordingSession returns the current recording session number.
func (s *Session) RecordingSession() int { return s.counter.Current() }

// StartSource starts capturing source. The first source started while no
// other source is active begins a new recording session.
func (s *Session) StartSource(ctx context.Context, source models.Source) error {
	if !source.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	if s.deps.STT == nil {
		return ErrNoSTT
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.sources[source]; ok && !h.IsStopped() {
		return fmt.Errorf("%w: %s", ErrSourceActive, source)
	}
	if !s.anyActiveLocked() {
		s.counter.Next()
	}

	adapter, err := s.deps.STT(ctx)
	if err != nil {
		return fmt.Errorf("create %s adapter: %w", s.cfg.STT.Provider, err)
	}

	h := audio.NewHandler(audio.Config{
		Source:    source,
		Provider:  s.cfg.STT.Provider,
		Adapter:   adapter,
		Merger:    s.merger,
		Sessions:  s.counter,
		Publisher: s.deps.Publisher,
		Limits: audio.SegmentLimits{
			MaxAudioBytes: s.cfg.SegmentLimits.MaxAudioBytes,
			MaxDuration:   s.cfg.SegmentLimits.MaxDuration,
			MaxPartials:   s.cfg.SegmentLimits.MaxPartials,
		},
	})
	if err := h.Start(s.ctx, startOptions(s.cfg.STT)); err != nil {
		return err
	}
	s.sources[source] = h
	return nil
}

func startOptions(cfg config.STTConfig) stt.StartOptions {
	return stt.StartOptions{
		LanguageCode:        cfg.LanguageCode,
		EnableSpeakerLabels: cfg.SpeakerLabels,
		MaxSpeakers:         cfg.MaxSpeakers,
		SampleRateHz:        cfg.SampleRateHz,
		AudioEncoding:       cfg.AudioEncoding,
		InterimResults:      cfg.InterimResults,
	}
}

func (s *Session) anyActiveLocked() bool {
	for _, h := range s.sources {
		if !h.IsStopped() {
			return true
		}
	}
	return false
}

func (s *Session) handler(source models.Source) (*audio.Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotStarted, source)
	}
	return h, nil
}

// SendAudio forwards an audio chunk to the running source.
func (s *Session) SendAudio(ctx context.Context, source models.Source, chunk []byte) error {
	h, err := s.handler(source)
	if err != nil {
		return err
	}
	return h.SendAudio(ctx, chunk)
}

// StopSource stops capturing source. Its merged segments are kept.
func (s *Session) StopSource(source models.Source) error {
	h, err := s.handler(source)
	if err != nil {
		return err
	}
	return h.Stop()
}

// SourceUsage returns the usage of every started source.
func (s *Session) SourceUsage() map[models.Source]audio.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[models.Source]audio.Usage, len(s.sources))
	for src, h := range s.sources {
		out[src] = h.Usage()
	}
	return out
}

// PushSegment merges a segment recognized outside this process. The
// segment is validated and published like one from a local source.
func (s *Session) PushSegment(ctx context.Context, seg models.Segment) error {
	if err := s.validator.Validate(seg); err != nil {
		return err
	}
	s.merger.Upsert(seg)

	if s.deps.Publisher == nil {
		return nil
	}
	ev := models.SegmentEvent{
		EventType:   models.EventTranscriptPartial,
		SessionKey:  s.key,
		SegmentID:   seg.Key().String(),
		ResultID:    seg.ResultID,
		Source:      seg.Source,
		SessionID:   seg.SessionID,
		StartTime:   seg.StartTime,
		EndTime:     seg.EndTime,
		Transcripts: seg.Transcripts,
		Text:        seg.Text(),
		Timestamp:   time.Now().UnixMilli(),
	}
	if seg.IsPartial {
		return s.deps.Publisher.PublishPartial(ctx, s.key, ev)
	}
	ev.EventType = models.EventTranscriptFinal
	return s.deps.Publisher.PublishFinal(ctx, s.key, ev)
}

// ClearTranscript empties the merged transcript and resets the per-source
// counters. Running sources keep recording.
func (s *Session) ClearTranscript() {
	s.merger.Clear()
	s.mu.Lock()
	for _, h := range s.sources {
		h.ClearBuffer()
	}
	s.mu.Unlock()
}

// SetSpeakers installs display names for spk_0, spk_1, ... from a
// comma-separated list.
func (s *Session) SetSpeakers(names string) {
	s.merger.SetSpeakers(names)
}

// MinutesScheduler returns the minutes scheduler of the session.
func (s *Session) MinutesScheduler() (*minutes.Scheduler, error) {
	if s.minutes == nil {
		return nil, ErrNoPredictor
	}
	return s.minutes, nil
}

// ConfigureMinutes replaces the minutes settings and restarts automatic
// generation.
func (s *Session) ConfigureMinutes(settings minutes.Settings, autoGenerate bool, frequencyMinutes int) error {
	sched, err := s.MinutesScheduler()
	if err != nil {
		return err
	}
	if settings.ModelID == "" {
		settings.ModelID = sched.Settings().ModelID
	}
	if err := sched.UpdateSettings(settings); err != nil {
		return err
	}
	sched.Configure(autoGenerate, frequencyMinutes)
	return nil
}

// SetFileText makes text the file input of the minutes.
func (s *Session) SetFileText(text string) error {
	sched, err := s.MinutesScheduler()
	if err != nil {
		return err
	}
	settings := sched.Settings()
	settings.InputMethod = minutes.InputFile
	settings.FileText = text
	return sched.UpdateSettings(settings)
}

// OnMinutes registers fn for minutes outcomes and returns its removal.
func (s *Session) OnMinutes(fn minutes.StatusFunc) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Session) onMinutes(ev minutes.StatusEvent) {
	if ev.Status == minutes.StatusSuccess {
		if s.watcher != nil {
			s.watcher.SetSystemHints(ev.Minutes)
		}
		if s.deps.Publisher != nil {
			err := s.deps.Publisher.PublishMinutes(context.Background(), s.key, models.MinutesEvent{
				EventType:  models.EventMinutesGenerated,
				SessionKey: s.key,
				Style:      string(ev.Style),
				ModelID:    ev.ModelID,
				Minutes:    ev.Minutes,
				Timestamp:  ev.GeneratedAt.UnixMilli(),
			})
			if err != nil {
				s.logger.Error().Err(err).Msg("Failed to publish minutes")
			}
		}
	}

	s.listenersMu.Lock()
	fns := make([]minutes.StatusFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) onTranslated(ev models.TranslationEvent) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.PublishTranslation(context.Background(), s.key, ev); err != nil {
		s.logger.Error().Err(err).Str("segmentId", ev.SegmentID).Msg("Failed to publish translation")
	}
}

// TranslationWatcher returns the realtime translation watcher of the session.
func (s *Session) TranslationWatcher() (*translation.Watcher, error) {
	if s.watcher == nil {
		return nil, ErrNoPredictor
	}
	return s.watcher, nil
}

// Translate translates one merged segment on demand with modelID, or the
// session's model when blank. The translation is attached when the segment
// has none yet.
func (s *Session) Translate(ctx context.Context, key models.SegmentKey, modelID string) (string, error) {
	if s.watcher == nil {
		return "", ErrNoPredictor
	}
	seg, ok := s.merger.Segment(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSegmentNotFound, key)
	}
	settings := s.watcher.Settings()
	if modelID == "" {
		modelID = settings.ModelID
	}
	hints := translation.Hints{User: settings.UserHints}
	text, ok := s.deps.Translator.RequestTranslation(ctx, key.String(), seg.Text(), modelID, settings.TargetLanguage, hints)
	if !ok {
		return "", ErrTranslationSkipped
	}
	if s.merger.AttachTranslation(key, text) {
		s.onTranslated(models.TranslationEvent{
			EventType:      models.EventTranslation,
			SessionKey:     s.key,
			SegmentID:      key.String(),
			ModelID:        modelID,
			TargetLanguage: settings.TargetLanguage,
			Text:           text,
			Timestamp:      time.Now().UnixMilli(),
		})
	}
	return text, nil
}

// Close stops every source, the translation watcher and the minutes
// countdown. It waits for running work to return.
func (s *Session) Close() {
	s.mu.Lock()
	handlers := make([]*audio.Handler, 0, len(s.sources))
	for _, h := range s.sources {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		if err := h.Stop(); err != nil {
			s.logger.Warn().Err(err).Str("source", string(h.Source())).Msg("Failed to stop source")
		}
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.minutes != nil {
		s.minutes.Close()
	}
	s.cancel()
	s.logger.Info().Int("segments", s.merger.Len()).Msg("Meeting session closed")
}
