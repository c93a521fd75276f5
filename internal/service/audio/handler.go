// Package audio provides the per-source audio stream handler that couples an
// STT adapter to the transcript merger and the event publisher.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/observability/metrics"
	"meeting-minutes-service/internal/schema"
	"meeting-minutes-service/internal/service/segment"
	"meeting-minutes-service/internal/service/stt"
	"meeting-minutes-service/internal/service/transcript"
)

var (
	// ErrStopped is returned when audio is sent to a stopped handler.
	ErrStopped = errors.New("audio source stopped")
	// ErrLimitExceeded is returned when a source limit is exceeded.
	ErrLimitExceeded = errors.New("source limit exceeded")
)

// SegmentLimits defines safety guardrails for one audio source.
// These prevent unbounded resource usage and ensure backpressure.
type SegmentLimits struct {
	MaxAudioBytes int64         // Max audio accepted per source run
	MaxDuration   time.Duration // Max source run duration
	MaxPartials   int           // Max partial revisions per result
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() SegmentLimits {
	return SegmentLimits{
		MaxAudioBytes: 512 * 1024 * 1024, // ~4.6 hours at 16kHz 16-bit mono
		MaxDuration:   4 * time.Hour,
		MaxPartials:   500,
	}
}

// Publisher receives segment events.
type Publisher interface {
	PublishPartial(ctx context.Context, key string, ev models.SegmentEvent) error
	PublishFinal(ctx context.Context, key string, ev models.SegmentEvent) error
}

// Config wires a Handler.
type Config struct {
	Source    models.Source
	Provider  string
	Adapter   stt.Adapter
	Merger    *transcript.Merger
	Sessions  *segment.SessionCounter
	Publisher Publisher
	Limits    SegmentLimits
}

// Handler manages one audio source of a meeting session.
// It implements stt.Callback: every result is stamped with the source and
// the current recording session, validated and upserted into the merger.
type Handler struct {
	source    models.Source
	provider  string
	adapter   stt.Adapter
	merger    *transcript.Merger
	sessions  *segment.SessionCounter
	publisher Publisher
	validator *schema.Validator
	limits    SegmentLimits
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu         sync.RWMutex
	started    bool
	closing    bool
	stopped    bool
	startTime  time.Time
	audioBytes int64
	partials   map[string]int
	finals     int
}

// NewHandler creates a handler recording to the default metrics.
func NewHandler(cfg Config) *Handler {
	return NewHandlerWithMetrics(cfg, metrics.DefaultMetrics)
}

// NewHandlerWithMetrics creates a handler recording to m.
func NewHandlerWithMetrics(cfg Config, m *metrics.Metrics) *Handler {
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = segment.New()
	}
	return &Handler{
		source:    cfg.Source,
		provider:  cfg.Provider,
		adapter:   cfg.Adapter,
		merger:    cfg.Merger,
		sessions:  sessions,
		publisher: cfg.Publisher,
		validator: schema.New(),
		limits:    cfg.Limits,
		metrics:   m,
		logger:    logging.WithSource(cfg.Merger.SessionKey(), string(cfg.Source), cfg.Provider),
		partials:  make(map[string]int),
	}
}

// Source returns the audio source this handler serves.
func (h *Handler) Source() models.Source {
	return h.source
}

// Start begins the STT session with this handler as the callback receiver.
func (h *Handler) Start(ctx context.Context, opts stt.StartOptions) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("%s source already started", h.source)
	}
	h.started = true
	h.startTime = time.Now()
	h.mu.Unlock()

	if err := h.adapter.Start(ctx, opts, h); err != nil {
		h.metrics.RecordSTTError(h.provider, string(h.source))
		return fmt.Errorf("start %s recognition: %w", h.source, err)
	}
	h.metrics.RecordStreamStart()
	h.logger.Info().
		Str("languageCode", opts.LanguageCode).
		Bool("speakerLabels", opts.EnableSpeakerLabels).
		Int("sessionId", h.sessions.Current()).
		Msg("Audio source started")
	return nil
}

// SendAudio forwards audio bytes to the STT adapter. Exceeding a byte or
// duration limit stops the source and returns an error wrapping
// ErrLimitExceeded.
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	if h.closing || h.stopped {
		h.mu.Unlock()
		return ErrStopped
	}
	h.audioBytes += int64(len(audio))
	currentBytes := h.audioBytes
	startTime := h.startTime
	h.mu.Unlock()

	h.metrics.RecordAudioReceived(string(h.source), len(audio))

	if h.limits.MaxAudioBytes > 0 && currentBytes > h.limits.MaxAudioBytes {
		return h.exceeded(ctx, "audio_bytes", fmt.Sprintf("max audio bytes exceeded: %d > %d", currentBytes, h.limits.MaxAudioBytes))
	}
	if h.limits.MaxDuration > 0 && !startTime.IsZero() && time.Since(startTime) > h.limits.MaxDuration {
		return h.exceeded(ctx, "duration", fmt.Sprintf("max duration exceeded: %v > %v", time.Since(startTime).Round(time.Second), h.limits.MaxDuration))
	}

	return h.adapter.SendAudio(ctx, audio)
}

func (h *Handler) exceeded(ctx context.Context, limitType, reason string) error {
	h.metrics.RecordLimitExceeded(limitType)
	h.logger.Warn().Str("reason", reason).Msg("Source limit exceeded, stopping source")
	if err := h.Stop(); err != nil {
		h.logger.Error().Err(err).Msg("Failed to stop source")
	}
	return fmt.Errorf("%w: %s", ErrLimitExceeded, reason)
}

// Stop ends the STT session. Results the provider flushes while closing are
// still merged; later results are ignored. Merged state is left untouched.
func (h *Handler) Stop() error {
	h.mu.Lock()
	if h.closing || h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.closing = true
	started := h.started
	startTime := h.startTime
	h.mu.Unlock()

	var err error
	if started {
		err = h.adapter.Close()
		h.metrics.RecordStreamEnd(err == nil, time.Since(startTime).Seconds())
	}

	h.mu.Lock()
	h.stopped = true
	finals := h.finals
	h.mu.Unlock()

	h.logger.Info().Int("finals", finals).Msg("Audio source stopped")
	return err
}

// IsStopped reports whether Stop has completed.
func (h *Handler) IsStopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

// ClearBuffer resets the per-result partial counters and the byte and
// duration accounting, used when the transcript is cleared mid-recording.
func (h *Handler) ClearBuffer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.partials = make(map[string]int)
	h.audioBytes = 0
	if h.started {
		h.startTime = time.Now()
	}
}

// Usage holds current source usage for observability.
type Usage struct {
	AudioBytes  int64
	OpenResults int
	Finals      int
	Duration    time.Duration
}

// Usage returns current source usage.
func (h *Handler) Usage() Usage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u := Usage{
		AudioBytes:  h.audioBytes,
		OpenResults: len(h.partials),
		Finals:      h.finals,
	}
	if !h.startTime.IsZero() {
		u.Duration = time.Since(h.startTime)
	}
	return u
}

// --- stt.Callback implementation ---

// OnResult merges one recognition result. Partials beyond MaxPartials for a
// result are dropped; the result's final is still accepted.
func (h *Handler) OnResult(r stt.Result) {
	seg := models.Segment{
		ResultID:    r.ResultID,
		Source:      h.source,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		IsPartial:   r.IsPartial,
		Transcripts: r.Fragments,
		SessionID:   h.sessions.Current(),
	}

	if err := h.validator.Validate(seg); err != nil {
		h.metrics.RecordSegmentRejected(schema.Reason(err))
		return
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if seg.IsPartial {
		h.partials[seg.ResultID]++
		if h.limits.MaxPartials > 0 && h.partials[seg.ResultID] > h.limits.MaxPartials {
			h.mu.Unlock()
			h.metrics.RecordLimitExceeded("partials")
			h.logger.Debug().Str("resultId", seg.ResultID).Msg("Partial dropped, revision limit reached")
			return
		}
	} else {
		delete(h.partials, seg.ResultID)
		h.finals++
	}
	h.mu.Unlock()

	h.merger.Upsert(seg)
	h.publish(seg)
}

// OnError is called when the recognition stream fails. Merged segments are
// kept; the source must be restarted to continue.
func (h *Handler) OnError(err error) {
	h.metrics.RecordSTTError(h.provider, string(h.source))
	h.logger.Error().Err(err).Msg("STT stream error")
}

func (h *Handler) publish(seg models.Segment) {
	if h.publisher == nil {
		return
	}
	ev := models.SegmentEvent{
		EventType:   models.EventTranscriptPartial,
		SessionKey:  h.merger.SessionKey(),
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

	ctx := context.Background()
	var err error
	if seg.IsPartial {
		err = h.publisher.PublishPartial(ctx, ev.SessionKey, ev)
	} else {
		ev.EventType = models.EventTranscriptFinal
		err = h.publisher.PublishFinal(ctx, ev.SessionKey, ev)
	}
	if err != nil {
		h.logger.Error().Err(err).Str("segmentId", ev.SegmentID).Str("eventType", ev.EventType).Msg("Failed to publish segment event")
	}
}
