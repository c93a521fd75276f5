package translation

import (
	"context"
	"sync"
	"time"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/service/transcript"
)

// maxSystemHintRunes bounds the rolling system context kept from generated minutes.
const maxSystemHintRunes = 2000

// Settings controls realtime translation for one session.
type Settings struct {
	Enabled         bool   `json:"enabled"`
	ModelID         string `json:"modelId"`
	TargetLanguage  string `json:"targetLanguage"`
	UserHints       string `json:"userHints,omitempty"`
	ContextSegments int    `json:"contextSegments"`
}

// TranslatedFunc is called after a translation was attached to its segment.
type TranslatedFunc func(models.TranslationEvent)

// Watcher translates segments of one merger as they are finalized.
type Watcher struct {
	orch         *Orchestrator
	merger       *transcript.Merger
	onTranslated TranslatedFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.RWMutex
	settings    Settings
	systemHints string

	unsubscribe func()
}

// Watch starts translating finalized segments of m. Translations are applied
// through Merger.AttachTranslation, so results for segments cleared in the
// meantime are dropped. onTranslated may be nil.
func (o *Orchestrator) Watch(ctx context.Context, m *transcript.Merger, settings Settings, onTranslated TranslatedFunc) *Watcher {
	wctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		orch:         o,
		merger:       m,
		onTranslated: onTranslated,
		ctx:          wctx,
		cancel:       cancel,
		settings:     o.normalize(settings),
	}
	w.unsubscribe = m.Subscribe(w.handle)
	return w
}

func (o *Orchestrator) normalize(s Settings) Settings {
	if s.ModelID == "" {
		s.ModelID = o.DefaultModel()
	}
	if s.TargetLanguage == "" {
		s.TargetLanguage = DefaultTargetLanguage
	}
	if s.ContextSegments < 0 {
		s.ContextSegments = 0
	}
	return s
}

// Update replaces the session settings.
func (w *Watcher) Update(settings Settings) {
	settings = w.orch.normalize(settings)
	w.mu.Lock()
	w.settings = settings
	w.mu.Unlock()
}

// Settings returns the current session settings.
func (w *Watcher) Settings() Settings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.settings
}

// SetSystemHints installs rolling context, typically the latest minutes. Only
// the tail is kept.
func (w *Watcher) SetSystemHints(text string) {
	runes := []rune(text)
	if len(runes) > maxSystemHintRunes {
		runes = runes[len(runes)-maxSystemHintRunes:]
	}
	w.mu.Lock()
	w.systemHints = string(runes)
	w.mu.Unlock()
}

// Wait blocks until all started translations have finished.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Stop unsubscribes from the merger, cancels outstanding translations and
// waits for them to return.
func (w *Watcher) Stop() {
	w.unsubscribe()
	w.cancel()
	w.wg.Wait()
}

func (w *Watcher) handle(c transcript.Change) {
	if c.Kind != transcript.ChangeFinalized {
		return
	}
	if w.ctx.Err() != nil {
		return
	}

	w.mu.RLock()
	settings := w.settings
	hints := Hints{User: settings.UserHints, System: w.systemHints}
	w.mu.RUnlock()

	if !settings.Enabled {
		return
	}

	seg := c.Segment
	text := seg.Text()
	hints.Recent = w.recentContext(text, settings.ContextSegments)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.translate(seg, text, settings, hints)
	}()
}

func (w *Watcher) recentContext(current string, n int) []string {
	if n <= 0 {
		return nil
	}
	recent := w.merger.RecentFinalTexts(n + 1)
	if len(recent) > 0 && recent[len(recent)-1] == current {
		recent = recent[:len(recent)-1]
	}
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	return recent
}

func (w *Watcher) translate(seg models.Segment, text string, settings Settings, hints Hints) {
	key := seg.Key()
	translated, ok := w.orch.RequestTranslation(w.ctx, key.String(), text, settings.ModelID, settings.TargetLanguage, hints)
	if !ok {
		return
	}
	if !w.merger.AttachTranslation(key, translated) {
		logger := logging.WithSegment(w.merger.SessionKey(), string(seg.Source), seg.ResultID)
		logger.Debug().
			Str("modelId", settings.ModelID).
			Msg("Translation dropped, segment no longer eligible")
		return
	}
	if w.onTranslated != nil {
		w.onTranslated(models.TranslationEvent{
			EventType:      models.EventTranslation,
			SessionKey:     w.merger.SessionKey(),
			SegmentID:      key.String(),
			ModelID:        settings.ModelID,
			TargetLanguage: settings.TargetLanguage,
			Text:           translated,
			Timestamp:      time.Now().UnixMilli(),
		})
	}
}
