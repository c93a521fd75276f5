// Package transcript merges concurrently arriving partial and final segments
// from several audio sources into one chronological transcript.
package transcript

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/observability/metrics"
	"meeting-minutes-service/internal/service/segment"
)

// ChangeKind describes what happened to merged state.
type ChangeKind string

const (
	ChangeUpserted   ChangeKind = "upserted"
	ChangeFinalized  ChangeKind = "finalized"
	ChangeTranslated ChangeKind = "translated"
	ChangeCleared    ChangeKind = "cleared"
)

// Change is delivered to listeners after every mutation. Segment is a copy and
// is zero for ChangeCleared.
type Change struct {
	Kind    ChangeKind
	Segment models.Segment
}

// Listener receives merged state changes. Listeners run on the mutating
// goroutine after the merger lock is released and must not call mutating
// merger methods synchronously.
type Listener func(Change)

type subscription struct {
	id int
	fn Listener
}

// Merger holds the deduplicated segment state of one meeting session.
// Thread-safe for concurrent access.
type Merger struct {
	sessionKey string
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	// notifyMu serializes mutation and notification so listeners observe
	// changes in mutation order.
	notifyMu sync.Mutex

	mu         sync.RWMutex
	segments   []models.Segment
	index      map[models.SegmentKey]int
	lifecycles map[models.SegmentKey]*segment.Lifecycle
	speakers   SpeakerMapping

	listeners []subscription
	nextID    int
}

// NewMerger creates an empty merger for a session.
func NewMerger(sessionKey string) *Merger {
	return NewMergerWithMetrics(sessionKey, metrics.DefaultMetrics)
}

// NewMergerWithMetrics creates an empty merger recording to m.
func NewMergerWithMetrics(sessionKey string, m *metrics.Metrics) *Merger {
	return &Merger{
		sessionKey: sessionKey,
		metrics:    m,
		logger:     logging.WithSession("transcript", sessionKey),
		index:      make(map[models.SegmentKey]int),
		lifecycles: make(map[models.SegmentKey]*segment.Lifecycle),
		speakers:   make(SpeakerMapping),
	}
}

// SessionKey returns the session this merger belongs to.
func (m *Merger) SessionKey() string {
	return m.sessionKey
}

// Upsert replaces the segment sharing seg's (resultId, source) key in place,
// or appends seg when the key is new.
func (m *Merger) Upsert(seg models.Segment) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	seg = seg.Clone()
	key := seg.Key()

	m.mu.Lock()
	lc, ok := m.lifecycles[key]
	if !ok {
		lc = segment.NewLifecycle(key.String())
		m.lifecycles[key] = lc
	}

	finalized := false
	if seg.IsPartial {
		if err := lc.EmitPartial(); errors.Is(err, segment.ErrRevisedAfterFinal) {
			m.logger.Debug().Str("segment", key.String()).Msg("Final segment revised by partial")
		}
	} else {
		err := lc.EmitFinal()
		switch {
		case err == nil:
			finalized = true
		case errors.Is(err, segment.ErrFinalAlreadyEmitted):
			// A repeated final keeps the translation already attached to it.
			if idx, exists := m.index[key]; exists && seg.Translation == "" {
				prev := m.segments[idx]
				if prev.Text() == seg.Text() {
					seg.Translation = prev.Translation
				}
			}
		}
	}

	if idx, exists := m.index[key]; exists {
		m.segments[idx] = seg
	} else {
		m.index[key] = len(m.segments)
		m.segments = append(m.segments, seg)
	}
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	kind := "partial"
	if !seg.IsPartial {
		kind = "final"
	}
	m.metrics.RecordSegmentUpserted(string(seg.Source), kind)
	if finalized {
		m.metrics.RecordSegmentFinalized(string(seg.Source))
	}

	notify(listeners, Change{Kind: ChangeUpserted, Segment: seg.Clone()})
	if finalized {
		notify(listeners, Change{Kind: ChangeFinalized, Segment: seg.Clone()})
	}
}

// Render returns the merged transcript, one line per fragment, ordered by
// (sessionId, startTime) with arrival order on ties.
func (m *Merger) Render() string {
	m.mu.RLock()
	sorted := m.sortedLocked()
	speakers := m.speakers
	m.mu.RUnlock()

	var lines []string
	for _, seg := range sorted {
		lines = append(lines, FormatLines(seg, speakers)...)
	}
	return strings.Join(lines, "\n")
}

// HasText reports whether the rendered transcript contains any non-blank text.
func (m *Merger) HasText() bool {
	return strings.TrimSpace(m.Render()) != ""
}

// Segments returns a sorted snapshot of merged segments.
func (m *Merger) Segments() []models.Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// Segment returns a copy of the segment stored under key.
func (m *Merger) Segment(key models.SegmentKey) (models.Segment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.index[key]
	if !ok {
		return models.Segment{}, false
	}
	return m.segments[idx].Clone(), true
}

// Len returns the number of merged segments.
func (m *Merger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.segments)
}

// RecentFinalTexts returns the text of the last n final segments in
// chronological order.
func (m *Merger) RecentFinalTexts(n int) []string {
	if n <= 0 {
		return nil
	}
	segs := m.Segments()
	var out []string
	for i := len(segs) - 1; i >= 0 && len(out) < n; i-- {
		if segs[i].IsPartial {
			continue
		}
		if text := strings.TrimSpace(segs[i].Text()); text != "" {
			out = append(out, text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// SetSpeakers installs the speaker mapping from a comma-separated name list.
func (m *Merger) SetSpeakers(names string) {
	mapping := ParseSpeakers(names)
	m.mu.Lock()
	m.speakers = mapping
	m.mu.Unlock()
}

// Speakers returns the current speaker mapping.
func (m *Merger) Speakers() SpeakerMapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.speakers
}

// AttachTranslation stores text as the translation of the segment under key.
// It applies only if the segment is still present, final and untranslated.
func (m *Merger) AttachTranslation(key models.SegmentKey, text string) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	idx, ok := m.index[key]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug().Str("segment", key.String()).Msg("Translation dropped, segment no longer present")
		return false
	}
	seg := m.segments[idx]
	if seg.IsPartial || seg.Translation != "" {
		m.mu.Unlock()
		return false
	}
	seg.Translation = text
	m.segments[idx] = seg
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	notify(listeners, Change{Kind: ChangeTranslated, Segment: seg.Clone()})
	return true
}

// Clear removes all merged segments. Session numbering is owned by the caller
// and is not affected.
func (m *Merger) Clear() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	for _, lc := range m.lifecycles {
		lc.Close()
	}
	count := len(m.segments)
	m.segments = nil
	m.index = make(map[models.SegmentKey]int)
	m.lifecycles = make(map[models.SegmentKey]*segment.Lifecycle)
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.metrics.RecordTranscriptCleared()
	m.logger.Info().Int("segments", count).Msg("Transcript cleared")

	notify(listeners, Change{Kind: ChangeCleared})
}

// Subscribe registers l for change notifications and returns a function that
// removes it.
func (m *Merger) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, subscription{id: id, fn: l})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.listeners {
			if s.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Merger) sortedLocked() []models.Segment {
	out := make([]models.Segment, len(m.segments))
	for i, seg := range m.segments {
		out[i] = seg.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SessionID != out[j].SessionID {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *Merger) snapshotListeners() []Listener {
	fns := make([]Listener, len(m.listeners))
	for i, s := range m.listeners {
		fns[i] = s.fn
	}
	return fns
}

func notify(listeners []Listener, c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
