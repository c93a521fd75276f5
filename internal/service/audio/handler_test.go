package audio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/segment"
	"meeting-minutes-service/internal/service/stt"
	"meeting-minutes-service/internal/service/stt/mock"
	"meeting-minutes-service/internal/service/transcript"
)

// testAdapter implements stt.Adapter for testing
type testAdapter struct {
	started bool
	closed  bool
	opts    stt.StartOptions
	audio   [][]byte
	cb      stt.Callback
	// onClose is delivered to the callback while closing.
	onClose []stt.Result
}

func (a *testAdapter) Start(ctx context.Context, opts stt.StartOptions, cb stt.Callback) error {
	a.started = true
	a.opts = opts
	a.cb = cb
	return nil
}

func (a *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	a.audio = append(a.audio, audio)
	return nil
}

func (a *testAdapter) Close() error {
	a.closed = true
	for _, r := range a.onClose {
		a.cb.OnResult(r)
	}
	return nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu       sync.Mutex
	partials []models.SegmentEvent
	finals   []models.SegmentEvent
}

func (p *recordingPublisher) PublishPartial(ctx context.Context, key string, ev models.SegmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partials = append(p.partials, ev)
	return nil
}

func (p *recordingPublisher) PublishFinal(ctx context.Context, key string, ev models.SegmentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, ev)
	return nil
}

func result(id string, partial bool, text string) stt.Result {
	return stt.Result{ResultID: id, StartTime: 1, EndTime: 2, IsPartial: partial, Fragments: []models.Fragment{{Transcript: text}}}
}

func newTestHandler(t *testing.T, source models.Source, limits SegmentLimits) (*Handler, *testAdapter, *transcript.Merger, *recordingPublisher) {
	t.Helper()
	adapter := &testAdapter{}
	merger := transcript.NewMerger("session-1")
	pub := &recordingPublisher{}
	h := NewHandler(Config{
		Source:    source,
		Provider:  "test",
		Adapter:   adapter,
		Merger:    merger,
		Sessions:  segment.New(),
		Publisher: pub,
		Limits:    limits,
	})
	if err := h.Start(context.Background(), stt.StartOptions{LanguageCode: "en-US"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return h, adapter, merger, pub
}

func TestHandler_StampsSourceAndSession(t *testing.T) {
	adapter := &testAdapter{}
	merger := transcript.NewMerger("session-1")
	sessions := segment.New()
	sessions.Next()
	sessions.Next()

	h := NewHandler(Config{Source: models.SourceScreen, Adapter: adapter, Merger: merger, Sessions: sessions})
	h.Start(context.Background(), stt.StartOptions{})

	adapter.cb.OnResult(result("r1", false, "shared screen audio"))

	seg, ok := merger.Segment(models.SegmentKey{ResultID: "r1", Source: models.SourceScreen})
	if !ok {
		t.Fatal("expected segment to be merged under the screen source")
	}
	if seg.SessionID != 2 {
		t.Errorf("expected session 2, got %d", seg.SessionID)
	}
}

func TestHandler_PublishesPartialAndFinal(t *testing.T) {
	_, adapter, merger, pub := newTestHandler(t, models.SourceMicrophone, DefaultLimits())

	adapter.cb.OnResult(result("r1", true, "hel"))
	adapter.cb.OnResult(result("r1", false, "hello"))

	if len(pub.partials) != 1 || len(pub.finals) != 1 {
		t.Fatalf("expected 1 partial and 1 final, got %d %d", len(pub.partials), len(pub.finals))
	}
	final := pub.finals[0]
	if final.EventType != models.EventTranscriptFinal || final.SegmentID != "microphone-r1" || final.Text != "hello" || final.SessionKey != "session-1" {
		t.Errorf("unexpected final event %+v", final)
	}
	if pub.partials[0].EventType != models.EventTranscriptPartial {
		t.Errorf("unexpected partial event type %s", pub.partials[0].EventType)
	}
	if merger.Len() != 1 || strings.Contains(merger.Render(), transcript.PartialIndicator) {
		t.Errorf("expected one final segment, got %q", merger.Render())
	}
}

func TestHandler_RejectsInvalidResults(t *testing.T) {
	_, adapter, merger, pub := newTestHandler(t, models.SourceMicrophone, DefaultLimits())

	adapter.cb.OnResult(result("", false, "no id"))
	bad := result("r2", false, "backwards")
	bad.StartTime, bad.EndTime = 5, 1
	adapter.cb.OnResult(bad)

	if merger.Len() != 0 || len(pub.finals) != 0 {
		t.Errorf("expected invalid results to be rejected, got %d segments", merger.Len())
	}
}

func TestHandler_MaxAudioBytesLimit(t *testing.T) {
	h, adapter, _, _ := newTestHandler(t, models.SourceMicrophone, SegmentLimits{
		MaxAudioBytes: 100,
		MaxDuration:   time.Hour,
		MaxPartials:   1000,
	})
	ctx := context.Background()

	if err := h.SendAudio(ctx, make([]byte, 50)); err != nil {
		t.Fatalf("first send should succeed: %v", err)
	}

	err := h.SendAudio(ctx, make([]byte, 60))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if !h.IsStopped() || !adapter.closed {
		t.Error("expected source to be stopped after exceeding limit")
	}
	if len(adapter.audio) != 1 {
		t.Errorf("expected only the first chunk forwarded, got %d", len(adapter.audio))
	}

	if err := h.SendAudio(ctx, []byte{1}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after stop, got %v", err)
	}
}

func TestHandler_MaxDurationLimit(t *testing.T) {
	h, _, _, _ := newTestHandler(t, models.SourceMicrophone, SegmentLimits{MaxDuration: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	if err := h.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestHandler_MaxPartialsLimit(t *testing.T) {
	_, adapter, merger, pub := newTestHandler(t, models.SourceMicrophone, SegmentLimits{MaxPartials: 2})

	adapter.cb.OnResult(result("r1", true, "a"))
	adapter.cb.OnResult(result("r1", true, "a b"))
	adapter.cb.OnResult(result("r1", true, "a b c"))

	seg, _ := merger.Segment(models.SegmentKey{ResultID: "r1", Source: models.SourceMicrophone})
	if seg.Text() != "a b" {
		t.Errorf("expected excess partial dropped, got %q", seg.Text())
	}

	adapter.cb.OnResult(result("r1", false, "a b c d"))
	seg, _ = merger.Segment(models.SegmentKey{ResultID: "r1", Source: models.SourceMicrophone})
	if seg.IsPartial || seg.Text() != "a b c d" {
		t.Errorf("expected final accepted past the partial limit, got %+v", seg)
	}
	if len(pub.partials) != 2 {
		t.Errorf("expected 2 published partials, got %d", len(pub.partials))
	}
}

func TestHandler_ClearBufferResetsCounters(t *testing.T) {
	h, adapter, _, _ := newTestHandler(t, models.SourceMicrophone, SegmentLimits{MaxPartials: 1, MaxAudioBytes: 10})

	adapter.cb.OnResult(result("r1", true, "a"))
	h.SendAudio(context.Background(), make([]byte, 8))
	if u := h.Usage(); u.OpenResults != 1 || u.AudioBytes != 8 {
		t.Fatalf("unexpected usage %+v", u)
	}

	h.ClearBuffer()
	if u := h.Usage(); u.OpenResults != 0 || u.AudioBytes != 0 {
		t.Errorf("expected counters reset, got %+v", u)
	}
	if err := h.SendAudio(context.Background(), make([]byte, 8)); err != nil {
		t.Errorf("expected send to succeed after clear, got %v", err)
	}
}

func TestHandler_StopKeepsMergedStateAndFlushedFinal(t *testing.T) {
	h, adapter, merger, _ := newTestHandler(t, models.SourceMicrophone, DefaultLimits())
	adapter.onClose = []stt.Result{result("r1", false, "flushed on close")}

	adapter.cb.OnResult(result("r0", false, "before stop"))
	if err := h.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adapter.cb.OnResult(result("r2", false, "after stop"))

	if merger.Len() != 2 {
		t.Errorf("expected 2 segments (before stop and flushed), got %d", merger.Len())
	}
	if strings.Contains(merger.Render(), "after stop") {
		t.Error("expected results after stop to be ignored")
	}
	if err := h.Stop(); err != nil {
		t.Errorf("expected idempotent stop, got %v", err)
	}
}

func TestHandler_StartTwice(t *testing.T) {
	h, _, _, _ := newTestHandler(t, models.SourceMicrophone, DefaultLimits())
	if err := h.Start(context.Background(), stt.StartOptions{}); err == nil {
		t.Error("expected error starting twice")
	}
}

func TestHandler_TwoSourcesWithMockAdapters(t *testing.T) {
	merger := transcript.NewMerger("session-1")
	sessions := segment.New()

	var handlers []*Handler
	for _, src := range []models.Source{models.SourceMicrophone, models.SourceScreen} {
		adapter := mock.New()
		adapter.Delay = 0
		h := NewHandler(Config{Source: src, Provider: "mock", Adapter: adapter, Merger: merger, Sessions: sessions})
		if err := h.Start(context.Background(), stt.StartOptions{EnableSpeakerLabels: true}); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		handlers = append(handlers, h)
	}

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h *Handler) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				h.SendAudio(context.Background(), make([]byte, 320))
			}
			h.Stop()
		}(h)
	}
	wg.Wait()

	var mic, screen int
	for _, seg := range merger.Segments() {
		if seg.IsPartial {
			t.Errorf("expected all segments final after stop, got partial %s", seg.Key())
		}
		switch seg.Source {
		case models.SourceMicrophone:
			mic++
		case models.SourceScreen:
			screen++
		}
	}
	if mic == 0 || mic != screen {
		t.Errorf("expected equal segment counts per source, got mic=%d screen=%d", mic, screen)
	}
	if !strings.Contains(merger.Render(), "spk_0: ") {
		t.Errorf("expected speaker labels in render, got %q", merger.Render())
	}
}
