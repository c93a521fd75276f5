package mock

import (
	"context"
	"sync"
	"testing"

	"meeting-minutes-service/internal/service/stt"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu      sync.Mutex
	results []stt.Result
	errors  []error
}

func (c *testCallback) OnResult(r stt.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func (c *testCallback) getResults() []stt.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stt.Result{}, c.results...)
}

func newStarted(t *testing.T, opts stt.StartOptions) (*Adapter, *testCallback) {
	t.Helper()
	adapter := New()
	adapter.Delay = 0
	cb := &testCallback{}
	if err := adapter.Start(context.Background(), opts, cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return adapter, cb
}

func TestAdapter_New(t *testing.T) {
	adapter := New()
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if adapter.closed {
		t.Error("expected adapter to not be closed initially")
	}
	if adapter.Delay != DefaultDelay {
		t.Errorf("expected default delay, got %v", adapter.Delay)
	}
}

func TestAdapter_Start_Twice(t *testing.T) {
	adapter, _ := newStarted(t, stt.StartOptions{})
	defer adapter.Close()

	if err := adapter.Start(context.Background(), stt.StartOptions{}, &testCallback{}); err == nil {
		t.Error("expected error on second start")
	}
}

func TestAdapter_PartialsThenOneFinal(t *testing.T) {
	adapter, cb := newStarted(t, stt.StartOptions{})

	first := DefaultUtterances[0]
	for i := 0; i <= len(first.Partials); i++ {
		if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	adapter.Close()

	results := cb.getResults()
	if len(results) != len(first.Partials)+1 {
		t.Fatalf("expected %d results, got %d", len(first.Partials)+1, len(results))
	}
	for i, r := range results[:len(first.Partials)] {
		if !r.IsPartial || r.Fragments[0].Transcript != first.Partials[i] {
			t.Errorf("result %d: expected partial %q, got %+v", i, first.Partials[i], r)
		}
		if r.ResultID != results[0].ResultID {
			t.Errorf("expected partials to share result id")
		}
	}
	final := results[len(results)-1]
	if final.IsPartial || final.Fragments[0].Transcript != first.Final || final.Confidence != first.Confidence {
		t.Errorf("unexpected final %+v", final)
	}
	if final.Fragments[0].SpeakerLabel != "" {
		t.Errorf("expected no speaker label without speaker labels, got %q", final.Fragments[0].SpeakerLabel)
	}
}

func TestAdapter_NextUtteranceAdvances(t *testing.T) {
	adapter, cb := newStarted(t, stt.StartOptions{EnableSpeakerLabels: true})

	frames := len(DefaultUtterances[0].Partials) + 2
	for i := 0; i < frames; i++ {
		adapter.SendAudio(context.Background(), []byte("audio"))
	}
	adapter.Close()

	results := cb.getResults()
	last := results[len(results)-1]
	if last.ResultID == results[0].ResultID {
		t.Error("expected second utterance to have a new result id")
	}
	if last.StartTime != DefaultUtterances[0].Duration {
		t.Errorf("expected second utterance to start at %v, got %v", DefaultUtterances[0].Duration, last.StartTime)
	}
	if last.Fragments[0].SpeakerLabel != "spk_1" {
		t.Errorf("expected spk_1, got %q", last.Fragments[0].SpeakerLabel)
	}
	if last.IsPartial {
		t.Error("expected close to finalize the utterance in progress")
	}
}

func TestAdapter_Close_Idempotent(t *testing.T) {
	adapter, _ := newStarted(t, stt.StartOptions{})

	adapter.Close()
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}

func TestAdapter_Close_WithoutAudioSendsNothing(t *testing.T) {
	adapter, cb := newStarted(t, stt.StartOptions{})
	adapter.Close()

	if n := len(cb.getResults()); n != 0 {
		t.Errorf("expected no results, got %d", n)
	}
}

func TestAdapter_SendAudio_AfterClose(t *testing.T) {
	adapter, cb := newStarted(t, stt.StartOptions{})
	adapter.Close()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len(cb.getResults()); n != 0 {
		t.Errorf("expected no results after close, got %d", n)
	}
}

func TestAdapter_NotStarted(t *testing.T) {
	adapter := New()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAdapter_ThreadSafety(t *testing.T) {
	adapter, cb := newStarted(t, stt.StartOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				adapter.SendAudio(context.Background(), []byte("audio"))
			}
		}()
	}
	wg.Wait()
	adapter.Close()

	finals := map[string]int{}
	for _, r := range cb.getResults() {
		if !r.IsPartial {
			finals[r.ResultID]++
		}
	}
	for id, n := range finals {
		if n != 1 {
			t.Errorf("expected exactly one final for %s, got %d", id, n)
		}
	}
}

func TestDefaultUtterances(t *testing.T) {
	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}
