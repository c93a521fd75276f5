// Package mock provides a mock STT adapter for testing without cloud credentials.
// It simulates a meeting: every audio frame advances the current utterance by
// one progressive partial, the frame after the last partial produces exactly
// one final, and the next frame starts the next utterance.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Speaker    string   // Provider speaker id, labeled spk_<id> when speaker labels are on
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
	Duration   float64  // Seconds of speech
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Speaker:    "0",
		Partials:   []string{"Let's", "Let's start", "Let's start with the"},
		Final:      "Let's start with the release schedule.",
		Confidence: 0.94,
		Duration:   3.2,
	},
	{
		Speaker:    "1",
		Partials:   []string{"The beta", "The beta is", "The beta is ready"},
		Final:      "The beta is ready for review on Thursday.",
		Confidence: 0.91,
		Duration:   4.1,
	},
	{
		Speaker:    "0",
		Partials:   []string{"Great", "Great so we"},
		Final:      "Great, so we ship on Friday.",
		Confidence: 0.97,
		Duration:   2.6,
	},
	{
		Speaker:    "2",
		Partials:   []string{"I'll update", "I'll update the", "I'll update the docs"},
		Final:      "I'll update the docs before then.",
		Confidence: 0.89,
		Duration:   3.0,
	},
	{
		Speaker:    "1",
		Partials:   []string{"Sounds"},
		Final:      "Sounds good to me.",
		Confidence: 0.98,
		Duration:   1.4,
	},
}

// DefaultDelay simulates provider processing latency.
const DefaultDelay = 20 * time.Millisecond

// Adapter implements stt.Adapter with simulated responses.
type Adapter struct {
	// Delay is applied before each callback.
	Delay time.Duration

	mu           sync.Mutex
	opts         stt.StartOptions
	results      chan stt.Result
	done         chan struct{}
	utterances   []SimulatedUtterance
	index        int     // Current utterance
	partialIndex int     // Next partial to send
	offset       float64 // Start time of the current utterance
	prefix       string
	closed       bool
}

// sessionCounter gives each adapter distinct result ids.
var (
	sessionCounter int
	counterMu      sync.Mutex
)

// New creates a new mock STT adapter cycling through DefaultUtterances.
func New() *Adapter {
	return NewWithUtterances(DefaultUtterances)
}

// NewWithUtterances creates a mock adapter cycling through utterances.
func NewWithUtterances(utterances []SimulatedUtterance) *Adapter {
	counterMu.Lock()
	n := sessionCounter
	sessionCounter++
	counterMu.Unlock()

	return &Adapter{
		Delay:      DefaultDelay,
		utterances: utterances,
		prefix:     fmt.Sprintf("mock-%d", n),
	}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, opts stt.StartOptions, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.results != nil {
		return fmt.Errorf("mock adapter already started")
	}
	a.opts = opts
	a.results = make(chan stt.Result, 64)
	a.done = make(chan struct{})
	go a.emit(cb, a.results, a.done, a.Delay)
	return nil
}

func (a *Adapter) emit(cb stt.Callback, results <-chan stt.Result, done chan<- struct{}, delay time.Duration) {
	defer close(done)
	for r := range results {
		if delay > 0 {
			time.Sleep(delay)
		}
		cb.OnResult(r)
	}
}

// SendAudio simulates receiving one audio frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.results == nil || len(a.utterances) == 0 {
		return nil
	}

	utt := a.utterances[a.index%len(a.utterances)]
	if a.partialIndex < len(utt.Partials) {
		a.results <- a.result(utt, utt.Partials[a.partialIndex], true)
		a.partialIndex++
		return nil
	}

	a.results <- a.result(utt, utt.Final, false)
	a.advance(utt)
	return nil
}

func (a *Adapter) result(utt SimulatedUtterance, text string, partial bool) stt.Result {
	frag := models.Fragment{Transcript: text}
	if a.opts.EnableSpeakerLabels {
		frag.SpeakerLabel = stt.SpeakerTag(utt.Speaker)
	}
	r := stt.Result{
		ResultID:  fmt.Sprintf("%s-%d", a.prefix, a.index),
		StartTime: a.offset,
		EndTime:   a.offset + utt.Duration,
		IsPartial: partial,
		Fragments: []models.Fragment{frag},
	}
	if !partial {
		r.Confidence = utt.Confidence
	}
	return r
}

func (a *Adapter) advance(utt SimulatedUtterance) {
	a.index++
	a.partialIndex = 0
	a.offset += utt.Duration
}

// Close ends the mock session. An utterance with partials but no final yet
// is finalized first. Close waits until every result has been delivered.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true

	if a.results == nil {
		a.mu.Unlock()
		return nil
	}
	if a.partialIndex > 0 && len(a.utterances) > 0 {
		utt := a.utterances[a.index%len(a.utterances)]
		a.results <- a.result(utt, utt.Final, false)
		a.advance(utt)
	}
	close(a.results)
	done := a.done
	a.mu.Unlock()

	<-done
	return nil
}
