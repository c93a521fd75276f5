// Package stt defines the interface for streaming Speech-to-Text adapters.
package stt

import (
	"context"
	"fmt"
	"strings"

	"meeting-minutes-service/internal/models"
)

// Result is one recognition result. Partial results for the same utterance
// share a ResultID; the last one for an utterance has IsPartial false.
type Result struct {
	ResultID   string
	StartTime  float64
	EndTime    float64
	IsPartial  bool
	Fragments  []models.Fragment
	Confidence float64
}

// Callback receives recognition results from the STT provider.
type Callback interface {
	// OnResult is called for every partial and final result.
	OnResult(r Result)

	// OnError is called when the recognition stream fails.
	OnError(err error)
}

// StartOptions tunes one recognition session.
type StartOptions struct {
	// LanguageCode is a BCP-47 code; "" or "auto" asks for language identification.
	LanguageCode        string
	EnableSpeakerLabels bool
	MaxSpeakers         int
	SampleRateHz        int
	AudioEncoding       string
	InterimResults      bool
}

// IdentifyLanguage reports whether the language should be detected.
func (o StartOptions) IdentifyLanguage() bool {
	code := strings.TrimSpace(o.LanguageCode)
	return code == "" || strings.EqualFold(code, "auto")
}

// Adapter defines the interface for STT providers (mock, Google, AWS).
type Adapter interface {
	// Start begins a streaming transcription session. Results are delivered
	// to cb from a provider goroutine until Close or a stream error.
	Start(ctx context.Context, opts StartOptions, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}

// Factory creates a fresh adapter for one audio source.
type Factory func(ctx context.Context) (Adapter, error)

// SpeakerTag returns the speaker label used for provider speaker id.
func SpeakerTag(id string) string {
	return fmt.Sprintf("spk_%s", id)
}

// Word is one recognized word with its speaker.
type Word struct {
	Speaker string
	Text    string
	// Punctuation words attach to the previous word without a space.
	Punctuation bool
}

// GroupBySpeaker joins consecutive words of the same speaker into fragments.
// An empty Speaker leaves the fragment unlabeled.
func GroupBySpeaker(words []Word) []models.Fragment {
	var (
		out     []models.Fragment
		current strings.Builder
		speaker string
		open    bool
	)
	flush := func() {
		if open && current.Len() > 0 {
			out = append(out, models.Fragment{SpeakerLabel: speaker, Transcript: current.String()})
		}
		current.Reset()
	}

	for _, w := range words {
		if w.Text == "" {
			continue
		}
		if !w.Punctuation && (!open || w.Speaker != speaker) {
			flush()
			speaker = w.Speaker
			open = true
		}
		if !open {
			open = true
			speaker = w.Speaker
		}
		if current.Len() > 0 && !w.Punctuation {
			current.WriteByte(' ')
		}
		current.WriteString(w.Text)
	}
	flush()
	return out
}
