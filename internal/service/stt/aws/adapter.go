// Package aws provides an Amazon Transcribe streaming adapter.
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/stt"
)

// Config holds the recognition defaults of the adapter.
type Config struct {
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	// LanguageOptions are the candidates for language identification.
	LanguageOptions []string
}

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:    "en-US",
		SampleRateHz:    16000,
		AudioEncoding:   "LINEAR16",
		LanguageOptions: []string{"en-US", "ja-JP"},
	}
}

// Adapter implements stt.Adapter using Amazon Transcribe streaming.
type Adapter struct {
	client *transcribestreaming.Client
	cfg    Config

	mu     sync.Mutex
	stream *transcribestreaming.StartStreamTranscriptionEventStream
	done   chan struct{}
}

// New creates an adapter from an AWS configuration.
func New(awsCfg aws.Config, cfg Config) *Adapter {
	return &Adapter{client: transcribestreaming.NewFromConfig(awsCfg), cfg: cfg}
}

// Start opens a transcription stream and starts delivering results to cb.
func (a *Adapter) Start(ctx context.Context, opts stt.StartOptions, cb stt.Callback) error {
	out, err := a.client.StartStreamTranscription(ctx, startInput(a.cfg, opts))
	if err != nil {
		return fmt.Errorf("start stream transcription: %w", err)
	}

	stream := out.GetStream()
	a.mu.Lock()
	a.stream = stream
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go a.listen(stream, cb, done)
	return nil
}

func startInput(cfg Config, opts stt.StartOptions) *transcribestreaming.StartStreamTranscriptionInput {
	sampleRate := cfg.SampleRateHz
	if opts.SampleRateHz > 0 {
		sampleRate = opts.SampleRateHz
	}
	encoding := cfg.AudioEncoding
	if opts.AudioEncoding != "" {
		encoding = opts.AudioEncoding
	}

	in := &transcribestreaming.StartStreamTranscriptionInput{
		MediaEncoding:        mediaEncoding(encoding),
		MediaSampleRateHertz: aws.Int32(int32(sampleRate)),
		ShowSpeakerLabel:     opts.EnableSpeakerLabels,
	}
	if opts.IdentifyLanguage() {
		in.IdentifyLanguage = true
		in.LanguageOptions = aws.String(strings.Join(cfg.LanguageOptions, ","))
	} else {
		in.LanguageCode = types.LanguageCode(opts.LanguageCode)
	}
	return in
}

func mediaEncoding(name string) types.MediaEncoding {
	switch name {
	case "OGG_OPUS":
		return types.MediaEncodingOggOpus
	case "FLAC":
		return types.MediaEncodingFlac
	default:
		return types.MediaEncodingPcm
	}
}

// SendAudio sends one audio chunk.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("aws adapter not started")
	}
	return stream.Send(ctx, &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: audio},
	})
}

// Close ends the audio stream and waits for the remaining results.
func (a *Adapter) Close() error {
	a.mu.Lock()
	stream, done := a.stream, a.done
	a.stream = nil
	a.mu.Unlock()

	if stream == nil {
		return nil
	}
	err := stream.Close()
	<-done
	return err
}

func (a *Adapter) listen(stream *transcribestreaming.StartStreamTranscriptionEventStream, cb stt.Callback, done chan struct{}) {
	defer close(done)
	for event := range stream.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || te.Value.Transcript == nil {
			continue
		}
		for _, r := range te.Value.Transcript.Results {
			if res, ok := convert(r); ok {
				cb.OnResult(res)
			}
		}
	}
	if err := stream.Err(); err != nil {
		cb.OnError(err)
	}
}

// convert maps a Transcribe result. Items carrying speaker labels are grouped
// into per-speaker fragments; otherwise the alternative transcript is used.
func convert(r types.Result) (stt.Result, bool) {
	if len(r.Alternatives) == 0 {
		return stt.Result{}, false
	}
	alt := r.Alternatives[0]

	res := stt.Result{
		ResultID:  aws.ToString(r.ResultId),
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		IsPartial: r.IsPartial,
	}

	var (
		words    []stt.Word
		labelled bool
	)
	for _, item := range alt.Items {
		w := stt.Word{
			Text:        aws.ToString(item.Content),
			Punctuation: item.Type == types.ItemTypePunctuation,
		}
		if item.Speaker != nil {
			w.Speaker = stt.SpeakerTag(*item.Speaker)
			labelled = true
		}
		words = append(words, w)
	}

	if labelled {
		res.Fragments = stt.GroupBySpeaker(words)
	} else if text := strings.TrimSpace(aws.ToString(alt.Transcript)); text != "" {
		res.Fragments = []models.Fragment{{Transcript: text}}
	}
	return res, true
}
