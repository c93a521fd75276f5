// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/stt"
)

// Config holds the recognition defaults of the adapter.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
	// AlternativeLanguages are considered when the session asks for language
	// identification.
	AlternativeLanguages []string
}

// DefaultConfig returns the adapter defaults.
func DefaultConfig() Config {
	return Config{
		LanguageCode:         "en-US",
		SampleRateHz:         16000,
		InterimResults:       true,
		AudioEncoding:        "LINEAR16",
		AlternativeLanguages: []string{"ja-JP"},
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	done   chan struct{}
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// Start begins a streaming recognition session, sends the initial config and
// starts delivering results to cb.
func (a *Adapter) Start(ctx context.Context, opts stt.StartOptions, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingConfig(a.cfg, opts),
		},
	}); err != nil {
		return fmt.Errorf("send streaming config: %w", err)
	}

	a.mu.Lock()
	a.stream = stream
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	go a.listen(stream, cb, done, opts.EnableSpeakerLabels)
	return nil
}

func streamingConfig(cfg Config, opts stt.StartOptions) *speechpb.StreamingRecognitionConfig {
	sampleRate := cfg.SampleRateHz
	if opts.SampleRateHz > 0 {
		sampleRate = opts.SampleRateHz
	}
	encoding := cfg.AudioEncoding
	if opts.AudioEncoding != "" {
		encoding = opts.AudioEncoding
	}

	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(encoding),
		SampleRateHertz:            int32(sampleRate),
		LanguageCode:               cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	if opts.IdentifyLanguage() {
		rc.AlternativeLanguageCodes = cfg.AlternativeLanguages
	} else {
		rc.LanguageCode = opts.LanguageCode
	}
	if opts.EnableSpeakerLabels {
		maxSpeakers := opts.MaxSpeakers
		if maxSpeakers <= 0 {
			maxSpeakers = 2
		}
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          1,
			MaxSpeakerCount:          int32(maxSpeakers),
		}
	}

	return &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: cfg.InterimResults || opts.InterimResults,
	}
}

// parseAudioEncoding maps an encoding name to the Speech enum, falling back
// to LINEAR16.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("google adapter not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close ends the streaming session and waits for the remaining results.
func (a *Adapter) Close() error {
	a.mu.Lock()
	stream, done := a.stream, a.done
	a.stream = nil
	a.mu.Unlock()

	var err error
	if stream != nil {
		err = stream.CloseSend()
		<-done
	}
	if cerr := a.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback, done chan struct{}, speakerLabels bool) {
	defer close(done)
	conv := &converter{speakerLabels: speakerLabels}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			cb.OnError(err)
			return
		}
		for _, r := range resp.Results {
			if res, ok := conv.convert(r); ok {
				cb.OnResult(res)
			}
		}
	}
}

// converter assigns result ids: Google has none, so every utterance up to
// and including its final result shares a sequence number.
type converter struct {
	speakerLabels bool
	seq           int
	lastEnd       float64
}

func (c *converter) convert(r *speechpb.StreamingRecognitionResult) (stt.Result, bool) {
	if len(r.Alternatives) == 0 {
		return stt.Result{}, false
	}
	alt := r.Alternatives[0]

	end := r.GetResultEndTime().AsDuration().Seconds()
	res := stt.Result{
		ResultID:   "g-" + strconv.Itoa(c.seq),
		StartTime:  c.lastEnd,
		EndTime:    end,
		IsPartial:  !r.IsFinal,
		Confidence: float64(alt.Confidence),
	}
	if len(alt.Words) > 0 {
		res.StartTime = alt.Words[0].GetStartTime().AsDuration().Seconds()
	}

	if c.speakerLabels && r.IsFinal && len(alt.Words) > 0 {
		words := make([]stt.Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			speaker := ""
			if w.SpeakerTag > 0 {
				speaker = stt.SpeakerTag(strconv.Itoa(int(w.SpeakerTag)))
			}
			words = append(words, stt.Word{Speaker: speaker, Text: w.Word})
		}
		res.Fragments = stt.GroupBySpeaker(words)
	} else {
		res.Fragments = fragmentsOf(alt.Transcript)
	}

	if r.IsFinal {
		c.seq++
		c.lastEnd = end
	}
	return res, true
}

func fragmentsOf(transcript string) []models.Fragment {
	if strings.TrimSpace(transcript) == "" {
		return nil
	}
	return []models.Fragment{{Transcript: strings.TrimSpace(transcript)}}
}
