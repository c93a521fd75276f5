package filetranscribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/stt"
	"meeting-minutes-service/internal/service/transcript"
)

// ErrEmptyTranscript is returned when the job result holds no transcript.
var ErrEmptyTranscript = errors.New("no transcript found in result")

// jobOutput is the JSON document Transcribe writes to the output bucket.
type jobOutput struct {
	JobName string `json:"jobName"`
	Status  string `json:"status"`
	Results struct {
		LanguageCode string `json:"language_code"`
		Transcripts  []struct {
			Transcript string `json:"transcript"`
		} `json:"transcripts"`
		Items []item `json:"items"`
	} `json:"results"`
}

type item struct {
	StartTime    string `json:"start_time,omitempty"`
	EndTime      string `json:"end_time,omitempty"`
	Type         string `json:"type"`
	SpeakerLabel string `json:"speaker_label,omitempty"`
	Alternatives []struct {
		Confidence string `json:"confidence"`
		Content    string `json:"content"`
	} `json:"alternatives"`
}

// Result is a parsed batch transcription.
type Result struct {
	LanguageCode string
	Duration     float64
	Fragments    []models.Fragment
}

// Text renders the fragments as "speaker: text" lines.
func (r Result) Text() string {
	return transcript.FormatPlain(r.Fragments, nil)
}

// ParseResult decodes a Transcribe job output document. Consecutive words of
// one speaker become one fragment; without speaker labels the whole
// transcript is one unlabeled fragment.
func ParseResult(r io.Reader) (Result, error) {
	var out jobOutput
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode transcript: %w", err)
	}

	res := Result{LanguageCode: out.Results.LanguageCode}
	words := make([]stt.Word, 0, len(out.Results.Items))
	labeled := false
	for _, it := range out.Results.Items {
		if len(it.Alternatives) == 0 {
			continue
		}
		if end, err := strconv.ParseFloat(it.EndTime, 64); err == nil && end > res.Duration {
			res.Duration = end
		}
		w := stt.Word{
			Text:        it.Alternatives[0].Content,
			Punctuation: it.Type == "punctuation",
		}
		if it.SpeakerLabel != "" {
			w.Speaker = it.SpeakerLabel
			labeled = true
		}
		words = append(words, w)
	}

	if labeled {
		res.Fragments = stt.GroupBySpeaker(words)
		return res, nil
	}
	if len(out.Results.Transcripts) == 0 || out.Results.Transcripts[0].Transcript == "" {
		return Result{}, ErrEmptyTranscript
	}
	res.Fragments = []models.Fragment{{Transcript: out.Results.Transcripts[0].Transcript}}
	return res, nil
}
