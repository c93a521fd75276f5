// Package models defines the data structures shared across the meeting services.
package models

import "fmt"

// Source identifies the audio capture a segment came from.
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceScreen     Source = "screen"
)

// Valid reports whether s is a known audio source.
func (s Source) Valid() bool {
	return s == SourceMicrophone || s == SourceScreen
}

// Fragment is one speaker-attributed piece of a segment.
type Fragment struct {
	SpeakerLabel string `json:"speakerLabel,omitempty"`
	Transcript   string `json:"transcript"`
}

// Segment is one unit of transcribed speech from one source. ResultID is only
// unique together with Source.
type Segment struct {
	ResultID    string     `json:"resultId"`
	Source      Source     `json:"source"`
	StartTime   float64    `json:"startTime"`
	EndTime     float64    `json:"endTime"`
	IsPartial   bool       `json:"isPartial"`
	Transcripts []Fragment `json:"transcripts"`
	SessionID   int        `json:"sessionId"`
	Translation string     `json:"translation,omitempty"`
}

// Key returns the merge key of the segment.
func (s Segment) Key() SegmentKey {
	return SegmentKey{ResultID: s.ResultID, Source: s.Source}
}

// Clone returns a deep copy of the segment.
func (s Segment) Clone() Segment {
	c := s
	if s.Transcripts != nil {
		c.Transcripts = make([]Fragment, len(s.Transcripts))
		copy(c.Transcripts, s.Transcripts)
	}
	return c
}

// Text joins the fragment transcripts of the segment with single spaces.
func (s Segment) Text() string {
	var out string
	for i, f := range s.Transcripts {
		if i > 0 {
			out += " "
		}
		out += f.Transcript
	}
	return out
}

// SegmentKey identifies a segment in merged state.
type SegmentKey struct {
	ResultID string
	Source   Source
}

// String renders the key as "<source>-<resultId>".
func (k SegmentKey) String() string {
	return fmt.Sprintf("%s-%s", k.Source, k.ResultID)
}

// SegmentEvent is published for every partial and final segment update.
type SegmentEvent struct {
	EventType   string     `json:"eventType"`
	SessionKey  string     `json:"sessionKey"`
	SegmentID   string     `json:"segmentId"`
	ResultID    string     `json:"resultId"`
	Source      Source     `json:"source"`
	SessionID   int        `json:"sessionId"`
	StartTime   float64    `json:"startTime"`
	EndTime     float64    `json:"endTime"`
	Transcripts []Fragment `json:"transcripts"`
	Text        string     `json:"text"`
	Timestamp   int64      `json:"timestamp"`
}

// Event type names used on the wire.
const (
	EventTranscriptPartial = "meeting.transcript.partial"
	EventTranscriptFinal   = "meeting.transcript.final"
	EventTranslation       = "meeting.transcript.translated"
	EventMinutesGenerated  = "meeting.minutes.generated"
)

// TranslationEvent is published when a finalized segment receives a translation.
type TranslationEvent struct {
	EventType      string `json:"eventType"`
	SessionKey     string `json:"sessionKey"`
	SegmentID      string `json:"segmentId"`
	ModelID        string `json:"modelId"`
	TargetLanguage string `json:"targetLanguage"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
}

// MinutesEvent is published after a successful minutes generation.
type MinutesEvent struct {
	EventType  string `json:"eventType"`
	SessionKey string `json:"sessionKey"`
	Style      string `json:"style"`
	ModelID    string `json:"modelId"`
	Minutes    string `json:"minutes"`
	Timestamp  int64  `json:"timestamp"`
}
