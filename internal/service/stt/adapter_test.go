package stt

import (
	"reflect"
	"testing"

	"meeting-minutes-service/internal/models"
)

func TestGroupBySpeaker(t *testing.T) {
	tests := []struct {
		name     string
		words    []Word
		expected []models.Fragment
	}{
		{
			name:     "empty",
			words:    nil,
			expected: nil,
		},
		{
			name: "single speaker with punctuation",
			words: []Word{
				{Speaker: "spk_0", Text: "Hello"},
				{Speaker: "spk_0", Text: "team"},
				{Text: ".", Punctuation: true},
			},
			expected: []models.Fragment{{SpeakerLabel: "spk_0", Transcript: "Hello team."}},
		},
		{
			name: "speaker change",
			words: []Word{
				{Speaker: "spk_0", Text: "Ready"},
				{Text: "?", Punctuation: true},
				{Speaker: "spk_1", Text: "Yes"},
				{Speaker: "spk_0", Text: "Good"},
			},
			expected: []models.Fragment{
				{SpeakerLabel: "spk_0", Transcript: "Ready?"},
				{SpeakerLabel: "spk_1", Transcript: "Yes"},
				{SpeakerLabel: "spk_0", Transcript: "Good"},
			},
		},
		{
			name:     "unlabeled",
			words:    []Word{{Text: "no"}, {Text: "labels"}},
			expected: []models.Fragment{{Transcript: "no labels"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GroupBySpeaker(tt.words)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestStartOptions_IdentifyLanguage(t *testing.T) {
	tests := []struct {
		code     string
		expected bool
	}{
		{"", true},
		{"auto", true},
		{"AUTO", true},
		{"ja-JP", false},
	}

	for _, tt := range tests {
		if got := (StartOptions{LanguageCode: tt.code}).IdentifyLanguage(); got != tt.expected {
			t.Errorf("IdentifyLanguage(%q) = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestSpeakerTag(t *testing.T) {
	if got := SpeakerTag("3"); got != "spk_3" {
		t.Errorf("expected spk_3, got %s", got)
	}
}
