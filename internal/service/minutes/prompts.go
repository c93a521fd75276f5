package minutes

import (
	"fmt"
	"strings"
)

// Style selects how minutes are written.
type Style string

const (
	StyleFAQ           Style = "faq"
	StyleNewspaper     Style = "newspaper"
	StyleTranscription Style = "transcription"
	StyleCustom        Style = "custom"
)

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	switch s {
	case StyleFAQ, StyleNewspaper, StyleTranscription, StyleCustom:
		return true
	}
	return false
}

// ParseStyle parses a style name, defaulting to faq for blank input.
func ParseStyle(name string) (Style, error) {
	if strings.TrimSpace(name) == "" {
		return StyleFAQ, nil
	}
	s := Style(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStyle, name)
	}
	return s, nil
}

const faqPrompt = `You are an assistant that writes meeting minutes.
Read the meeting transcript in <transcript> and write minutes as a list of questions and answers.
Each item covers one topic that was discussed: the question the participants addressed and the answer or decision they reached.
Keep the language of the transcript. Do not invent facts that are not in the transcript.
Output only the minutes in Markdown.`

const newspaperPrompt = `You are an assistant that writes meeting minutes.
Read the meeting transcript in <transcript> and write the minutes as a newspaper article.
Start with a headline and a lead paragraph that states the most important outcome, then cover the remaining topics in order of importance.
Keep the language of the transcript. Do not invent facts that are not in the transcript.
Output only the article in Markdown.`

const transcriptionPrompt = `You are an assistant that cleans up meeting transcripts.
Rewrite the transcript in <transcript> into readable text: remove filler words, false starts and repetitions, fix obvious recognition errors and add punctuation.
Keep the speaker labels, the order of utterances and the language of the transcript. Do not summarize.
Output only the cleaned transcript.`

// SystemPrompt returns the system prompt for style. custom is used only for
// StyleCustom.
func SystemPrompt(style Style, custom string) string {
	switch style {
	case StyleNewspaper:
		return newspaperPrompt
	case StyleTranscription:
		return transcriptionPrompt
	case StyleCustom:
		return strings.TrimSpace(custom)
	default:
		return faqPrompt
	}
}

// UserPrompt wraps the transcript for the model.
func UserPrompt(transcript string) string {
	return "<transcript>\n" + transcript + "\n</transcript>"
}
