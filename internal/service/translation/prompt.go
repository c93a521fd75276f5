package translation

import (
	"sort"
	"strings"
)

// DefaultTargetLanguage is used when a request names no target language.
const DefaultTargetLanguage = "Japanese"

const systemContext = `You are an expert simultaneous interpreter working on a live meeting.
Translate each spoken utterance accurately and naturally, keeping the speaker's meaning and tone.
Respond with the translation only, wrapped in <output></output> tags.`

var outputTags = strings.NewReplacer("<output>", "", "</output>", "", "<o>", "", "</o>", "")

// Hints is the context offered to the model alongside the sentence.
type Hints struct {
	// User is free text supplied by the meeting participant.
	User string
	// System is rolling context generated by the service, such as the latest minutes.
	System string
	// Recent holds the text of the latest finalized segments, oldest first.
	Recent []string
}

func (h Hints) render() string {
	var parts []string
	if s := strings.TrimSpace(h.User); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(h.System); s != "" {
		parts = append(parts, s)
	}
	if len(h.Recent) > 0 {
		parts = append(parts, "Recent utterances:\n"+strings.Join(h.Recent, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// TranslatePrompt builds the user prompt for translating sentence.
func TranslatePrompt(sentence, language string, hints Hints) string {
	if language == "" {
		language = DefaultTargetLanguage
	}

	var sb strings.Builder
	sb.WriteString("<input>\n")
	sb.WriteString(sentence)
	sb.WriteString("\n</input>\n")
	sb.WriteString("Translate the text in <input> into " + language + ".\n")
	if ctx := hints.render(); ctx != "" {
		sb.WriteString("<context>\n")
		sb.WriteString(ctx)
		sb.WriteString("\n</context>\n")
		sb.WriteString("Use <context> only to resolve names, terminology and abbreviations. Do not translate it.\n")
	}
	sb.WriteString("Output only the translation inside <output></output>.")
	return sb.String()
}

// SystemContext returns the system prompt for realtime translation.
func SystemContext() string {
	return systemContext
}

// StripOutputTags removes the output wrapper tags and surrounding whitespace.
func StripOutputTags(s string) string {
	return strings.TrimSpace(outputTags.Replace(s))
}

func modelRank(id string) int {
	switch {
	case strings.Contains(id, "claude-3-5-haiku"):
		return 0
	case strings.Contains(id, "nova-pro"):
		return 1
	default:
		return 2
	}
}

// SortModels orders translation models for display: Claude 3.5 Haiku first,
// then Nova Pro, then the rest lexically. The input is not modified.
func SortModels(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := modelRank(out[i]), modelRank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// DefaultModel returns the preferred translation model, or "" if ids is empty.
func DefaultModel(ids []string) string {
	sorted := SortModels(ids)
	if len(sorted) == 0 {
		return ""
	}
	return sorted[0]
}
