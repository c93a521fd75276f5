package transcript

import (
	"fmt"
	"math"
	"strings"

	"meeting-minutes-service/internal/models"
)

// PartialIndicator is appended to every line of a segment that may still be revised.
const PartialIndicator = " (...)"

// SpeakerMapping resolves raw speaker tags (spk_0, spk_1, ...) to display names.
type SpeakerMapping map[string]string

// ParseSpeakers builds a mapping from a comma-separated list of names, assigning
// the i-th name to "spk_{i}".
func ParseSpeakers(names string) SpeakerMapping {
	mapping := make(SpeakerMapping)
	for idx, name := range strings.Split(names, ",") {
		mapping[fmt.Sprintf("spk_%d", idx)] = strings.TrimSpace(name)
	}
	return mapping
}

// Resolve returns the display name for tag, or tag itself when unmapped.
func (m SpeakerMapping) Resolve(tag string) string {
	if name := m[tag]; name != "" {
		return name
	}
	return tag
}

// FormatTime renders seconds as MM:SS. Minutes are not wrapped at the hour.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%02d:%02d", mins, secs)
}

// FormatLines renders one line per fragment of seg.
func FormatLines(seg models.Segment, speakers SpeakerMapping) []string {
	if len(seg.Transcripts) == 0 {
		return nil
	}

	timeStr := "[" + FormatTime(seg.StartTime) + "]"
	suffix := ""
	if seg.IsPartial {
		suffix = PartialIndicator
	}

	lines := make([]string, 0, len(seg.Transcripts))
	for _, f := range seg.Transcripts {
		label := ""
		if f.SpeakerLabel != "" {
			label = speakers.Resolve(f.SpeakerLabel) + ": "
		}
		lines = append(lines, timeStr+" "+label+f.Transcript+suffix)
	}
	return lines
}

// FormatPlain renders fragments as "speaker: text" lines without timestamps,
// the shape used for batch transcription results.
func FormatPlain(fragments []models.Fragment, speakers SpeakerMapping) string {
	lines := make([]string, 0, len(fragments))
	for _, f := range fragments {
		label := ""
		if f.SpeakerLabel != "" {
			label = speakers.Resolve(f.SpeakerLabel) + ": "
		}
		lines = append(lines, label+f.Transcript)
	}
	return strings.Join(lines, "\n")
}
