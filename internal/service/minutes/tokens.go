package minutes

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"meeting-minutes-service/internal/observability/logging"
)

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Encoding loaders, replaced in tests.
var (
	encodingForModel = tiktoken.EncodingForModel
	getEncoding      = tiktoken.GetEncoding
)

// EstimateCounter approximates four characters per token. It is used when no
// tokenizer encoding can be loaded.
type EstimateCounter struct{}

// Count returns the estimated token count of text.
func (EstimateCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// NewTokenCounter returns a tiktoken counter for model, falling back to
// cl100k_base for unknown models and to EstimateCounter when no encoding is
// available.
func NewTokenCounter(model string) TokenCounter {
	enc, err := encodingForModel(model)
	if err != nil {
		enc, err = getEncoding("cl100k_base")
		if err != nil {
			logger := logging.WithComponent("minutes")
			logger.Warn().
				Err(err).
				Str("modelId", model).
				Msg("Tokenizer unavailable, estimating prompt tokens")
			return EstimateCounter{}
		}
	}
	return tiktokenCounter{enc: enc}
}

// trimToBudget drops the oldest transcript lines until the remaining lines fit
// in budget tokens. It reports whether anything was dropped.
func trimToBudget(counter TokenCounter, transcript string, budget int) (string, bool) {
	if budget <= 0 || counter.Count(transcript) <= budget {
		return transcript, false
	}

	lines := strings.Split(transcript, "\n")
	costs := make([]int, len(lines))
	total := 0
	for i, l := range lines {
		costs[i] = counter.Count(l) + 1
		total += costs[i]
	}

	start := 0
	for start < len(lines)-1 && total > budget {
		total -= costs[start]
		start++
	}
	return strings.Join(lines[start:], "\n"), true
}
