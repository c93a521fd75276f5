// Package schema validates segments before they enter merged state.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
)

// ErrInvalidSegment is wrapped by every validation failure.
var ErrInvalidSegment = errors.New("invalid segment")

// Validator checks segment shape.
type Validator struct {
	logger zerolog.Logger
}

func New() *Validator {
	return &Validator{logger: logging.WithComponent("schema")}
}

// Validate returns an error wrapping ErrInvalidSegment when seg cannot be merged.
func (v *Validator) Validate(seg models.Segment) error {
	if err := validate(seg); err != nil {
		v.logger.Debug().
			Err(err).
			Str("resultId", seg.ResultID).
			Str("source", string(seg.Source)).
			Msg("Segment rejected")
		return err
	}
	return nil
}

// Reason returns a short metric label for a validation error.
func Reason(err error) string {
	var fe *fieldError
	if errors.As(err, &fe) {
		return fe.field
	}
	return "unknown"
}

type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidSegment, e.field, e.msg)
}

func (e *fieldError) Unwrap() error {
	return ErrInvalidSegment
}

func validate(seg models.Segment) error {
	switch {
	case strings.TrimSpace(seg.ResultID) == "":
		return &fieldError{"resultId", "is required"}
	case !seg.Source.Valid():
		return &fieldError{"source", fmt.Sprintf("%q is not microphone or screen", seg.Source)}
	case !finite(seg.StartTime) || seg.StartTime < 0:
		return &fieldError{"startTime", "must be a non-negative number"}
	case !finite(seg.EndTime) || (seg.EndTime != 0 && seg.EndTime < seg.StartTime):
		return &fieldError{"endTime", "must not precede startTime"}
	case seg.SessionID < 0:
		return &fieldError{"sessionId", "must not be negative"}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
