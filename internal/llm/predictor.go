// Package llm defines the single-shot inference contract shared by translation
// and minutes generation.
package llm

import (
	"context"
	"errors"

	"meeting-minutes-service/internal/models"
)

var (
	// ErrModelNotFound is returned when a model id is not in the catalog.
	ErrModelNotFound = errors.New("model not found")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned no text")
)

// PredictRequest is one non-streaming completion request.
type PredictRequest struct {
	ModelID   string
	Messages  []models.ChatMessage
	RequestID string
}

// Predictor returns the completed text for a request.
type Predictor interface {
	Predict(ctx context.Context, req PredictRequest) (string, error)
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(ctx context.Context, req PredictRequest) (string, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, req PredictRequest) (string, error) {
	return f(ctx, req)
}

// Catalog is a set of model ids a component may use.
type Catalog []string

// Contains reports whether id is in the catalog.
func (c Catalog) Contains(id string) bool {
	for _, m := range c {
		if m == id {
			return true
		}
	}
	return false
}
