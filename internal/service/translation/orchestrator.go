// Package translation requests realtime translations of finalized transcript
// segments, allowing at most one outstanding request per segment and model.
package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/llm"
	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/observability/metrics"
)

// RequestID identifies translation calls to the predictor.
const RequestID = "/realtime-translate"

// Orchestrator issues translation requests through a Predictor.
// Thread-safe for concurrent access.
type Orchestrator struct {
	predictor llm.Predictor
	catalog   llm.Catalog
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewOrchestrator creates an orchestrator that accepts the models in modelIDs.
func NewOrchestrator(predictor llm.Predictor, modelIDs []string) *Orchestrator {
	return NewOrchestratorWithMetrics(predictor, modelIDs, metrics.DefaultMetrics)
}

// NewOrchestratorWithMetrics creates an orchestrator recording to m.
func NewOrchestratorWithMetrics(predictor llm.Predictor, modelIDs []string, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		predictor: predictor,
		catalog:   llm.Catalog(SortModels(modelIDs)),
		metrics:   m,
		logger:    logging.WithComponent("translation"),
		inFlight:  make(map[string]struct{}),
	}
}

// Models returns the accepted model ids in display order.
func (o *Orchestrator) Models() []string {
	return append([]string(nil), o.catalog...)
}

// DefaultModel returns the preferred model id.
func (o *Orchestrator) DefaultModel() string {
	return DefaultModel(o.catalog)
}

// IsTranslating reports whether a request for (segmentID, modelID) is outstanding.
func (o *Orchestrator) IsTranslating(segmentID, modelID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[inFlightKey(segmentID, modelID)]
	return ok
}

// RequestTranslation translates sourceText into targetLanguage. It returns
// ("", false) without calling the model when the text is blank or a request
// for the same segment and model is outstanding, and ("", false) when the
// model call fails.
func (o *Orchestrator) RequestTranslation(ctx context.Context, segmentID, sourceText, modelID, targetLanguage string, hints Hints) (string, bool) {
	if strings.TrimSpace(sourceText) == "" {
		o.metrics.RecordTranslation("skipped", 0)
		return "", false
	}

	key := inFlightKey(segmentID, modelID)
	if !o.acquire(key) {
		o.metrics.RecordTranslation("skipped", 0)
		return "", false
	}
	defer o.release(key)

	start := time.Now()
	text, err := o.translate(ctx, sourceText, modelID, targetLanguage, hints)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		o.metrics.RecordTranslation("failed", elapsed)
		o.logger.Error().
			Err(err).
			Str("segmentId", segmentID).
			Str("modelId", modelID).
			Msg("Translation failed")
		return "", false
	}

	o.metrics.RecordTranslation("success", elapsed)
	o.logger.Debug().
		Str("segmentId", segmentID).
		Str("modelId", modelID).
		Float64("latencySec", elapsed).
		Msg("Segment translated")
	return text, true
}

func (o *Orchestrator) translate(ctx context.Context, sourceText, modelID, targetLanguage string, hints Hints) (string, error) {
	if !o.catalog.Contains(modelID) {
		return "", fmt.Errorf("%w: %s", llm.ErrModelNotFound, modelID)
	}

	req := llm.PredictRequest{
		ModelID: modelID,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: SystemContext()},
			{Role: models.RoleUser, Content: TranslatePrompt(sourceText, targetLanguage, hints)},
		},
		RequestID: RequestID + "/" + uuid.NewString(),
	}

	out, err := o.predictor.Predict(ctx, req)
	if err != nil {
		return "", fmt.Errorf("predict: %w", err)
	}
	return StripOutputTags(out), nil
}

func (o *Orchestrator) acquire(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[key]; busy {
		return false
	}
	o.inFlight[key] = struct{}{}
	return true
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, key)
}

func inFlightKey(segmentID, modelID string) string {
	return segmentID + "-" + modelID
}
