package http

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/minutes"
	"meeting-minutes-service/internal/service/translation"
)

type createSessionRequest struct {
	Key string `json:"key"`
}

type sessionResponse struct {
	Key              string    `json:"key"`
	CreatedAt        time.Time `json:"createdAt"`
	RecordingSession int       `json:"recordingSession"`
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s, err := h.app.CreateSession(req.Key)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse{Key: s.Key(), CreatedAt: s.CreatedAt()})
}

func (h *handlers) listSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"sessions": h.app.SessionKeys()})
}

func (h *handlers) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.app.CloseSession(chi.URLParam(r, "key")); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) pushSegment(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var seg models.Segment
	if err := decodeJSON(r, &seg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.PushSegment(r.Context(), seg); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type transcriptResponse struct {
	SessionKey string           `json:"sessionKey"`
	Text       string           `json:"text"`
	Segments   []models.Segment `json:"segments"`
}

func (h *handlers) getTranscript(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse{
		SessionKey: s.Key(),
		Text:       s.Merger().Render(),
		Segments:   s.Merger().Segments(),
	})
}

func (h *handlers) clearTranscript(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.ClearTranscript()
	w.WriteHeader(http.StatusNoContent)
}

type speakersRequest struct {
	Names string `json:"names"`
}

func (h *handlers) setSpeakers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req speakersRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.SetSpeakers(req.Names)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) startSource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.StartSource(r.Context(), models.Source(chi.URLParam(r, "source"))); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse{Key: s.Key(), CreatedAt: s.CreatedAt(), RecordingSession: s.RecordingSession()})
}

func (h *handlers) sendAudio(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxAudioChunk+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(chunk) > maxAudioChunk {
		respondError(w, http.StatusRequestEntityTooLarge, "chunk_too_large", "audio chunk exceeds 1 MiB")
		return
	}
	if err := s.SendAudio(r.Context(), models.Source(chi.URLParam(r, "source")), chunk); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) stopSource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.StopSource(models.Source(chi.URLParam(r, "source"))); err != nil {
		respondErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type minutesConfigRequest struct {
	minutes.Settings
	AutoGenerate     bool `json:"autoGenerate"`
	FrequencyMinutes int  `json:"frequencyMinutes"`
}

type minutesResponse struct {
	Minutes      string           `json:"minutes"`
	GeneratedAt  *time.Time       `json:"generatedAt,omitempty"`
	Generating   bool             `json:"generating"`
	AutoGenerate bool             `json:"autoGenerate"`
	Countdown    int              `json:"countdown"`
	Settings     minutes.Settings `json:"settings"`
}

func minutesState(sched *minutes.Scheduler) minutesResponse {
	resp := minutesResponse{
		Minutes:      sched.Minutes(),
		Generating:   sched.IsGenerating(),
		AutoGenerate: sched.AutoGenerate(),
		Countdown:    sched.Countdown(),
		Settings:     sched.Settings(),
	}
	if at := sched.GeneratedAt(); !at.IsZero() {
		resp.GeneratedAt = &at
	}
	return resp
}

func (h *handlers) configureMinutes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req minutesConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.ConfigureMinutes(req.Settings, req.AutoGenerate, req.FrequencyMinutes); err != nil {
		respondErr(w, err)
		return
	}
	sched, _ := s.MinutesScheduler()
	respondJSON(w, http.StatusOK, minutesState(sched))
}

func (h *handlers) generateMinutes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sched, err := s.MinutesScheduler()
	if err != nil {
		respondErr(w, err)
		return
	}
	if err := sched.Generate(r.Context()); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, minutesState(sched))
}

func (h *handlers) getMinutes(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	sched, err := s.MinutesScheduler()
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, minutesState(sched))
}

// transcribeFile accepts a multipart "file" upload and makes its batch
// transcription the file input of the minutes.
func (h *handlers) transcribeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if _, ok := h.session(w, r); !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	defer file.Close()

	dir, err := os.MkdirTemp("", "meeting-upload-")
	if err != nil {
		respondErr(w, err)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filepath.Base(header.Filename))
	out, err := os.Create(path)
	if err != nil {
		respondErr(w, err)
		return
	}
	_, err = io.Copy(out, file)
	out.Close()
	if err != nil {
		respondErr(w, err)
		return
	}

	res, err := h.app.TranscribeFile(r.Context(), key, path)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"languageCode": res.LanguageCode,
		"duration":     res.Duration,
		"fragments":    res.Fragments,
		"text":         res.Text(),
	})
}

func (h *handlers) configureTranslation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	watcher, err := s.TranslationWatcher()
	if err != nil {
		respondErr(w, err)
		return
	}
	var req translation.Settings
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	watcher.Update(req)
	respondJSON(w, http.StatusOK, watcher.Settings())
}

type translateRequest struct {
	ResultID string        `json:"resultId"`
	Source   models.Source `json:"source"`
	ModelID  string        `json:"modelId"`
}

func (h *handlers) translate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	key := models.SegmentKey{ResultID: req.ResultID, Source: req.Source}
	text, err := s.Translate(r.Context(), key, req.ModelID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"segmentId": key.String(), "translation": text})
}

func (h *handlers) listTranslationModels(w http.ResponseWriter, _ *http.Request) {
	orch := h.app.Translator()
	if orch == nil {
		respondJSON(w, http.StatusOK, map[string]any{"models": []string{}, "default": ""})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": orch.Models(), "default": orch.DefaultModel()})
}
