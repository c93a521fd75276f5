// Package http exposes the meeting sessions, minutes, translation and the
// agent exchange over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"meeting-minutes-service/internal/app"
	"meeting-minutes-service/internal/observability/logging"
	"meeting-minutes-service/internal/schema"
	"meeting-minutes-service/internal/service/agent"
	"meeting-minutes-service/internal/service/audio"
	"meeting-minutes-service/internal/service/minutes"
	"meeting-minutes-service/internal/store"
)

// maxAudioChunk bounds one uploaded audio chunk.
const maxAudioChunk = 1 << 20

type handlers struct {
	app      *app.Application
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		app:    application,
		logger: logging.WithComponent("http"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOrigin,
		},
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/models/translation", h.listTranslationModels)

		r.Post("/agent/invoke", h.invokeAgent)
		r.Get("/agent/chats/{chatID}/messages", h.listChatMessages)

		r.Post("/sessions", h.createSession)
		r.Get("/sessions", h.listSessions)
		r.Route("/sessions/{key}", func(r chi.Router) {
			r.Delete("/", h.closeSession)

			r.Post("/segments", h.pushSegment)
			r.Get("/transcript", h.getTranscript)
			r.Delete("/transcript", h.clearTranscript)
			r.Put("/speakers", h.setSpeakers)

			r.Post("/sources/{source}/start", h.startSource)
			r.Post("/sources/{source}/audio", h.sendAudio)
			r.Post("/sources/{source}/stop", h.stopSource)

			r.Put("/minutes/config", h.configureMinutes)
			r.Post("/minutes/generate", h.generateMinutes)
			r.Get("/minutes", h.getMinutes)
			r.Post("/files", h.transcribeFile)

			r.Put("/translation/config", h.configureTranslation)
			r.Post("/translations", h.translate)

			r.Get("/ws", h.watch)
		})
	})

	return r
}

// sameOrigin allows clients without an Origin header and browsers on the
// serving host.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondErr maps a service error to its status and code.
func respondErr(w http.ResponseWriter, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, app.ErrSegmentNotFound), errors.Is(err, store.ErrChatNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrSessionExists), errors.Is(err, app.ErrSourceActive):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, minutes.ErrGenerationInFlight):
		status, code = http.StatusConflict, "generation_in_flight"
	case errors.Is(err, app.ErrInvalidSource), errors.Is(err, app.ErrSourceNotStarted),
		errors.Is(err, schema.ErrInvalidSegment), errors.Is(err, minutes.ErrUnknownStyle),
		errors.Is(err, minutes.ErrUnknownInputMethod), errors.Is(err, minutes.ErrCustomPromptRequired),
		errors.Is(err, minutes.ErrNoTranscript):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, audio.ErrStopped), errors.Is(err, audio.ErrLimitExceeded):
		status, code = http.StatusGone, "source_stopped"
	case errors.Is(err, app.ErrTranslationSkipped):
		status, code = http.StatusUnprocessableEntity, "translation_skipped"
	case errors.Is(err, app.ErrNoSTT), errors.Is(err, app.ErrNoPredictor), errors.Is(err, app.ErrFileTranscribeUnset):
		status, code = http.StatusNotImplemented, "unavailable"
	case errors.Is(err, agent.ErrNotAuthenticated):
		status, code = http.StatusUnauthorized, "not_authenticated"
	case errors.Is(err, minutes.ErrGenerationFailed):
		status, code = http.StatusBadGateway, "generation_failed"
	}
	respondError(w, status, code, err.Error())
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	s, err := h.app.Session(chi.URLParam(r, "key"))
	if err != nil {
		respondErr(w, err)
		return nil, false
	}
	return s, true
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
