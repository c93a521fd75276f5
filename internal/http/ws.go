package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"meeting-minutes-service/internal/models"
	"meeting-minutes-service/internal/service/minutes"
	"meeting-minutes-service/internal/service/transcript"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsQueueSize  = 256
)

// Message types pushed to websocket clients.
const (
	wsSnapshot = "snapshot"
	wsChange   = "change"
	wsMinutes  = "minutes"
)

type wsMessage struct {
	Type       string                `json:"type"`
	SessionKey string                `json:"sessionKey"`
	Kind       transcript.ChangeKind `json:"kind,omitempty"`
	Segment    *models.Segment       `json:"segment,omitempty"`
	Transcript string                `json:"transcript,omitempty"`
	Segments   []models.Segment      `json:"segments,omitempty"`
	Minutes    string                `json:"minutes,omitempty"`
	Status     minutes.Status        `json:"status,omitempty"`
	Error      string                `json:"error,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

// watch pushes the transcript snapshot, then every merged change and every
// minutes outcome of the session until the client disconnects.
func (h *handlers) watch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan wsMessage, wsQueueSize)
	enqueue := func(msg wsMessage) {
		msg.SessionKey = s.Key()
		msg.Timestamp = time.Now().UnixMilli()
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
			h.logger.Warn().Str("sessionKey", s.Key()).Str("type", msg.Type).Msg("Websocket queue full, message dropped")
		}
	}

	enqueue(wsMessage{Type: wsSnapshot, Transcript: s.Merger().Render(), Segments: s.Merger().Segments()})

	unsubscribe := s.Merger().Subscribe(func(c transcript.Change) {
		msg := wsMessage{Type: wsChange, Kind: c.Kind}
		if c.Kind != transcript.ChangeCleared {
			seg := c.Segment
			msg.Segment = &seg
		}
		enqueue(msg)
	})
	defer unsubscribe()

	removeMinutes := s.OnMinutes(func(ev minutes.StatusEvent) {
		msg := wsMessage{Type: wsMinutes, Status: ev.Status, Minutes: ev.Minutes}
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
		enqueue(msg)
	})
	defer removeMinutes()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
}
