// Transcript Viewer - live meeting transcript and minutes display
// Consumes the meeting event topics from Kafka and pushes them to browsers
// over WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
)

//go:embed static/*
var staticFiles embed.FS

// Fragment is one speaker-attributed piece of a segment.
type Fragment struct {
	SpeakerLabel string `json:"speakerLabel,omitempty"`
	Transcript   string `json:"transcript"`
}

// MeetingEvent is any message on the meeting topics. Fields are filled
// according to EventType.
type MeetingEvent struct {
	EventType      string     `json:"eventType"`
	SessionKey     string     `json:"sessionKey"`
	SegmentID      string     `json:"segmentId,omitempty"`
	Source         string     `json:"source,omitempty"`
	SessionID      int        `json:"sessionId,omitempty"`
	StartTime      float64    `json:"startTime,omitempty"`
	Transcripts    []Fragment `json:"transcripts,omitempty"`
	Text           string     `json:"text,omitempty"`
	Style          string     `json:"style,omitempty"`
	Minutes        string     `json:"minutes,omitempty"`
	TargetLanguage string     `json:"targetLanguage,omitempty"`
	Timestamp      int64      `json:"timestamp"`
}

// historySize bounds the events replayed to newly connected browsers.
const historySize = 500

// Hub manages WebSocket connections
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan MeetingEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	history    []MeetingEvent
	mu         sync.RWMutex
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan MeetingEvent, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			for _, ev := range h.history {
				if err := conn.WriteJSON(ev); err != nil {
					break
				}
			}
			h.mu.Unlock()
			log.Printf("Client connected. Total: %d", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total: %d", len(h.clients))

		case event := <-h.broadcast:
			h.mu.Lock()
			h.remember(event)
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					log.Printf("Write error: %v", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remember appends event to the replay history. A final replaces the
// partials of its segment so late joiners get the merged state.
func (h *Hub) remember(event MeetingEvent) {
	if event.EventType == "meeting.transcript.final" {
		kept := h.history[:0]
		for _, ev := range h.history {
			if ev.EventType == "meeting.transcript.partial" && ev.SessionKey == event.SessionKey && ev.SegmentID == event.SegmentID {
				continue
			}
			kept = append(kept, ev)
		}
		h.history = kept
	}
	h.history = append(h.history, event)
	if len(h.history) > historySize {
		h.history = h.history[len(h.history)-historySize:]
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

func wsHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}
		hub.register <- conn

		// Keep connection alive, handle disconnects
		go func() {
			defer func() {
				hub.unregister <- conn
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string) {
	// Use partition reader without consumer group (works better through port-forward)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-1*time.Hour)); err != nil {
		log.Printf("Seek error on %s: %v", topic, err)
	}
	log.Printf("Consuming from Kafka topic: %s partition 0 (last hour)", topic)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Kafka read error on %s: %v", topic, err)
			time.Sleep(time.Second)
			continue
		}

		var event MeetingEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Printf("JSON unmarshal error: %v", err)
			continue
		}
		if event.SessionKey == "" {
			event.SessionKey = string(msg.Key)
		}

		summary := event.Text
		if event.Minutes != "" {
			summary = event.Minutes
		}
		log.Printf("Received %s for %s: %s", event.EventType, event.SessionKey, truncate(summary, 40))

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "meeting.transcript.partial", "Partial transcript topic")
	topicFinal := flag.String("topic-final", "meeting.transcript.final", "Final transcript topic")
	topicMinutes := flag.String("topic-minutes", "meeting.minutes.generated", "Minutes and translation topic")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := newHub()
	go hub.run(ctx)

	for _, topic := range []string{*topicPartial, *topicFinal, *topicMinutes} {
		go consumeKafka(ctx, hub, *brokers, topic)
	}

	staticFS, _ := fs.Sub(staticFiles, "static")
	http.Handle("/", http.FileServer(http.FS(staticFS)))
	http.HandleFunc("/ws", wsHandler(hub))

	log.Printf("Transcript Viewer starting on http://localhost:%s", *port)
	log.Printf("   Kafka brokers: %s", *brokers)
	log.Printf("   Topics: %s, %s, %s", *topicPartial, *topicFinal, *topicMinutes)

	if err := http.ListenAndServe(":"+*port, nil); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
