// Package viewer follows relay events on Kafka and fans them out to browser
// WebSocket clients.
package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-voice-relay-service/internal/models"
	"ai-voice-relay-service/internal/schema"
)

// Entry is one decoded relay event.
type Entry struct {
	Topic      string                  `json:"topic"`
	EventType  string                  `json:"eventType"`
	RelayID    string                  `json:"relayId"`
	Transcript *models.TranscriptEvent `json:"transcript,omitempty"`
	Outcome    *models.RelayOutcome    `json:"outcome,omitempty"`
}

// Decode parses and validates a relay event payload.
func Decode(v *schema.Validator, topic string, value []byte) (Entry, error) {
	var envelope struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return Entry{}, fmt.Errorf("decode event: %w", err)
	}

	entry := Entry{Topic: topic, EventType: envelope.EventType}
	switch envelope.EventType {
	case models.EventTypeTranscript:
		var ev models.TranscriptEvent
		if err := json.Unmarshal(value, &ev); err != nil {
			return Entry{}, fmt.Errorf("decode transcript: %w", err)
		}
		if err := v.Validate(ev); err != nil {
			return Entry{}, err
		}
		entry.RelayID, entry.Transcript = ev.RelayID, &ev
	case models.EventTypeOutcome:
		var ev models.RelayOutcome
		if err := json.Unmarshal(value, &ev); err != nil {
			return Entry{}, fmt.Errorf("decode outcome: %w", err)
		}
		if err := v.Validate(ev); err != nil {
			return Entry{}, err
		}
		entry.RelayID, entry.Outcome = ev.RelayID, &ev
	default:
		return Entry{}, fmt.Errorf("unknown event type %q", envelope.EventType)
	}
	return entry, nil
}

// Hub manages WebSocket connections.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan Entry
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	mu sync.RWMutex
}

// NewHub creates a hub. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Entry, 100),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an entry for every client.
func (h *Hub) Broadcast(ctx context.Context, e Entry) {
	select {
	case h.broadcast <- e:
	case <-ctx.Done():
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", n).Msg("Viewer client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Info().Int("clients", n).Msg("Viewer client disconnected")

		case entry := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(entry); err != nil {
					log.Warn().Err(err).Msg("Viewer write failed")
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades browser connections and registers them with the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		h.register <- conn

		go func() {
			defer func() { h.unregister <- conn }()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// NewReader opens a partition reader on topic starting at since.
func NewReader(ctx context.Context, brokers []string, topic string, since time.Time) *kafka.Reader {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if err := reader.SetOffsetAt(ctx, since); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to seek reader, starting at latest")
	}
	return reader
}

// Consume reads events from reader and broadcasts them until ctx is done.
// Undecodable messages are logged and skipped.
func Consume(ctx context.Context, hub *Hub, reader MessageReader, topic string) {
	v := schema.New()
	logger := log.With().Str("topic", topic).Logger()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("Kafka read error")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		entry, err := Decode(v, topic, msg.Value)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping relay event")
			continue
		}
		logger.Debug().
			Str("eventType", entry.EventType).
			Str("relayId", entry.RelayID).
			Msg("Received relay event")
		hub.Broadcast(ctx, entry)
	}
}
