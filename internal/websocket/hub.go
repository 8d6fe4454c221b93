package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"mktsummary/internal/infrastructure"
)

// Event types pushed to clients.
const (
	TypeConnection   = "connection"
	EventBatchStatus = "batch:status"
	// EventBatchOutcome carries one per-date Outcome.
	EventBatchOutcome = "batch:outcome"
)

const broadcastBuffer = 256

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64
	dropped          int64

	quit    chan struct{}
	running bool
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine. It is idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()
				h.logger.InfoContext(client.context(), "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.messagesSent++
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
					h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
						slog.String("client_id", client.id))
				}
			}
			h.mu.Unlock()
		}
	}
}

// addClient tracks client and greets it. A client that arrives after Stop
// has its send channel closed instead so its write pump exits.
func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		close(client.send)
		return false
	}
	h.clients[client] = true
	h.totalConnections++
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	hello, err := encode(TypeConnection, map[string]interface{}{
		"status":    "connected",
		"client_id": client.id,
	}, client.traceID)
	if err == nil {
		select {
		case client.send <- hello:
		default:
			h.logger.WarnContext(ctx, "Failed to send connection message - client buffer full")
		}
	}
	return true
}

// Broadcast sends an event to every connected client. It never blocks: when
// the hub is stopped or its queue is full the event is dropped.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	h.BroadcastWithTrace(eventType, data, "")
}

// BroadcastWithTrace is Broadcast with a trace id stamped on the envelope.
func (h *Hub) BroadcastWithTrace(eventType string, data interface{}, traceID string) {
	payload, err := encode(eventType, data, traceID)
	if err != nil {
		ctx := infrastructure.WithTraceID(context.Background(), traceID)
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("error", err.Error()),
			slog.String("message_type", eventType))
		return
	}

	select {
	case <-h.quit:
	case h.broadcast <- payload:
		return
	default:
	}

	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
	h.logger.Debug("Broadcast dropped", slog.String("message_type", eventType))
}

func encode(eventType string, data interface{}, traceID string) ([]byte, error) {
	return json.Marshal(Message{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		TraceID:   traceID,
	})
}

// Register adds a client to the hub. After Stop the client's send channel is
// closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the hub counters.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.dropped,
	}
}

// Stop gracefully stops the hub and disconnects every client
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
