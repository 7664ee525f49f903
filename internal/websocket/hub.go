// Package websocket pushes the record to open pages once it has loaded.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/speedrun-record/internal/domain"
	"github.com/speedrun-record/internal/metrics"
)

// Message types
const (
	MessageTypeRecordLoaded = domain.EventTypeRecordLoaded
	MessageTypeNoRecord     = domain.EventTypeNoRecord
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	Board     string      `json:"board,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// CurrentFunc returns the record a board currently shows. It is consulted
// when a client subscribes so pages opened after the load still get it.
type CurrentFunc func(ctx context.Context, board string) (*domain.Record, error)

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by board
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	register    chan *Client
	unregister  chan *Client
	broadcast   chan *Message
	subscribe   chan *subscriptionRequest
	unsubscribe chan *subscriptionRequest

	current CurrentFunc

	mu     sync.RWMutex
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client *Client
	board  string
	done   chan struct{}
}

// NewHub creates a new Hub. current may be nil.
func NewHub(current CurrentFunc, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *Message, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		current:     current,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.mu.Unlock()
			metrics.WebsocketClients.Inc()
			h.logger.Debug("client registered", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				for board, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, board)
						}
					}
				}
				close(client.send)
				metrics.WebsocketClients.Dec()
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if _, ok := h.clients[req.board]; !ok {
				h.clients[req.board] = make(map[*Client]bool)
			}
			h.clients[req.board][req.client] = true
			h.mu.Unlock()
			close(req.done)
			h.logger.Debug("client subscribed", "client_id", req.client.id, "board", req.board)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.board]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.board)
				}
			}
			h.mu.Unlock()
			close(req.done)
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "board", req.board)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message to every client subscribed to its board
func (h *Hub) broadcastMessage(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range h.clients[message.Board] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

// recordMessage builds the message announcing rec. A nil rec announces an
// empty leaderboard.
func recordMessage(board string, rec *domain.Record) *Message {
	if rec == nil {
		return &Message{Type: MessageTypeNoRecord, Board: board, Timestamp: time.Now()}
	}
	return &Message{Type: MessageTypeRecordLoaded, Board: board, Data: rec, Timestamp: time.Now()}
}

// BroadcastRecord announces the loaded record to subscribers of board
func (h *Hub) BroadcastRecord(board string, rec *domain.Record) {
	select {
	case h.broadcast <- recordMessage(board, rec):
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Subscribe adds a client to a board and returns once the hub has
// recorded the subscription.
func (h *Hub) Subscribe(client *Client, board string) {
	h.await(h.subscribe, &subscriptionRequest{client: client, board: board, done: make(chan struct{})})
}

// Unsubscribe removes a client from a board
func (h *Hub) Unsubscribe(client *Client, board string) {
	h.await(h.unsubscribe, &subscriptionRequest{client: client, board: board, done: make(chan struct{})})
}

func (h *Hub) await(ch chan *subscriptionRequest, req *subscriptionRequest) {
	select {
	case ch <- req:
	case <-h.ctx.Done():
		return
	}
	select {
	case <-req.done:
	case <-h.ctx.Done():
	}
}

// Current looks up the message a new subscriber of board should see first.
// It returns nil while the record is still loading.
func (h *Hub) Current(ctx context.Context, board string) (*Message, error) {
	if h.current == nil {
		return nil, nil
	}
	rec, err := h.current(ctx, board)
	switch {
	case err == nil:
		return recordMessage(board, rec), nil
	case errors.Is(err, domain.ErrNoRecord):
		return recordMessage(board, nil), nil
	case errors.Is(err, domain.ErrRecordLoading):
		return nil, nil
	default:
		return nil, err
	}
}

// GetSubscriberCount returns the number of subscribers for a board
func (h *Hub) GetSubscriberCount(board string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[board])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
