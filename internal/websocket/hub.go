// Package websocket pushes store snapshots and notifications to UI clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"distconsole/internal/infrastructure"
	"distconsole/pkg/contracts/domain"
)

// broadcastBuffer bounds messages queued while the hub loop is busy
const broadcastBuffer = 256

type outbound struct {
	msgType string
	payload []byte
}

// Stats is a point-in-time view of hub activity
type Stats struct {
	ActiveClients    int   `json:"active_clients"`
	TotalConnections int64 `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
	Running          bool  `json:"running"`
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	mu sync.RWMutex
	// latest payload per snapshot type, replayed on connect
	latest  map[string][]byte
	running bool
	stats   Stats

	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewHub creates a hub. Run must be started for messages to flow.
func NewHub(metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		latest:     make(map[string][]byte),
		metrics:    metrics,
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, after
// closing every client. A hub runs once.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
	h.logger.InfoContext(ctx, "Hub started")

	defer h.shutdown(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.addClient(ctx, client)

		case client := <-h.unregister:
			h.removeClient(ctx, client, "normal")

		case msg := <-h.broadcast:
			h.deliver(ctx, msg)
		}
	}
}

func (h *Hub) addClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	h.stats.TotalConnections++
	count := len(h.clients)
	replay := make([]string, 0, len(h.latest))
	for t := range h.latest {
		replay = append(replay, t)
	}
	sort.Strings(replay)
	payloads := make([][]byte, 0, len(replay))
	for _, t := range replay {
		payloads = append(payloads, h.latest[t])
	}
	h.mu.Unlock()

	h.metrics.RecordWebSocketClients(ctx, 1)
	h.logger.InfoContext(ctx, "Client registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))

	greeting, err := encode(TypeConnection, map[string]any{
		"status":    "connected",
		"client_id": client.id,
	}, client.traceID)
	if err == nil {
		payloads = append([][]byte{greeting}, payloads...)
	}
	for _, p := range payloads {
		select {
		case client.send <- p:
		default:
			h.logger.WarnContext(ctx, "Client buffer full during replay",
				slog.String("client_id", client.id))
			return
		}
	}
}

func (h *Hub) removeClient(ctx context.Context, client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.RecordWebSocketClients(ctx, -1)
	h.logger.InfoContext(ctx, "Client unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)))
}

func (h *Hub) deliver(ctx context.Context, msg outbound) {
	h.mu.Lock()
	if isSnapshot(msg.msgType) {
		h.latest[msg.msgType] = msg.payload
	}
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	var slow []*Client
	sent := 0
	for _, client := range clients {
		select {
		case client.send <- msg.payload:
			sent++
		default:
			slow = append(slow, client)
		}
	}

	h.mu.Lock()
	h.stats.MessagesSent += int64(sent)
	h.mu.Unlock()

	for _, client := range slow {
		h.logger.WarnContext(ctx, "Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
		h.removeClient(ctx, client, "slow")
	}

	h.logger.DebugContext(ctx, "Broadcast delivered",
		slog.String("type", msg.msgType),
		slog.Int("client_count", len(clients)),
		slog.Int("message_size", len(msg.payload)))
}

func (h *Hub) shutdown(ctx context.Context) {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	h.running = false
	n := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	if n > 0 {
		h.metrics.RecordWebSocketClients(context.WithoutCancel(ctx), -int64(n))
	}
	h.logger.Info("Hub shutting down", slog.Int("closed_clients", n))
}

// Broadcast queues data for every client. Snapshot types are also kept for
// replay to clients that connect later. When the queue is full the message
// is dropped and logged.
func (h *Hub) Broadcast(ctx context.Context, msgType string, data any) {
	payload, err := encode(msgType, data, infrastructure.GetTraceID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "Error marshaling message",
			slog.String("message_type", msgType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- outbound{msgType: msgType, payload: payload}:
	default:
		h.mu.Lock()
		h.stats.MessagesDropped++
		h.mu.Unlock()
		h.logger.WarnContext(ctx, "Broadcast queue full, dropping message",
			slog.String("message_type", msgType))
	}
}

// Notify pushes a user-facing notification
func (h *Hub) Notify(ctx context.Context, n domain.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	h.Broadcast(ctx, TypeNotification, n)
}

// Register adds a client to the hub. After the hub stopped the client's
// queue is closed instead, which ends its write pump.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns current hub counters
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.stats
	s.ActiveClients = len(h.clients)
	s.Running = h.running
	return s
}

// Forward broadcasts every snapshot published by subscribe under msgType.
// Store Subscribe methods fit directly:
//
//	unsubscribe := websocket.Forward(hub, websocket.TypeSnapshotHistory, store.Subscribe)
func Forward[T any](h *Hub, msgType string, subscribe func(func(T)) func()) (unsubscribe func()) {
	return subscribe(func(snap T) {
		h.Broadcast(context.Background(), msgType, snap)
	})
}

func encode(msgType string, data any, traceID string) ([]byte, error) {
	return json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
		TraceID:   traceID,
	})
}
