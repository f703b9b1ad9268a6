package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"matrixhub/internal/metrics"
)

// Hub tracks the set of live push-channel clients and fans messages out
// to all of them with best-effort semantics. Membership changes and the
// membership snapshot taken by Broadcast share one mutex; delivery
// itself happens outside the lock so a slow peer never stalls
// register/unregister or other deliveries.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]bool

	// snapshot produces the synchronization message sent to a client
	// exactly once, at registration time.
	snapshot func() interface{}

	instanceID string
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		instanceID: uuid.New().String(),
		logger:     logger,
	}
}

// SetSnapshot installs the function that supplies the full current
// state for newly connecting clients. It must not block on the hub.
func (h *Hub) SetSnapshot(fn func() interface{}) {
	h.snapshot = fn
}

// Register adds a client to the membership set and queues the
// synchronization snapshot for it. Registering an already present
// client is a no-op.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c] {
		return
	}
	h.clients[c] = true
	metrics.WSConnections.Set(float64(len(h.clients)))

	if h.snapshot != nil {
		data, err := json.Marshal(h.snapshot())
		if err != nil {
			h.logger.Error("hub: snapshot marshal failed",
				zap.String("instance", h.instanceID), zap.Error(err))
			return
		}
		if !c.enqueue(data) {
			h.logger.Warn("hub: snapshot enqueue failed for new client",
				zap.String("instance", h.instanceID))
		}
	}
}

// Unregister removes a client and closes it. Unregistering a client
// that is absent is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()

	// close is idempotent, so double unregister stays harmless.
	c.close()
}

// Broadcast marshals v once and queues it for every registered client.
// Clients whose outbound queue is closed or full are collected and
// removed after the pass; one dead peer never aborts delivery to the
// rest. Per-client ordering follows Broadcast call order.
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("hub: broadcast marshal failed",
			zap.String("instance", h.instanceID), zap.Error(err))
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var dead []*Client
	for _, c := range targets {
		if !c.enqueue(data) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.logger.Info("hub: pruning unresponsive client",
			zap.String("instance", h.instanceID))
		metrics.DroppedClients.Inc()
		h.Unregister(c)
	}
	metrics.Broadcasts.Inc()
}

// Len returns the current number of registered clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every client connection and empties the membership
// set. Used during graceful shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clients = make(map[*Client]bool)
	metrics.WSConnections.Set(0)
	h.mu.Unlock()

	for _, c := range targets {
		c.close()
	}
	h.logger.Info("hub: shutdown complete",
		zap.String("instance", h.instanceID), zap.Int("closed", len(targets)))
}
