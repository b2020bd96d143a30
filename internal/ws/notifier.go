package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"school-chat/internal/observability"
)

// NotificationRegistry is the flat set of connections on the global channel.
type NotificationRegistry struct {
	mu     sync.RWMutex
	peers  []Peer
	logger *zap.Logger
}

// NewNotificationRegistry creates an empty registry.
func NewNotificationRegistry(logger *zap.Logger) *NotificationRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationRegistry{logger: logger}
}

func (r *NotificationRegistry) Connect(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = append(r.peers, p)
}

func (r *NotificationRegistry) Disconnect(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = removePeer(r.peers, p)
}

// Broadcast delivers v to every connection, then evicts the ones that failed.
func (r *NotificationRegistry) Broadcast(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("notification encode failed", zap.Error(err))
		return
	}

	r.mu.RLock()
	peers := append([]Peer(nil), r.peers...)
	r.mu.RUnlock()

	failures := fanOut(peers, payload)
	for _, f := range failures {
		r.logger.Warn("notification send failed", zap.String("conn_id", f.peer.ID()), zap.Error(f.err))
		observability.IncBroadcastFailure(kindNotification)
		r.Disconnect(f.peer)
		_ = f.peer.Close()
	}
}

// Count returns the number of registered connections.
func (r *NotificationRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
