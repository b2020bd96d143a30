package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"school-chat/internal/observability"
)

// GroupRegistry maps group ids to their live connections.
type GroupRegistry struct {
	mu     sync.RWMutex
	groups map[int][]Peer
	logger *zap.Logger
}

// NewGroupRegistry creates an empty registry.
func NewGroupRegistry(logger *zap.Logger) *GroupRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupRegistry{groups: make(map[int][]Peer), logger: logger}
}

// Connect registers p under groupID. Callers register each peer once.
func (r *GroupRegistry) Connect(groupID int, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[groupID] = append(r.groups[groupID], p)
}

// Disconnect removes p from groupID, dropping the group entry when it empties.
func (r *GroupRegistry) Disconnect(groupID int, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.groups[groupID]
	if !ok {
		return
	}
	peers = removePeer(peers, p)
	if len(peers) == 0 {
		delete(r.groups, groupID)
		return
	}
	r.groups[groupID] = peers
}

// Broadcast delivers v to every connection in the group. Failed peers are
// disconnected and closed; errors never reach the caller.
func (r *GroupRegistry) Broadcast(groupID int, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("broadcast encode failed", zap.Int("group_id", groupID), zap.Error(err))
		return
	}

	r.mu.RLock()
	peers := append([]Peer(nil), r.groups[groupID]...)
	r.mu.RUnlock()

	for _, f := range fanOut(peers, payload) {
		r.logger.Warn("group send failed",
			zap.Int("group_id", groupID),
			zap.String("conn_id", f.peer.ID()),
			zap.Error(f.err),
		)
		observability.IncBroadcastFailure(kindGroup)
		r.Disconnect(groupID, f.peer)
		_ = f.peer.Close()
	}
}

// Count returns the number of connections registered under groupID.
func (r *GroupRegistry) Count(groupID int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[groupID])
}

// Has reports whether p is registered under groupID.
func (r *GroupRegistry) Has(groupID int, p Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, existing := range r.groups[groupID] {
		if existing == p {
			return true
		}
	}
	return false
}

// Groups returns the number of groups with at least one connection.
func (r *GroupRegistry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

type sendFailure struct {
	peer Peer
	err  error
}

// fanOut sends payload to each peer concurrently and returns the failures.
func fanOut(peers []Peer, payload []byte) []sendFailure {
	if len(peers) == 0 {
		return nil
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []sendFailure
	)
	for _, p := range peers {
		wg.Add(1)
		go func(p Peer) {
			defer wg.Done()
			if err := p.Send(payload); err != nil {
				mu.Lock()
				failures = append(failures, sendFailure{peer: p, err: err})
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return failures
}

func removePeer(peers []Peer, p Peer) []Peer {
	out := peers[:0]
	for _, existing := range peers {
		if existing != p {
			out = append(out, existing)
		}
	}
	for i := len(out); i < len(peers); i++ {
		peers[i] = nil
	}
	return out
}
