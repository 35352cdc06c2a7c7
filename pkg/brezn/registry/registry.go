// Package registry is the in-memory Peer Registry (§4.4): an
// LRU-capped directory of known peers with liveness, quality,
// verification state, and a derived topology view.
package registry

import (
	"sync"

	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/types"
)

// Registry is the Peer Registry. The zero value is not usable; use New.
type Registry struct {
	mu                   sync.Mutex
	peers                map[string]types.PeerInfo
	maxPeers             int
	connectionRetryLimit int
	log                  definition.Logger
	topologyVersion      uint64
}

// New builds a Registry bounded at maxPeers entries (I5).
func New(maxPeers, connectionRetryLimit int, log definition.Logger) *Registry {
	return &Registry{
		peers:                make(map[string]types.PeerInfo),
		maxPeers:             maxPeers,
		connectionRetryLimit: connectionRetryLimit,
		log:                  log,
	}
}

// Upsert inserts or updates a peer record. When the registry would
// exceed maxPeers, the entry with the oldest LastSeen is evicted first
// (I5/P6).
func (r *Registry) Upsert(peer types.PeerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[peer.NodeID]; !exists && len(r.peers) >= r.maxPeers {
		r.evictOldestLocked()
	}
	r.peers[peer.NodeID] = peer
}

func (r *Registry) evictOldestLocked() {
	var oldestID string
	var oldestSeen uint64
	first := true
	for id, p := range r.peers {
		if first || p.LastSeen < oldestSeen {
			oldestID = id
			oldestSeen = p.LastSeen
			first = false
		}
	}
	if oldestID != "" {
		delete(r.peers, oldestID)
		if r.log != nil {
			r.log.Debugf("evicted peer %s (last_seen=%d) to respect max_peers", oldestID, oldestSeen)
		}
	}
}

// Remove deletes a peer record, if present.
func (r *Registry) Remove(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, nodeID)
}

// Get returns a snapshot of a single peer record.
func (r *Registry) Get(nodeID string) (types.PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[nodeID]
	return p, ok
}

// List returns a snapshot of every known peer.
func (r *Registry) List() []types.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// Size returns the current peer count.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// ByQuality returns peers classified at the given Quality.
func (r *Registry) ByQuality(q types.Quality) []types.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.PeerInfo
	for _, p := range r.peers {
		if p.Quality == q {
			out = append(out, p)
		}
	}
	return out
}

// Verified returns every peer marked verified.
func (r *Registry) Verified() []types.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.PeerInfo
	for _, p := range r.peers {
		if p.Verified {
			out = append(out, p)
		}
	}
	return out
}

// ByCapability returns every peer advertising the given capability.
func (r *Registry) ByCapability(capability string) []types.PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.PeerInfo
	for _, p := range r.peers {
		if p.Capabilities[capability] {
			out = append(out, p)
		}
	}
	return out
}

// RecordConnectionAttempt increments the connection_attempts counter
// for a peer and reports whether the configured retry limit has been
// reached.
func (r *Registry) RecordConnectionAttempt(nodeID string) (exceeded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[nodeID]
	if !ok {
		return false
	}
	p.ConnAttempts++
	r.peers[nodeID] = p
	return p.ConnAttempts > r.connectionRetryLimit
}

// ResetConnectionAttempts clears the retry counter, e.g. after a
// successful operation.
func (r *Registry) ResetConnectionAttempts(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[nodeID]
	if !ok {
		return
	}
	p.ConnAttempts = 0
	r.peers[nodeID] = p
}

// EvictStale removes peers whose LastSeen is older than now-timeout
// seconds, returning the evicted node ids.
func (r *Registry) EvictStale(now, timeoutSeconds uint64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, p := range r.peers {
		if now > p.LastSeen && now-p.LastSeen > timeoutSeconds {
			evicted = append(evicted, id)
			delete(r.peers, id)
		}
	}
	return evicted
}
