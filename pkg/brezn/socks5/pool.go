package socks5

import (
	"net"
	"sync"
	"time"
)

// PooledConnection is a reusable tunnel handle tagged with its owning
// circuit (§4.3 pooling).
type PooledConnection struct {
	Conn      net.Conn
	CircuitID string
	LastUsed  time.Time
}

// pool maps "host:port" to a reusable tunnel. A bounded semaphore caps
// concurrent tunnels at max_connections (§5 shared resources).
type pool struct {
	mu      sync.Mutex
	entries map[string]*PooledConnection
	sem     chan struct{}
}

func newPool(maxConnections int) *pool {
	return &pool{
		entries: make(map[string]*PooledConnection),
		sem:     make(chan struct{}, maxConnections),
	}
}

// acquire blocks until a tunnel permit is free; it has no timeout.
// Returns a release function.
func (p *pool) acquire() (release func()) {
	p.sem <- struct{}{}
	return func() { <-p.sem }
}

// get returns a pooled connection for destination if one is healthy
// (its circuit is not Retired), else ok is false.
func (p *pool) get(destination string, healthy func(circuitID string) bool) (*PooledConnection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[destination]
	if !ok {
		return nil, false
	}
	if !healthy(entry.CircuitID) {
		delete(p.entries, destination)
		_ = entry.Conn.Close()
		return nil, false
	}
	return entry, true
}

func (p *pool) put(destination string, entry *PooledConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[destination] = entry
}

// evictByCircuit drops every pooled entry tagged with circuitID,
// called when that circuit is retired or rotated away.
func (p *pool) evictByCircuit(circuitID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for dest, entry := range p.entries {
		if entry.CircuitID == circuitID {
			_ = entry.Conn.Close()
			delete(p.entries, dest)
		}
	}
}

// clear drops every pooled entry, closing the underlying connections.
func (p *pool) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for dest, entry := range p.entries {
		_ = entry.Conn.Close()
		delete(p.entries, dest)
	}
}
