package replication

import (
	"sync"
	"time"
)

const broadcastCacheTTL = 5 * time.Minute

// broadcastCache remembers recently seen broadcast_ids for a short
// window so a re-delivered copy of the same gossip message is silently
// dropped instead of re-ingested and re-forwarded (§4.6 step 2/3).
type broadcastCache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
}

func newBroadcastCache() *broadcastCache {
	return &broadcastCache{seen: make(map[string]time.Time), ttl: broadcastCacheTTL}
}

// seenOrRecord reports whether id was already cached; if not, it
// records it and sweeps expired entries.
func (c *broadcastCache) seenOrRecord(id string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.seen[id]; ok && now.Sub(ts) < c.ttl {
		return true
	}
	c.seen[id] = now
	for k, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, k)
		}
	}
	return false
}
