package types

// Quality is a discrete latency class used for scoring and filtering
// peers (§4.4). It is not a measured SLO.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityUnknown   Quality = "unknown"
)

// QualityFromLatency classifies a latency reading per §4.4:
// [0,50]→Excellent, (50,100]→Good, (100,200]→Fair, >200→Poor.
func QualityFromLatency(latencyMs uint64) Quality {
	switch {
	case latencyMs <= 50:
		return QualityExcellent
	case latencyMs <= 100:
		return QualityGood
	case latencyMs <= 200:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Score returns the numeric weight used by topology analysis.
func (q Quality) Score() float64 {
	switch q {
	case QualityExcellent:
		return 1.0
	case QualityGood:
		return 0.8
	case QualityFair:
		return 0.6
	case QualityPoor:
		return 0.3
	default:
		return 0.5
	}
}

// PeerInfo is everything the Peer Registry knows about a remote node.
type PeerInfo struct {
	NodeID        string          `json:"node_id"`
	Address       string          `json:"address"`
	Port          uint16          `json:"port"`
	PublicKey     string          `json:"public_key,omitempty"`
	LastSeen      uint64          `json:"last_seen"`
	Quality       Quality         `json:"quality"`
	LatencyMs     *uint64         `json:"latency_ms,omitempty"`
	Capabilities  map[string]bool `json:"capabilities,omitempty"`
	Verified      bool            `json:"verified"`
	ViaTor        bool            `json:"via_tor"`
	CircuitID     string          `json:"circuit_id,omitempty"`
	Health        float64         `json:"health"`
	ConnAttempts  int             `json:"connection_attempts"`
}

// SyncStatus tracks how up to date a peer's feed view is believed to be.
type SyncStatus string

const (
	Synchronized SyncStatus = "synchronized"
	Pending      SyncStatus = "pending"
	Failed       SyncStatus = "failed"
	OutOfSync    SyncStatus = "out_of_sync"
)

// PeerFeedState is the per-peer view held inside FeedState.
type PeerFeedState struct {
	NodeID             string     `json:"node_id"`
	LastSeenTs         uint64     `json:"last_seen_ts"`
	LastPostTs         uint64     `json:"last_post_ts"`
	PostCount          int        `json:"post_count"`
	SyncStatus         SyncStatus `json:"sync_status"`
	LastSyncAttemptTs  uint64     `json:"last_sync_attempt_ts"`
}

// FeedState is a node's self-reported replication view.
type FeedState struct {
	NodeID       string                   `json:"node_id"`
	LastSyncTs   uint64                   `json:"last_sync_ts"`
	PostCount    int                      `json:"post_count"`
	LastPostID   *PostID                  `json:"last_post_id,omitempty"`
	PeerStates   map[string]PeerFeedState `json:"peer_states"`
}

// SegmentType classifies a connected subgraph of the peer topology
// (§4.4 derived view; supplemented from original_source network.rs).
type SegmentType string

const (
	SegmentCore     SegmentType = "core"
	SegmentEdge     SegmentType = "edge"
	SegmentBridge   SegmentType = "bridge"
	SegmentIsolated SegmentType = "isolated"
)

// Segment is one connected component of the peer graph, classified by
// size and average quality score.
type Segment struct {
	Members []string    `json:"members"`
	Type    SegmentType `json:"type"`
}

// Topology is the derived, versioned view over the Peer Registry.
type Topology struct {
	Segments        []Segment `json:"segments"`
	TopologyVersion uint64    `json:"topology_version"`
}
