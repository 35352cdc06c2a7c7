package types

import "encoding/json"

// MessageType enumerates the recognized envelope payload shapes (§4.6).
// Handlers are a fixed match over this tagged variant rather than open
// polymorphism, per the teacher's switch-on-header style
// (pkg/mcast/protocol.go Unity.process) and the spec's design note
// against reflection/duck typing.
type MessageType string

const (
	MessagePost          MessageType = "post"
	MessageConfig        MessageType = "config"
	MessagePing          MessageType = "ping"
	MessagePong          MessageType = "pong"
	MessageRequestPosts  MessageType = "request_posts"
	MessagePostBroadcast MessageType = "post_broadcast"
	MessageSyncRequest   MessageType = "sync_request"
	MessageSyncResponse  MessageType = "sync_response"
)

// Envelope is the wire message wrapper (§4.6, §6): every frame carries
// a type tag, a raw JSON payload, a timestamp, and the sender's node id.
type Envelope struct {
	MessageType MessageType     `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   uint64          `json:"timestamp"`
	NodeID      string          `json:"node_id"`
}

// PostBroadcast is the payload of a post_broadcast message (§4.6).
type PostBroadcast struct {
	Post           Post   `json:"post"`
	BroadcastID    string `json:"broadcast_id"`
	TTL            uint32 `json:"ttl"`
	OriginNode     string `json:"origin_node"`
	BroadcastTs    uint64 `json:"broadcast_ts"`
}

// SyncMode selects the kind of synchronization requested.
type SyncMode string

const (
	SyncFull        SyncMode = "full"
	SyncIncremental SyncMode = "incremental"
	SyncConflict    SyncMode = "conflict"
	SyncSelective   SyncMode = "selective"
)

// SyncRequest is the payload of a sync_request message (§4.6).
type SyncRequest struct {
	RequestingNode  string   `json:"requesting_node"`
	LastKnownTs     uint64   `json:"last_known_ts"`
	RequestedCount  int      `json:"requested_count"`
	Mode            SyncMode `json:"mode"`
}

// SyncResponse is the payload of a sync_response message (§4.6).
type SyncResponse struct {
	RespondingNode string         `json:"responding_node"`
	Posts          []Post         `json:"posts"`
	Conflicts      []PostConflict `json:"conflicts"`
	FeedState      FeedState      `json:"feed_state"`
	SyncTs         uint64         `json:"sync_ts"`
}

// Empty is the payload shape for messages carrying no data
// (ping, pong, request_posts).
type Empty struct{}
