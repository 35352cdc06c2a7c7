package discovery

// MessageType enumerates the presence-protocol message kinds exchanged
// over the broadcast/multicast sockets (§4.5).
type MessageType string

const (
	TypeAnnounce     MessageType = "announce"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeCapabilities MessageType = "capabilities"
)

// Message is the wire shape for every presence datagram: a small JSON
// document, one per UDP packet, no length framing (unlike the TCP
// replication wire format).
type Message struct {
	Type         MessageType     `json:"type"`
	NodeID       string          `json:"node_id"`
	PublicKey    string          `json:"public_key,omitempty"`
	Address      string          `json:"address"`
	Port         uint16          `json:"port"`
	Timestamp    uint64          `json:"timestamp"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}
