// Package identity assigns each node a stable NodeId and exposes the
// content-hashing primitive behind PostId (§4.2).
package identity

import (
	"github.com/google/uuid"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// NodeID is an opaque 128-bit identifier, generated once at first start
// and stable across restarts (§3). It is rendered as a UUIDv4 string.
type NodeID string

// NewNodeID generates a fresh, process-unique NodeID.
func NewNodeID() NodeID {
	return NodeID(uuid.NewString())
}

// ParseNodeID validates and wraps an externally supplied node id
// string (e.g. loaded from persisted state).
func ParseNodeID(s string) (NodeID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", types.WrapError(types.KindInvalid, "malformed node id", err)
	}
	return NodeID(s), nil
}

func (n NodeID) String() string { return string(n) }

// PostIdentity computes a post's PostId, re-exported here as the
// identity-owning operation named in §4.2 (types.NewPostID holds the
// actual algorithm so the Store package, which cannot import identity
// without a cycle, can compute it too).
func PostIdentity(p types.Post) types.PostID {
	return types.NewPostID(p)
}
