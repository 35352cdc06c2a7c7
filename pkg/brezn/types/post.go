// Package types holds the data model shared across the brezn core:
// posts, identifiers, peer records, feed state, and the wire message
// envelope. Mirrors the teacher's pkg/mcast/types package layout.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// MaxContentLength is the upper bound on Post.Content enforced by
	// IsValid; PostValidationConfig's values do not change it.
	MaxContentLength = 1000
	// MaxPseudonymLength is the default upper bound on Post.Pseudonym.
	MaxPseudonymLength = 50
	// NearDuplicateWindowSeconds is the I2 near-duplicate window.
	NearDuplicateWindowSeconds = 300
	// SameNodeConflictWindowSeconds is the §4.6(b) same-node conflict window.
	SameNodeConflictWindowSeconds = 60
)

// Post is a single micro-entry in a node's feed.
type Post struct {
	Content   string `json:"content"`
	Timestamp uint64 `json:"timestamp"`
	Pseudonym string `json:"pseudonym"`
	NodeID    string `json:"node_id,omitempty"`
	Version   uint32 `json:"version"`
	ParentID  string `json:"parent_id,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// IsValid implements the I6 validity predicate: non-empty content
// within length, pseudonym within length, non-zero timestamp.
func (p Post) IsValid() bool {
	if len(p.Content) == 0 || len(p.Content) > MaxContentLength {
		return false
	}
	if len(p.Pseudonym) == 0 || len(p.Pseudonym) > MaxPseudonymLength {
		return false
	}
	return p.Timestamp != 0
}

// PostID is a post's content-addressed logical identity (§4.2).
type PostID struct {
	Hash      string `json:"hash"`
	Timestamp uint64 `json:"timestamp"`
	NodeID    string `json:"node_id"`
}

// Canonical builds the canonical string hashed into a PostID:
// "content|timestamp|pseudonym|node_id".
func Canonical(p Post) string {
	return fmt.Sprintf("%s|%d|%s|%s", p.Content, p.Timestamp, p.Pseudonym, p.NodeID)
}

// NewPostID computes the PostId of a post per §4.2: the hex SHA-256 of
// the UTF-8 canonical form.
func NewPostID(p Post) PostID {
	sum := sha256.Sum256([]byte(Canonical(p)))
	return PostID{
		Hash:      hex.EncodeToString(sum[:]),
		Timestamp: p.Timestamp,
		NodeID:    p.NodeID,
	}
}

// PostOrder is a local sequence entry assigned on acceptance (§4.6).
type PostOrder struct {
	PostID          PostID  `json:"post_id"`
	SequenceNumber  uint64  `json:"sequence_number"`
	Timestamp       uint64  `json:"timestamp"`
	NodeID          string  `json:"node_id"`
	ParentSequence  *uint64 `json:"parent_sequence,omitempty"`
}

// ConflictResolutionStrategy selects how PostConflict is resolved.
type ConflictResolutionStrategy string

const (
	LatestWins ConflictResolutionStrategy = "latest_wins"
	FirstWins  ConflictResolutionStrategy = "first_wins"
	ContentHash ConflictResolutionStrategy = "content_hash"
	Merged     ConflictResolutionStrategy = "merged"
	Manual     ConflictResolutionStrategy = "manual"
)

// PostConflict records two or more posts that collided under I2/§4.6
// conflict detection.
type PostConflict struct {
	ID               int64                      `json:"id,omitempty"`
	PostID           PostID                     `json:"post_id"`
	ConflictingPosts []Post                     `json:"conflicting_posts"`
	Strategy         ConflictResolutionStrategy `json:"resolution_strategy"`
	ResolvedAt       *uint64                    `json:"resolved_at,omitempty"`
	CreatedAt        uint64                     `json:"created_at"`
}

// VerificationStatus is intentionally coarse: the spec's Open Question
// leaves signing/verification undefined, so every post is reported
// Pending or Unsupported, never Verified or Failed, until a key-exchange
// specification exists.
type VerificationStatus string

const (
	VerificationPending     VerificationStatus = "pending"
	VerificationUnsupported VerificationStatus = "unsupported"
)

// DataIntegrityCheck is the opaque verification result surfaced for a
// post; see the Open Question decision in DESIGN.md.
type DataIntegrityCheck struct {
	PostID             PostID             `json:"post_id"`
	ContentHash        string             `json:"content_hash"`
	VerificationStatus VerificationStatus `json:"verification_status"`
}
