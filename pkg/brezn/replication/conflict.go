package replication

import (
	"sort"
	"strings"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// conflictsWith implements §4.6's conflict predicate: same content and
// pseudonym within the I2 window, or same node_id within the tighter
// same-node window.
func conflictsWith(a, b types.Post) bool {
	delta := absDeltaI64(a.Timestamp, b.Timestamp)
	if a.Content == b.Content && a.Pseudonym == b.Pseudonym && delta < types.NearDuplicateWindowSeconds {
		return true
	}
	if a.NodeID != "" && a.NodeID == b.NodeID && delta < types.SameNodeConflictWindowSeconds {
		return true
	}
	return false
}

func absDeltaI64(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// resolve applies a resolution strategy to a conflicting group of posts
// (the incoming post plus whatever it collided with) and reports the
// post that should end up persisted, if any (§4.6).
//
// Manual leaves the store untouched, so it returns ok=false: the caller
// records the conflict and stops.
func resolve(strategy types.ConflictResolutionStrategy, group []types.Post) (types.Post, bool) {
	if len(group) == 0 {
		return types.Post{}, false
	}
	switch strategy {
	case types.LatestWins:
		return maxByTimestamp(group), true
	case types.FirstWins:
		return minByTimestamp(group), true
	case types.ContentHash:
		return longestContentTieBrokenByHash(group), true
	case types.Merged:
		return merge(group), true
	case types.Manual:
		return types.Post{}, false
	default:
		return types.Post{}, false
	}
}

func maxByTimestamp(group []types.Post) types.Post {
	best := group[0]
	for _, p := range group[1:] {
		if p.Timestamp > best.Timestamp {
			best = p
		}
	}
	return best
}

func minByTimestamp(group []types.Post) types.Post {
	best := group[0]
	for _, p := range group[1:] {
		if p.Timestamp < best.Timestamp {
			best = p
		}
	}
	return best
}

func longestContentTieBrokenByHash(group []types.Post) types.Post {
	best := group[0]
	bestHash := types.NewPostID(best).Hash
	for _, p := range group[1:] {
		if len(p.Content) > len(best.Content) {
			best, bestHash = p, types.NewPostID(p).Hash
			continue
		}
		if len(p.Content) == len(best.Content) {
			h := types.NewPostID(p).Hash
			if h < bestHash {
				best, bestHash = p, h
			}
		}
	}
	return best
}

// merge concatenates distinct contents in timestamp order with " | ",
// bumps version, and is based on the earliest post (§4.6 Merged).
func merge(group []types.Post) types.Post {
	sorted := make([]types.Post, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	base := sorted[0]
	var parts []string
	seen := make(map[string]bool)
	for _, p := range sorted {
		if !seen[p.Content] {
			seen[p.Content] = true
			parts = append(parts, p.Content)
		}
	}

	merged := base
	merged.Content = strings.Join(parts, " | ")
	merged.Version = base.Version + 1
	return merged
}
