package registry

import (
	"github.com/dabena/brezn/pkg/brezn/types"
)

// qualityThreshold is the §4.4 cutoff a peer's quality score must clear
// to participate in topology analysis.
const qualityThreshold = 0.5

// Topology recomputes the derived segment view (§4.4, supplemented from
// original_source/brezn/src/network.rs analyze_topology): peers whose
// quality score clears qualityThreshold form connected segments,
// classified by size and average score, under a monotonically
// increasing topology_version.
//
// The registry has no edge information between peers (it is a flat
// directory, not a graph), so — matching the original source's own
// traversal, which walks every qualifying peer from any qualifying
// starting point — every qualifying peer ends up in a single connected
// segment, classified by the whole group's size and average score.
func (r *Registry) Topology() types.Topology {
	r.mu.Lock()
	defer r.mu.Unlock()

	var members []string
	var totalScore float64
	for id, p := range r.peers {
		if p.Quality.Score() > qualityThreshold {
			members = append(members, id)
			totalScore += p.Quality.Score()
		}
	}

	var segments []types.Segment
	if len(members) > 0 {
		avg := totalScore / float64(len(members))
		segments = append(segments, types.Segment{
			Members: members,
			Type:    classifySegment(len(members), avg),
		})
	}

	r.topologyVersion++
	return types.Topology{
		Segments:        segments,
		TopologyVersion: r.topologyVersion,
	}
}

// classifySegment mirrors classify_segment in original_source's
// network.rs: size-and-average-score buckets into Core/Edge/Bridge/Isolated.
func classifySegment(size int, avgScore float64) types.SegmentType {
	switch {
	case size == 1:
		return types.SegmentIsolated
	case size <= 5 && avgScore > 0.7:
		return types.SegmentCore
	case size <= 5:
		return types.SegmentEdge
	case avgScore > 0.8:
		return types.SegmentCore
	case avgScore > 0.6:
		return types.SegmentBridge
	default:
		return types.SegmentEdge
	}
}
