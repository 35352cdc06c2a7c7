package replication

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dabena/brezn/pkg/brezn/types"
)

const consistencyInterval = 5 * time.Minute

// consistencyLoop periodically ensures feed consistency across every
// known peer by running an incremental sync against each of them
// concurrently, layered on top of the single-peer sync protocol.
func (e *Engine) consistencyLoop() {
	ticker := time.NewTicker(consistencyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx:
			return
		case <-ticker.C:
			if err := e.EnsureFeedConsistency(); err != nil {
				e.log.Warnf("feed consistency sweep encountered errors: %v", err)
			}
		}
	}
}

// EnsureFeedConsistency fans an incremental SyncRequest out to every
// peer the registry currently knows about and waits for all of them to
// finish, returning the first error encountered (if any) while letting
// every peer's sync run to completion regardless of the others.
func (e *Engine) EnsureFeedConsistency() error {
	peers := e.registry.List()
	var g errgroup.Group
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			lastKnown := uint64(0)
			e.mu.Lock()
			if state, ok := e.feedStates[peer.NodeID]; ok {
				lastKnown = state.LastSyncAttemptTs
			}
			e.mu.Unlock()
			if err := e.RequestSync(peer, lastKnown, requestPostsStreamLimit, types.SyncIncremental); err != nil {
				e.log.Debugf("feed consistency sync failed for peer %s: %v", peer.NodeID, err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
