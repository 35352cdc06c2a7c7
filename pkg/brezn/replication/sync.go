package replication

import (
	"bufio"
	"encoding/json"
	"net"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// handleSyncRequest answers a sync_request on the same connection
// (§4.6 sync protocol, responder side).
func (e *Engine) handleSyncRequest(conn net.Conn, req types.SyncRequest) {
	e.metrics.IncSyncRequestReceived()
	var posts []types.Post
	var err error

	switch req.Mode {
	case types.SyncFull:
		posts, err = e.store.QuerySince(0)
	case types.SyncConflict:
		posts = nil
	default: // Incremental, Selective: best-effort treated the same as Incremental.
		posts, err = e.store.QuerySince(req.LastKnownTs)
	}
	if err != nil {
		e.log.Warnf("sync_request query failed: %v", err)
		return
	}
	if req.RequestedCount > 0 && len(posts) > req.RequestedCount {
		posts = posts[:req.RequestedCount]
	}

	conflicts, err := e.store.ListUnresolvedConflicts()
	if err != nil {
		e.log.Warnf("sync_request conflict query failed: %v", err)
		conflicts = nil
	}

	resp := types.SyncResponse{
		RespondingNode: e.cfg.NodeID,
		Posts:          posts,
		Conflicts:      conflicts,
		FeedState:      e.buildFeedState(),
		SyncTs:         e.clock.Now(),
	}
	if err := e.sendEnvelope(conn, types.MessageSyncResponse, resp); err != nil {
		e.log.Debugf("sync_response write failed: %v", err)
	}
}

func (e *Engine) buildFeedState() types.FeedState {
	count, _ := e.store.PostCount()
	e.mu.Lock()
	states := make(map[string]types.PeerFeedState, len(e.feedStates))
	for k, v := range e.feedStates {
		states[k] = v
	}
	e.mu.Unlock()
	return types.FeedState{
		NodeID:     e.cfg.NodeID,
		LastSyncTs: e.clock.Now(),
		PostCount:  count,
		PeerStates: states,
	}
}

// RequestSync issues a sync_request to a peer and ingests the
// resulting sync_response (§4.6 sync protocol, requester side).
func (e *Engine) RequestSync(peer types.PeerInfo, lastKnownTs uint64, requestedCount int, mode types.SyncMode) error {
	e.metrics.IncSyncRequestSent()
	conn, err := e.dialer.Dial(peer.Address, peer.Port)
	if err != nil {
		e.markFeedState(peer.NodeID, types.Failed)
		return types.WrapError(types.KindTransport, "dial peer for sync_request", err)
	}
	defer conn.Close()

	req := types.SyncRequest{
		RequestingNode: e.cfg.NodeID,
		LastKnownTs:    lastKnownTs,
		RequestedCount: requestedCount,
		Mode:           mode,
	}
	if err := e.sendEnvelope(conn, types.MessageSyncRequest, req); err != nil {
		e.markFeedState(peer.NodeID, types.Failed)
		return err
	}

	raw, err := ReadFrame(bufio.NewReader(conn))
	if err != nil {
		e.markFeedState(peer.NodeID, types.Failed)
		return types.WrapError(types.KindTransport, "read sync_response", err)
	}
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.WrapError(types.KindProtocol, "decode sync_response envelope", err)
	}
	if env.MessageType != types.MessageSyncResponse {
		return types.NewError(types.KindProtocol, "expected sync_response")
	}
	var resp types.SyncResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		return types.WrapError(types.KindProtocol, "decode sync_response payload", err)
	}
	e.ingestSyncResponse(resp)
	e.markFeedState(peer.NodeID, types.Synchronized)
	return nil
}

// ingestSyncResponse ingests every post through the shared conflict
// pipeline and records the responder's unresolved conflicts locally.
func (e *Engine) ingestSyncResponse(resp types.SyncResponse) {
	for _, p := range resp.Posts {
		if _, err := e.ingestPost(p); err != nil {
			e.log.Debugf("sync ingest failed for post from %s: %v", resp.RespondingNode, err)
		}
	}
	for _, c := range resp.Conflicts {
		if _, err := e.store.RecordConflict(c.PostID, c.ConflictingPosts, c.Strategy, e.clock.Now()); err != nil {
			e.log.Debugf("recording synced conflict failed: %v", err)
		}
	}
	if resp.RespondingNode != "" {
		if err := e.store.SetSyncTimestamp(resp.RespondingNode, resp.SyncTs, e.clock.Now()); err != nil {
			e.log.Debugf("persisting sync timestamp failed: %v", err)
		}
	}
}

// FeedStates snapshots the per-peer sync status view (§4.6).
func (e *Engine) FeedStates() map[string]types.PeerFeedState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]types.PeerFeedState, len(e.feedStates))
	for k, v := range e.feedStates {
		out[k] = v
	}
	return out
}

func (e *Engine) markFeedState(peerID string, status types.SyncStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.feedStates[peerID]
	state.NodeID = peerID
	state.SyncStatus = status
	state.LastSyncAttemptTs = e.clock.Now()
	e.feedStates[peerID] = state
}
