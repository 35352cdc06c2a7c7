package replication

import (
	"encoding/json"
	"net"
	"time"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// sendEnvelope marshals an envelope and writes it as one frame.
func (e *Engine) sendEnvelope(conn net.Conn, t types.MessageType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.WrapError(types.KindProtocol, "marshal envelope payload", err)
	}
	env := types.Envelope{
		MessageType: t,
		Payload:     raw,
		Timestamp:   e.clock.Now(),
		NodeID:      e.cfg.NodeID,
	}
	envRaw, err := json.Marshal(env)
	if err != nil {
		return types.WrapError(types.KindProtocol, "marshal envelope", err)
	}
	return WriteFrame(conn, envRaw)
}

// handleEnvelope dispatches a decoded envelope per §4.6's message
// table. Per the handler-boundary rule, lookups happen under the
// registry/store's own short critical sections; this function never
// holds a lock itself across the outbound I/O below.
func (e *Engine) handleEnvelope(conn net.Conn, env types.Envelope) {
	switch env.MessageType {
	case types.MessagePing:
		if err := e.sendEnvelope(conn, types.MessagePong, types.Empty{}); err != nil {
			e.log.Debugf("failed replying pong: %v", err)
		}
	case types.MessagePong:
		// no action needed; arrival alone signals liveness.
	case types.MessagePost:
		var p types.Post
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			e.log.Debugf("dropping malformed post payload: %v", err)
			return
		}
		if _, err := e.ingestPost(p); err != nil {
			e.log.Debugf("post ingest failed: %v", err)
		}
	case types.MessagePostBroadcast:
		var pb types.PostBroadcast
		if err := json.Unmarshal(env.Payload, &pb); err != nil {
			e.log.Debugf("dropping malformed post_broadcast payload: %v", err)
			return
		}
		e.handleBroadcast(pb)
	case types.MessageRequestPosts:
		e.handleRequestPosts(conn)
	case types.MessageSyncRequest:
		var req types.SyncRequest
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			e.log.Debugf("dropping malformed sync_request payload: %v", err)
			return
		}
		e.handleSyncRequest(conn, req)
	case types.MessageSyncResponse:
		var resp types.SyncResponse
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			e.log.Debugf("dropping malformed sync_response payload: %v", err)
			return
		}
		e.ingestSyncResponse(resp)
	case types.MessageConfig:
		e.log.Debugf("received config message from %s, no local effect", env.NodeID)
	default:
		e.log.Warnf("ignoring unrecognized message_type %q from %s", env.MessageType, env.NodeID)
	}
}

// handleBroadcast implements the §4.6 receipt algorithm: drop on cache
// hit or zero TTL, else ingest and, if accepted, forward with a
// decremented TTL to every known peer (I4).
func (e *Engine) handleBroadcast(pb types.PostBroadcast) {
	if e.cache.seenOrRecord(pb.BroadcastID, time.Now()) || pb.TTL == 0 {
		return
	}
	e.metrics.IncBroadcastReceived()
	accepted, err := e.ingestPost(pb.Post)
	if err != nil {
		e.log.Debugf("broadcast ingest failed: %v", err)
		return
	}
	if !accepted {
		return
	}
	e.forwardBroadcast(pb.Post, pb.BroadcastID, pb.TTL-1, pb.OriginNode)
}

// forwardBroadcast fans a post_broadcast out to every known peer,
// dialing each independently so one slow/dead peer never blocks the
// others.
func (e *Engine) forwardBroadcast(post types.Post, broadcastID string, ttl uint32, origin string) {
	payload := types.PostBroadcast{
		Post:        post,
		BroadcastID: broadcastID,
		TTL:         ttl,
		OriginNode:  origin,
		BroadcastTs: e.clock.Now(),
	}
	for _, peer := range e.registry.List() {
		peer := peer
		e.inv.Spawn(func() {
			conn, err := e.dialer.Dial(peer.Address, peer.Port)
			if err != nil {
				e.log.Debugf("forward to %s failed: %v", peer.NodeID, err)
				return
			}
			defer conn.Close()
			if err := e.sendEnvelope(conn, types.MessagePostBroadcast, payload); err != nil {
				e.log.Debugf("forward to %s failed: %v", peer.NodeID, err)
				return
			}
			e.metrics.IncBroadcastForwarded()
		})
	}
}

// handleRequestPosts streams the locally ordered post log back as a
// sequence of post frames on the same connection (§4.6 request_posts).
func (e *Engine) handleRequestPosts(conn net.Conn) {
	posts, err := e.store.GetOrderedPosts(requestPostsStreamLimit)
	if err != nil {
		e.log.Warnf("request_posts query failed: %v", err)
		return
	}
	for _, p := range posts {
		if err := e.sendEnvelope(conn, types.MessagePost, p); err != nil {
			e.log.Debugf("request_posts stream write failed: %v", err)
			return
		}
	}
}

// SendRequestPosts issues a rate-limited request_posts to a peer,
// ingesting any post frames streamed back until the peer closes the
// connection (§4.6 rate limiting: suppressed within 30s of the last
// issue to the same peer).
func (e *Engine) SendRequestPosts(peer types.PeerInfo) error {
	e.mu.Lock()
	if last, ok := e.lastRequestSent[peer.NodeID]; ok && time.Since(last) < requestPostsCooldown {
		e.mu.Unlock()
		return nil
	}
	e.lastRequestSent[peer.NodeID] = time.Now()
	e.mu.Unlock()

	conn, err := e.dialer.Dial(peer.Address, peer.Port)
	if err != nil {
		return types.WrapError(types.KindTransport, "dial peer for request_posts", err)
	}
	defer conn.Close()

	if err := e.sendEnvelope(conn, types.MessageRequestPosts, types.Empty{}); err != nil {
		return err
	}

	decoder := &FrameDecoder{}
	buf := make([]byte, 4096)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
			for {
				raw, ok, decErr := decoder.Next()
				if decErr != nil {
					return decErr
				}
				if !ok {
					break
				}
				var env types.Envelope
				if err := json.Unmarshal(raw, &env); err != nil {
					continue
				}
				if env.MessageType == types.MessagePost {
					var p types.Post
					if err := json.Unmarshal(env.Payload, &p); err == nil {
						_, _ = e.ingestPost(p)
					}
				}
			}
		}
		if readErr != nil {
			return nil
		}
	}
}
