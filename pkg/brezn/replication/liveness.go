package replication

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// livenessLoop implements §4.6's liveness sweep: every 60s, evict
// peers unseen for over 600s, then ping the remainder, evicting any
// that fail the send.
func (e *Engine) livenessLoop() {
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx:
			return
		case <-ticker.C:
			e.sweepLiveness()
		}
	}
}

func (e *Engine) sweepLiveness() {
	evicted := e.registry.EvictStale(e.clock.Now(), uint64(livenessPeerTimeout.Seconds()))
	for _, id := range evicted {
		e.log.Infof("replication liveness sweep evicted stale peer %s", id)
	}

	for _, peer := range e.registry.List() {
		if err := e.ping(peer); err != nil {
			e.log.Infof("replication liveness ping to %s failed, evicting: %v", peer.NodeID, err)
			e.registry.Remove(peer.NodeID)
		}
	}
}

// ping opens a short-lived connection, sends a ping envelope, and
// expects a pong back before the connection timeout.
func (e *Engine) ping(peer types.PeerInfo) error {
	conn, err := e.dialer.Dial(peer.Address, peer.Port)
	if err != nil {
		return types.WrapError(types.KindTransport, "dial peer for liveness ping", err)
	}
	defer conn.Close()

	if err := e.sendEnvelope(conn, types.MessagePing, types.Empty{}); err != nil {
		return err
	}
	if deadline, ok := e.pingDeadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	raw, err := ReadFrame(bufio.NewReader(conn))
	if err != nil {
		return types.WrapError(types.KindTransport, "read pong", err)
	}
	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.WrapError(types.KindProtocol, "decode pong envelope", err)
	}
	if env.MessageType != types.MessagePong {
		return types.NewError(types.KindProtocol, "expected pong")
	}
	return nil
}

func (e *Engine) pingDeadline() (time.Time, bool) {
	if e.cfg.ConnectionTimeout <= 0 {
		return time.Time{}, false
	}
	return time.Now().Add(e.cfg.ConnectionTimeout), true
}
