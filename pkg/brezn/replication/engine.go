package replication

import (
	"bufio"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dabena/brezn/internal/invoker"
	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/metrics"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/store"
	"github.com/dabena/brezn/pkg/brezn/types"
)

const (
	defaultTTL                = 5
	requestPostsCooldown      = 30 * time.Second
	livenessInterval          = 60 * time.Second
	livenessPeerTimeout       = 600 * time.Second
	requestPostsStreamLimit   = 500
)

// Dialer opens an outbound TCP stream to (host, port), directly or via
// a SOCKS5 tunnel (§4.3/§4.6's "opens outbound tunnels directly or via
// the SOCKS5 client").
type Dialer interface {
	Dial(host string, port uint16) (net.Conn, error)
}

// directDialer dials plainly, used when Tor is disabled.
type directDialer struct {
	timeout time.Duration
}

func (d directDialer) Dial(host string, port uint16) (net.Conn, error) {
	return net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))), d.timeout)
}

// NewDirectDialer builds a Dialer that opens plain TCP connections,
// used when tor_enabled is false.
func NewDirectDialer(timeout time.Duration) Dialer {
	return directDialer{timeout: timeout}
}

// Config configures the Replication Engine (§4.6).
type Config struct {
	NodeID            string
	ListenPort        uint16
	ConflictStrategy  types.ConflictResolutionStrategy
	ConnectionTimeout time.Duration
}

// Engine is the Replication Engine: the TCP server/client, broadcast,
// conflict resolution, sequencing, and sync protocol implementation.
type Engine struct {
	cfg      Config
	store    *store.Store
	registry *registry.Registry
	log      definition.Logger
	clock    definition.Clock
	dialer   Dialer
	metrics  *metrics.Collector

	cache *broadcastCache

	mu              sync.Mutex
	lastRequestSent map[string]time.Time
	feedStates      map[string]types.PeerFeedState

	listener net.Listener
	ctx      chan struct{}
	closed   bool
	inv      *invoker.Invoker
}

// New builds an Engine; call Start to open the TCP listener and begin
// background loops.
func New(cfg Config, st *store.Store, reg *registry.Registry, log definition.Logger, clock definition.Clock, dialer Dialer) *Engine {
	if cfg.ConflictStrategy == "" {
		cfg.ConflictStrategy = types.LatestWins
	}
	return &Engine{
		cfg:             cfg,
		store:           st,
		registry:        reg,
		log:             log,
		clock:           clock,
		dialer:          dialer,
		cache:           newBroadcastCache(),
		lastRequestSent: make(map[string]time.Time),
		feedStates:      make(map[string]types.PeerFeedState),
		ctx:             make(chan struct{}),
		inv:             invoker.New(),
	}
}

// NodeID returns the engine's configured node identity.
func (e *Engine) NodeID() string { return e.cfg.NodeID }

// WithMetrics attaches a metrics collector; Engine works without one.
func (e *Engine) WithMetrics(m *metrics.Collector) *Engine {
	e.metrics = m
	return e
}

// Start opens the TCP listener and spawns the accept and liveness
// loops.
func (e *Engine) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(e.cfg.ListenPort))))
	if err != nil {
		return types.WrapError(types.KindTransport, "listen for replication connections", err)
	}
	e.listener = ln
	e.inv.Spawn(e.acceptLoop)
	e.inv.Spawn(e.livenessLoop)
	e.inv.Spawn(e.consistencyLoop)
	e.inv.Spawn(e.metricsLoop)
	e.log.Infof("replication engine listening on %s", ln.Addr())
	return nil
}

// Stop closes the listener, signals background loops to exit, and
// waits for them to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.ctx)
	if e.listener != nil {
		_ = e.listener.Close()
	}
	e.inv.Wait()
}

func (e *Engine) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.ctx:
				return
			default:
				e.log.Warnf("accept failed: %v", err)
				return
			}
		}
		e.inv.Spawn(func() { e.serveConn(conn) })
	}
}

// serveConn reads frames off a single connection until it closes,
// dispatching each decoded envelope.
func (e *Engine) serveConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		raw, err := ReadFrame(r)
		if err != nil {
			return
		}
		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			e.log.Debugf("dropping malformed envelope: %v", err)
			continue
		}
		e.handleEnvelope(conn, env)
	}
}

// Publish is the local-origin path: validate, persist, sequence, wrap
// in a fresh post_broadcast, and fan out to every known peer (§4.6 step 1).
func (e *Engine) Publish(content, pseudonym string) (types.PostID, error) {
	post := types.Post{
		Content:   content,
		Timestamp: e.clock.Now(),
		Pseudonym: pseudonym,
		NodeID:    e.cfg.NodeID,
		Version:   1,
	}
	if !post.IsValid() {
		return types.PostID{}, types.ErrInvalidPost
	}
	accepted, err := e.ingestPost(post)
	if err != nil {
		return types.PostID{}, err
	}
	if !accepted {
		return types.PostID{}, types.ErrDuplicatePost
	}

	broadcastID := uuid.NewString()
	e.cache.seenOrRecord(broadcastID, time.Now())
	e.metrics.IncBroadcastSent()
	e.forwardBroadcast(post, broadcastID, defaultTTL, e.cfg.NodeID)
	return types.NewPostID(post), nil
}

// ingestPost runs the §4.6 conflict-aware ingestion pipeline shared by
// local publish, inbound broadcast, and sync ingestion. It returns
// whether the post caused a persisted change.
func (e *Engine) ingestPost(p types.Post) (bool, error) {
	if !p.IsValid() {
		return false, types.ErrInvalidPost
	}

	newHash := types.NewPostID(p).Hash
	conflicts, err := e.store.FindConflicting(p, conflictsWith)
	if err != nil {
		return false, err
	}

	var exact bool
	for _, c := range conflicts {
		if types.NewPostID(c).Hash == newHash {
			exact = true
			break
		}
	}
	if exact {
		return false, nil
	}

	if len(conflicts) == 0 {
		seq, err := e.store.Add(p)
		if err != nil {
			if types.IsDuplicate(err) {
				return false, nil
			}
			return false, err
		}
		e.metrics.IncPostIngested()
		return e.assignOrder(p, seq)
	}

	e.metrics.IncConflictDetected()
	return e.resolveAndPersist(p, conflicts)
}

func (e *Engine) resolveAndPersist(incoming types.Post, conflicts []types.Post) (bool, error) {
	group := append(append([]types.Post{}, conflicts...), incoming)
	winner, ok := resolve(e.cfg.ConflictStrategy, group)
	if !ok {
		postID := types.NewPostID(incoming)
		if _, err := e.store.RecordConflict(postID, conflicts, e.cfg.ConflictStrategy, e.clock.Now()); err != nil {
			return false, err
		}
		return false, nil
	}

	e.metrics.IncConflictResolved()
	winnerHash := types.NewPostID(winner).Hash
	changed := false
	for _, old := range conflicts {
		if types.NewPostID(old).Hash == winnerHash {
			continue
		}
		if err := e.store.Remove(old); err != nil {
			return false, err
		}
		changed = true
	}

	alreadyPresent := false
	for _, old := range conflicts {
		if types.NewPostID(old).Hash == winnerHash {
			alreadyPresent = true
		}
	}
	if !alreadyPresent {
		seq, err := e.store.Add(winner)
		if err != nil {
			if !types.IsDuplicate(err) {
				return false, err
			}
		} else {
			if _, err := e.assignOrder(winner, seq); err != nil {
				return false, err
			}
		}
		changed = true
	}
	return changed, nil
}

// assignOrder records a post_order row keyed by seq, the sequence
// number bbolt already assigned the post inside Store.Add's own
// transaction (its bucket's NextSequence counter). Deriving the
// sequence number from a separate PostCount read here would race
// across the concurrent ingestPost callers (one per inbound
// connection, plus local Publish and sync ingestion): two acceptances
// could read the same count and collide on the same post_order key.
func (e *Engine) assignOrder(p types.Post, seq uint64) (bool, error) {
	order := types.PostOrder{
		PostID:         types.NewPostID(p),
		SequenceNumber: seq,
		Timestamp:      p.Timestamp,
		NodeID:         p.NodeID,
	}
	if err := e.store.RecordOrder(order); err != nil {
		return false, err
	}
	return true, nil
}
