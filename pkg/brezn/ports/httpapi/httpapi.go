// Package httpapi exposes Brezn's management HTTP/JSON surface,
// mirroring the original Rust daemon's actix routes (§4.7): post
// CRUD, network status/peers/connect, QR bootstrap, and discovery
// peers, plus a /metrics endpoint for the Prometheus collector.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/metrics"
	"github.com/dabena/brezn/pkg/brezn/qr"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/replication"
	"github.com/dabena/brezn/pkg/brezn/store"
	"github.com/dabena/brezn/pkg/brezn/types"
)

// Server wires the storage, replication, and discovery layers behind
// an HTTP/JSON surface.
type Server struct {
	engine   *replication.Engine
	store    *store.Store
	registry *registry.Registry
	cfg      types.Config
	identity Identity
	log      definition.Logger
	clock    definition.Clock
	metrics  *metrics.Collector
}

// Identity carries the values the QR bootstrap payload needs but that
// don't belong on Config or Engine.
type Identity struct {
	PublicKey string
	Address   string
}

// New builds a Server; call Router to obtain the http.Handler to serve.
func New(engine *replication.Engine, st *store.Store, reg *registry.Registry, cfg types.Config, id Identity, log definition.Logger, clock definition.Clock, m *metrics.Collector) *Server {
	return &Server{engine: engine, store: st, registry: reg, cfg: cfg, identity: id, log: log, clock: clock, metrics: m}
}

// Router builds the mux.Router serving every management endpoint.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/posts", s.handleGetPosts).Methods(http.MethodGet)
	r.HandleFunc("/api/posts", s.handleCreatePost).Methods(http.MethodPost)
	r.HandleFunc("/api/posts/{id}", s.handleDeletePost).Methods(http.MethodDelete)
	r.HandleFunc("/api/config", s.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/network/status", s.handleNetworkStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/network/peers", s.handleNetworkPeers).Methods(http.MethodGet)
	r.HandleFunc("/api/network/connect", s.handleConnectPeer).Methods(http.MethodPost)
	r.HandleFunc("/api/network/qr", s.handleGenerateQR).Methods(http.MethodGet)
	r.HandleFunc("/api/network/parse-qr", s.handleParseQR).Methods(http.MethodPost)
	r.HandleFunc("/api/discovery/peers", s.handleDiscoveryPeers).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "brezn",
		"node_id": s.engine.NodeID(),
	})
}

func (s *Server) handleGetPosts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	posts, err := s.store.QueryRecent(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

type createPostRequest struct {
	Content   string `json:"content"`
	Pseudonym string `json:"pseudonym"`
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.Pseudonym == "" {
		req.Pseudonym = s.cfg.DefaultPseudonym
	}
	id, err := s.engine.Publish(req.Content, req.Pseudonym)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"message": "post created successfully",
	})
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["id"]
	post, found, err := s.store.GetByHash(hash)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
		return
	}
	if err := s.store.Remove(post); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "post deleted successfully"})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":     s.engine.NodeID(),
		"peer_count":  s.registry.Size(),
		"topology":    s.registry.Topology(),
		"feed_states": s.engine.FeedStates(),
	})
}

func (s *Server) handleNetworkPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

type connectPeerRequest struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

func (s *Server) handleConnectPeer(w http.ResponseWriter, r *http.Request) {
	var req connectPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	peer := types.PeerInfo{Address: req.Address, Port: req.Port, LastSeen: s.clock.Now()}
	s.registry.Upsert(peer)
	if err := s.engine.SendRequestPosts(peer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "connected to peer successfully"})
}

func (s *Server) handleGenerateQR(w http.ResponseWriter, r *http.Request) {
	payload := qr.NewPayload(s.engine.NodeID(), s.identity.PublicKey, s.identity.Address, s.cfg.NetworkPort, s.clock.Now(), nil)
	dataURL, err := qr.EncodeDataURL(payload, 256)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"qr_code": dataURL})
}

type parseQRRequest struct {
	QRData string `json:"qr_data"`
}

func (s *Server) handleParseQR(w http.ResponseWriter, r *http.Request) {
	var req parseQRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	payload, err := qr.Decode(req.QRData)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := payload.Validate(s.clock.Now()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": payload.Address,
		"port":    payload.Port,
	})
}

func (s *Server) handleDiscoveryPeers(w http.ResponseWriter, r *http.Request) {
	peers := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_count": len(peers),
		"peers":      peers,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a core types.Error's Kind onto an HTTP status class
// per §6's Exit semantics, falling back to 500 for anything else.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if coreErr, ok := err.(*types.Error); ok {
		switch coreErr.Kind {
		case types.KindInvalid, types.KindProtocol:
			status = http.StatusBadRequest
		case types.KindDuplicate, types.KindConflict:
			status = http.StatusConflict
		case types.KindTransport:
			status = http.StatusBadGateway
		case types.KindStore:
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
