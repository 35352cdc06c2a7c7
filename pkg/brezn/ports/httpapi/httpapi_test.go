package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/metrics"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/replication"
	"github.com/dabena/brezn/pkg/brezn/store"
	"github.com/dabena/brezn/pkg/brezn/types"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "httpapi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := definition.NewDefaultLogger("httpapi-test", false)
	reg := registry.New(10, 3, log)
	eng := replication.New(replication.Config{NodeID: "node-http", ConnectionTimeout: time.Second},
		st, reg, log, definition.SystemClock{}, replication.NewDirectDialer(time.Second))
	require.NoError(t, eng.Start())
	t.Cleanup(eng.Stop)

	cfg := types.DefaultConfig()
	srv := New(eng, st, reg, cfg, Identity{PublicKey: "pk", Address: "127.0.0.1"}, log, definition.SystemClock{}, metrics.New())
	return srv, st
}

func TestHandleCreateAndGetPosts(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	body, _ := json.Marshal(createPostRequest{Content: "hello", Pseudonym: "alice"})
	req := httptest.NewRequest(http.MethodPost, "/api/posts", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var posts []types.Post
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].Content)
}

func TestHandleCreatePost_RejectsMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeletePost_NotFoundForUnknownID(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/posts/deadbeef", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleNetworkStatusAndPeers(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	statusReq := httptest.NewRequest(http.MethodGet, "/api/network/status", nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, statusReq)
	assert.Equal(t, http.StatusOK, statusRec.Code)

	peersReq := httptest.NewRequest(http.MethodGet, "/api/network/peers", nil)
	peersRec := httptest.NewRecorder()
	router.ServeHTTP(peersRec, peersReq)
	assert.Equal(t, http.StatusOK, peersRec.Code)
	assert.JSONEq(t, "[]", peersRec.Body.String())
}

func TestHandleGenerateQR(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/network/qr", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["qr_code"], "data:image/png;base64,")
}

func TestMetricsEndpointServesExposition(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "brezn_")
}
