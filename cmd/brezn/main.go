// Command brezn runs the peer-to-peer replication daemon: it loads
// configuration, opens the store, and wires the registry, SOCKS5
// supervisor, discovery service, replication engine, and management
// HTTP surface together until it receives a termination signal.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dabena/brezn/pkg/brezn/config"
	"github.com/dabena/brezn/pkg/brezn/definition"
	"github.com/dabena/brezn/pkg/brezn/discovery"
	"github.com/dabena/brezn/pkg/brezn/identity"
	"github.com/dabena/brezn/pkg/brezn/metrics"
	"github.com/dabena/brezn/pkg/brezn/ports/httpapi"
	"github.com/dabena/brezn/pkg/brezn/registry"
	"github.com/dabena/brezn/pkg/brezn/replication"
	"github.com/dabena/brezn/pkg/brezn/socks5"
	"github.com/dabena/brezn/pkg/brezn/store"
	"github.com/dabena/brezn/pkg/brezn/types"
)

var (
	configPath       string
	dataDir          string
	advertiseAddress string
	httpListenAddr   string
	verbose          bool
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file; defaults built in if unset")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "./brezn-data", "directory for the post store and node identity")
	rootCmd.Flags().StringVar(&advertiseAddress, "advertise-address", "127.0.0.1", "address advertised to peers")
	rootCmd.Flags().StringVar(&httpListenAddr, "http-listen", "127.0.0.1:8080", "management HTTP surface listen address")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

var rootCmd = &cobra.Command{
	Use:   "brezn",
	Short: "decentralized pseudonymous micro-post feed daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func run() error {
	log := definition.NewDefaultLogger("brezn", verbose)

	cfg := types.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return types.WrapError(types.KindStore, "create data directory", err)
	}

	nodeID, err := loadOrCreateNodeID(dataDir)
	if err != nil {
		return err
	}
	publicKey, err := loadOrCreatePublicKey(dataDir)
	if err != nil {
		return err
	}

	st, err := store.Open(filepath.Join(dataDir, "brezn.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	clock := definition.SystemClock{}
	reg := registry.New(cfg.MaxPeers, cfg.ConnectionRetryLimit, log.WithField("component", "registry"))
	metricsCollector := metrics.New()

	var dialer replication.Dialer = replication.NewDirectDialer(cfg.ConnectionTimeout)
	var supervisor *socks5.Supervisor
	if cfg.TorEnabled {
		supervisor = socks5.New(socks5.Config{
			ProxyHost:               "127.0.0.1",
			FallbackPorts:           cfg.FallbackPorts,
			ConnectionTimeout:       cfg.ConnectionTimeout,
			CircuitTimeout:          cfg.CircuitTimeout,
			MaxConnections:          cfg.MaxConnections,
			HealthCheckInterval:     cfg.HealthCheckInterval,
			CircuitRotationInterval: cfg.CircuitRotationInterval,
		}, log.WithField("component", "socks5"))
		if err := supervisor.Enable(); err != nil {
			log.Warnf("tor enabled but socks5 proxy unreachable, falling back to direct dialing: %v", err)
		} else {
			dialer = supervisor
		}
	}

	engine := replication.New(replication.Config{
		NodeID:            string(nodeID),
		ListenPort:        cfg.NetworkPort,
		ConnectionTimeout: cfg.ConnectionTimeout,
	}, st, reg, log.WithField("component", "replication"), clock, dialer).WithMetrics(metricsCollector)
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Stop()

	var disc *discovery.Service
	if cfg.DiscoveryEnabled {
		disc = discovery.New(discovery.Config{
			NodeID:            string(nodeID),
			PublicKey:         publicKey,
			ListenAddress:     advertiseAddress,
			ListenPort:        cfg.NetworkPort,
			DiscoveryPort:     cfg.DiscoveryPort,
			EnableBroadcast:   cfg.EnableBroadcast,
			EnableMulticast:   cfg.EnableMulticast,
			BroadcastAddress:  cfg.BroadcastAddress,
			MulticastAddress:  cfg.MulticastAddress,
			BroadcastInterval: cfg.BroadcastInterval,
			HeartbeatInterval: cfg.HeartbeatInterval,
			PeerTimeout:       cfg.PeerTimeout,
		}, reg, log.WithField("component", "discovery"), clock, func(types.PeerInfo) {})
		if err := disc.Start(); err != nil {
			return err
		}
		defer disc.Stop()
	}

	httpServer := httpapi.New(engine, st, reg, cfg, httpapi.Identity{PublicKey: publicKey, Address: advertiseAddress}, log.WithField("component", "httpapi"), clock, metricsCollector)
	server := &http.Server{Addr: httpListenAddr, Handler: httpServer.Router()}
	go func() {
		log.Infof("management http surface listening on %s", httpListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server stopped: %v", err)
		}
	}()

	log.Infof("brezn node %s started, replication port %d", nodeID, cfg.NetworkPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	return nil
}

func loadOrCreateNodeID(dataDir string) (identity.NodeID, error) {
	path := filepath.Join(dataDir, "node_id")
	if raw, err := os.ReadFile(path); err == nil {
		return identity.ParseNodeID(string(raw))
	}
	id := identity.NewNodeID()
	if err := os.WriteFile(path, []byte(id.String()), 0600); err != nil {
		return "", types.WrapError(types.KindStore, "persist node id", err)
	}
	return id, nil
}

func loadOrCreatePublicKey(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "public_key")
	if raw, err := os.ReadFile(path); err == nil {
		return string(raw), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", types.WrapError(types.KindInvalid, "generate public key material", err)
	}
	key := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(key), 0600); err != nil {
		return "", types.WrapError(types.KindStore, "persist public key", err)
	}
	return key, nil
}
