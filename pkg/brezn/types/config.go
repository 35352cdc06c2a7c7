package types

import (
	"fmt"
	"time"
)

// PostValidationConfig holds the post_validation configuration block
// (§6). Post.IsValid does not read it: the validity predicate always
// applies the fixed MaxContentLength and MaxPseudonymLength limits.
type PostValidationConfig struct {
	MaxContentLength          int `yaml:"max_content_length"`
	MaxPseudonymLength        int `yaml:"max_pseudonym_length"`
	MinContentLength          int `yaml:"min_content_length"`
	AllowEmptyContent         bool `yaml:"allow_empty_content"`
	RateLimitPostsPerMinute   int `yaml:"rate_limit_posts_per_minute"`
}

// DefaultPostValidationConfig mirrors the original source's default.
func DefaultPostValidationConfig() PostValidationConfig {
	return PostValidationConfig{
		MaxContentLength:        1000,
		MaxPseudonymLength:      50,
		MinContentLength:        1,
		AllowEmptyContent:       false,
		RateLimitPostsPerMinute: 10,
	}
}

// Config is the full recognized configuration surface (§6).
type Config struct {
	NetworkPort     uint16 `yaml:"network_port"`
	DiscoveryPort   uint16 `yaml:"discovery_port"`
	DiscoveryEnabled bool  `yaml:"discovery_enabled"`

	EnableBroadcast   bool   `yaml:"enable_broadcast"`
	EnableMulticast   bool   `yaml:"enable_multicast"`
	MulticastAddress  string `yaml:"multicast_address"`
	BroadcastAddress  string `yaml:"broadcast_address"`

	BroadcastInterval     time.Duration `yaml:"broadcast_interval"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	PeerTimeout           time.Duration `yaml:"peer_timeout"`
	MaxPeers              int           `yaml:"max_peers"`
	ConnectionRetryLimit  int           `yaml:"connection_retry_limit"`

	TorEnabled               bool          `yaml:"tor_enabled"`
	TorSocksPort             uint16        `yaml:"tor_socks_port"`
	FallbackPorts            []uint16      `yaml:"fallback_ports"`
	ConnectionTimeout        time.Duration `yaml:"connection_timeout"`
	CircuitTimeout           time.Duration `yaml:"circuit_timeout"`
	MaxConnections           int           `yaml:"max_connections"`
	HealthCheckInterval      time.Duration `yaml:"health_check_interval"`
	CircuitRotationInterval  time.Duration `yaml:"circuit_rotation_interval"`

	DefaultPseudonym string               `yaml:"default_pseudonym"`
	MaxPosts         int                  `yaml:"max_posts"`
	PostValidation   PostValidationConfig `yaml:"post_validation"`
}

// DefaultConfig mirrors original_source/brezn/src/types.rs Config::default.
func DefaultConfig() Config {
	return Config{
		NetworkPort:      8888,
		DiscoveryPort:    8888,
		DiscoveryEnabled: true,

		EnableBroadcast:  true,
		EnableMulticast:  true,
		MulticastAddress: "224.0.0.1",
		BroadcastAddress: "255.255.255.255",

		BroadcastInterval:    30 * time.Second,
		HeartbeatInterval:    60 * time.Second,
		PeerTimeout:          600 * time.Second,
		MaxPeers:             50,
		ConnectionRetryLimit: 3,

		TorEnabled:              false,
		TorSocksPort:            9050,
		FallbackPorts:           []uint16{9050, 9150, 9250},
		ConnectionTimeout:       10 * time.Second,
		CircuitTimeout:          30 * time.Second,
		MaxConnections:          10,
		HealthCheckInterval:     60 * time.Second,
		CircuitRotationInterval: 300 * time.Second,

		DefaultPseudonym: "AnonymBrezn42",
		MaxPosts:         1000,
		PostValidation:   DefaultPostValidationConfig(),
	}
}

// Validate checks the configuration, returning an aggregate error
// listing every violation (mirrors original_source Config::validate).
func (c Config) Validate() error {
	var problems []string
	check := func(cond bool, msg string) {
		if !cond {
			problems = append(problems, msg)
		}
	}

	check(c.NetworkPort != 0, "network_port must be between 1 and 65535")
	check(c.TorSocksPort != 0, "tor_socks_port must be between 1 and 65535")
	check(c.DiscoveryPort != 0, "discovery_port must be between 1 and 65535")
	check(c.MaxPosts > 0, "max_posts must be greater than 0")
	check(c.MaxPeers > 0, "max_peers must be greater than 0")
	check(c.BroadcastInterval > 0, "broadcast_interval must be greater than 0")
	check(c.HeartbeatInterval > 0, "heartbeat_interval must be greater than 0")
	check(len(c.DefaultPseudonym) > 0, "default_pseudonym cannot be empty")
	check(len(c.DefaultPseudonym) <= MaxPseudonymLength, "default_pseudonym too long (max 50 characters)")

	if len(problems) == 0 {
		return nil
	}
	return NewError(KindInvalid, fmt.Sprintf("invalid configuration: %v", problems))
}
