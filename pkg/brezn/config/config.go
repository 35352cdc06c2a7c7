// Package config loads and validates the daemon's YAML configuration
// file, following facebook-time's ReadDynamicConfig shape: read the
// file, unmarshal onto the defaults, validate, return.
package config

import (
	"os"

	yaml "gopkg.in/yaml.v2"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// Load reads and validates a YAML configuration file at path, applying
// DefaultConfig for any field the file doesn't set.
func Load(path string) (types.Config, error) {
	cfg := types.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return types.Config{}, types.WrapError(types.KindInvalid, "read config file", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return types.Config{}, types.WrapError(types.KindInvalid, "parse config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

// Write serializes cfg to path as YAML, in the same shape Load reads
// back.
func Write(path string, cfg types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return types.WrapError(types.KindInvalid, "marshal config", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.WrapError(types.KindStore, "write config file", err)
	}
	return nil
}
