package store

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// syncTimestampRecord mirrors the sync_timestamps table in §6.
type syncTimestampRecord struct {
	LastSyncTimestamp uint64 `json:"last_sync_timestamp"`
	UpdatedAt         uint64 `json:"updated_at"`
}

// SetSyncTimestamp records the last successful sync time for a peer.
func (s *Store) SetSyncTimestamp(nodeID string, lastSync, updatedAt uint64) error {
	rec := syncTimestampRecord{LastSyncTimestamp: lastSync, UpdatedAt: updatedAt}
	raw, err := json.Marshal(rec)
	if err != nil {
		return types.WrapError(types.KindStore, "marshal sync timestamp", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSyncTs).Put([]byte(nodeID), raw)
	})
	if err != nil {
		return types.WrapError(types.KindStore, "set sync timestamp", err)
	}
	return nil
}

// GetSyncTimestamp returns the last known sync timestamp for a peer, or
// zero if none has been recorded.
func (s *Store) GetSyncTimestamp(nodeID string) (uint64, error) {
	var ts uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketSyncTs).Get([]byte(nodeID))
		if raw == nil {
			return nil
		}
		var rec syncTimestampRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		ts = rec.LastSyncTimestamp
		return nil
	})
	if err != nil {
		return 0, types.WrapError(types.KindStore, "get sync timestamp", err)
	}
	return ts, nil
}

// SetConfigValue persists a single config(key, value) row (§6).
func (s *Store) SetConfigValue(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return types.WrapError(types.KindStore, "set config value", err)
	}
	return nil
}

// GetConfigValue reads a config(key, value) row; ok is false if absent.
func (s *Store) GetConfigValue(key string) (value string, ok bool, err error) {
	viewErr := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketConfig).Get([]byte(key))
		if raw != nil {
			ok = true
			value = string(raw)
		}
		return nil
	})
	if viewErr != nil {
		return "", false, types.WrapError(types.KindStore, "get config value", viewErr)
	}
	return value, ok, nil
}

// PostCount returns the number of persisted posts, used when building
// FeedState snapshots.
func (s *Store) PostCount() (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketPosts).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, types.WrapError(types.KindStore, "count posts", err)
	}
	return count, nil
}
