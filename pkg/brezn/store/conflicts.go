package store

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// RecordConflict persists an unresolved PostConflict and returns its id.
func (s *Store) RecordConflict(postID types.PostID, conflicting []types.Post, strategy types.ConflictResolutionStrategy, createdAt uint64) (int64, error) {
	var assigned uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConflicts)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		assigned = seq
		record := types.PostConflict{
			ID:               int64(assigned),
			PostID:           postID,
			ConflictingPosts: conflicting,
			Strategy:         strategy,
			CreatedAt:        createdAt,
		}
		raw, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return bucket.Put(idKey(assigned), raw)
	})
	if err != nil {
		return 0, types.WrapError(types.KindStore, "record conflict", err)
	}
	return int64(assigned), nil
}

// ListUnresolvedConflicts returns every conflict with no ResolvedAt set.
func (s *Store) ListUnresolvedConflicts() ([]types.PostConflict, error) {
	var result []types.PostConflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflicts).ForEach(func(_, raw []byte) error {
			var c types.PostConflict
			if err := json.Unmarshal(raw, &c); err != nil {
				return err
			}
			if c.ResolvedAt == nil {
				result = append(result, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, types.WrapError(types.KindStore, "list unresolved conflicts", err)
	}
	return result, nil
}

// ResolveConflict marks the conflict resolved at the given timestamp.
func (s *Store) ResolveConflict(id int64, resolvedAt uint64) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConflicts)
		key := idKey(uint64(id))
		raw := bucket.Get(key)
		if raw == nil {
			return types.NewError(types.KindInvalid, "unknown conflict id")
		}
		var c types.PostConflict
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		c.ResolvedAt = &resolvedAt
		updated, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return bucket.Put(key, updated)
	})
	if err != nil {
		if coreErr, ok := err.(*types.Error); ok {
			return coreErr
		}
		return types.WrapError(types.KindStore, "resolve conflict", err)
	}
	return nil
}
