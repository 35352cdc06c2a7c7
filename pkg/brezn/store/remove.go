package store

import (
	"encoding/json"

	"go.etcd.io/bbolt"

	"github.com/dabena/brezn/pkg/brezn/types"
)

// Remove deletes a post and its index entries by content hash. It is
// used by the replication engine's conflict resolver to retract a
// superseded post before inserting the winner (§4.6).
func (s *Store) Remove(p types.Post) error {
	hash := types.NewPostID(p).Hash
	err := s.db.Update(func(tx *bbolt.Tx) error {
		byHash := tx.Bucket(bucketPostsByHash)
		idb := byHash.Get([]byte(hash))
		if idb == nil {
			return nil
		}
		posts := tx.Bucket(bucketPosts)
		byTs := tx.Bucket(bucketPostsByTs)
		byAuthor := tx.Bucket(bucketPostsByAuthor)

		if err := byHash.Delete([]byte(hash)); err != nil {
			return err
		}
		if err := posts.Delete(idb); err != nil {
			return err
		}
		key := tsIDKey(p.Timestamp, idFromKey(idb))
		if err := byTs.Delete(key); err != nil {
			return err
		}
		if authorBucket := byAuthor.Bucket(authorKey(p.Content, p.Pseudonym)); authorBucket != nil {
			if err := authorBucket.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return types.WrapError(types.KindStore, "remove post", err)
	}
	return nil
}

// GetByHash looks a post up by its content hash, the identifier
// exposed to callers as a post id.
func (s *Store) GetByHash(hash string) (types.Post, bool, error) {
	var post types.Post
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		byHash := tx.Bucket(bucketPostsByHash)
		idb := byHash.Get([]byte(hash))
		if idb == nil {
			return nil
		}
		raw := tx.Bucket(bucketPosts).Get(idb)
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &post)
	})
	if err != nil {
		return types.Post{}, false, types.WrapError(types.KindStore, "get post by hash", err)
	}
	return post, found, nil
}

// FindConflicting scans the post log for entries the given predicate
// considers in conflict with p, used by the replication engine's
// conflict-detection step (§4.6).
func (s *Store) FindConflicting(p types.Post, conflictsWith func(a, b types.Post) bool) ([]types.Post, error) {
	var out []types.Post
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPosts).ForEach(func(_, raw []byte) error {
			var existing types.Post
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if conflictsWith(existing, p) {
				out = append(out, existing)
			}
			return nil
		})
	})
	if err != nil {
		return nil, types.WrapError(types.KindStore, "find conflicting posts", err)
	}
	return out, nil
}
