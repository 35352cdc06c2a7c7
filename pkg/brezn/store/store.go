// Package store implements the durable, deduplicated, append-biased
// post log described in spec §4.1, backed by go.etcd.io/bbolt — the
// storage engine the teacher's go.mod already points at via its
// `coreos/bbolt => go.etcd.io/bbolt` replace directive.
//
// Layout mirrors the tabular schema in spec §6: a primary "posts" table
// keyed by a local sequence id, a unique hash index, a
// (pseudonym, content) index for the I2 near-duplicate probe, and a
// timestamp index for ordered scans.
package store

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dabena/brezn/pkg/brezn/types"
)

var (
	bucketPosts         = []byte("posts")
	bucketPostsByHash   = []byte("posts_by_hash")
	bucketPostsByTs     = []byte("posts_by_ts")
	bucketPostsByAuthor = []byte("posts_by_author")
	bucketConflicts     = []byte("post_conflicts")
	bucketMuted         = []byte("muted_users")
	bucketSyncTs        = []byte("sync_timestamps")
	bucketConfig        = []byte("config")
)

var allBuckets = [][]byte{
	bucketPosts, bucketPostsByHash, bucketPostsByTs, bucketPostsByAuthor,
	bucketConflicts, bucketMuted, bucketSyncTs, bucketConfig,
}

// Store is the durable post log. The zero value is not usable; use Open.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a bbolt-backed store at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, types.WrapError(types.KindStore, "open store", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(types.KindStore, "initialize buckets", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func tsIDKey(ts, id uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], ts)
	binary.BigEndian.PutUint64(b[8:], id)
	return b
}

func authorKey(content, pseudonym string) []byte {
	return []byte(pseudonym + "\x00" + content)
}

func idFromKey(idb []byte) uint64 {
	return binary.BigEndian.Uint64(idb)
}

// Add implements the §4.1 ingress-dedupe algorithm: reject on equal
// hash (I1) or on an I2-equivalent post, otherwise persist and return
// the assigned local id.
func (s *Store) Add(p types.Post) (uint64, error) {
	if !p.IsValid() {
		return 0, types.ErrInvalidPost
	}
	postID := types.NewPostID(p)

	var assigned uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		byHash := tx.Bucket(bucketPostsByHash)
		if byHash.Get([]byte(postID.Hash)) != nil {
			return types.ErrDuplicatePost
		}

		byAuthor := tx.Bucket(bucketPostsByAuthor)
		authorBucket, err := byAuthor.CreateBucketIfNotExists(authorKey(p.Content, p.Pseudonym))
		if err != nil {
			return err
		}
		if dup := findNearDuplicate(authorBucket, p.Timestamp); dup {
			return types.ErrDuplicatePost
		}

		posts := tx.Bucket(bucketPosts)
		seq, err := posts.NextSequence()
		if err != nil {
			return err
		}
		assigned = seq

		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := posts.Put(idKey(assigned), raw); err != nil {
			return err
		}
		if err := byHash.Put([]byte(postID.Hash), idKey(assigned)); err != nil {
			return err
		}
		if err := authorBucket.Put(tsIDKey(p.Timestamp, assigned), nil); err != nil {
			return err
		}
		byTs := tx.Bucket(bucketPostsByTs)
		return byTs.Put(tsIDKey(p.Timestamp, assigned), idKey(assigned))
	})
	if err != nil {
		if coreErr, ok := err.(*types.Error); ok {
			return 0, coreErr
		}
		return 0, types.WrapError(types.KindStore, "add post", err)
	}
	return assigned, nil
}

// findNearDuplicate implements I2: any entry in the author bucket whose
// timestamp differs from ts by strictly less than 300s counts as the
// same logical post.
func findNearDuplicate(authorBucket *bbolt.Bucket, ts uint64) bool {
	c := authorBucket.Cursor()
	var lower uint64
	if ts > types.NearDuplicateWindowSeconds {
		lower = ts - types.NearDuplicateWindowSeconds
	}
	seek := tsIDKey(lower, 0)
	for k, _ := c.Seek(seek); k != nil; k, _ = c.Next() {
		otherTs := binary.BigEndian.Uint64(k[:8])
		if otherTs >= ts+types.NearDuplicateWindowSeconds {
			break
		}
		delta := absDelta(otherTs, ts)
		if delta < types.NearDuplicateWindowSeconds {
			return true
		}
	}
	return false
}

func absDelta(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// QueryRecent returns up to limit posts ordered by timestamp descending,
// deduplicated on (content, pseudonym) keeping the newest, with muted
// pseudonyms filtered out (the muted_users read-side filter).
func (s *Store) QueryRecent(limit int) ([]types.Post, error) {
	var result []types.Post
	err := s.db.View(func(tx *bbolt.Tx) error {
		byTs := tx.Bucket(bucketPostsByTs)
		posts := tx.Bucket(bucketPosts)
		muted := tx.Bucket(bucketMuted)
		seen := make(map[string]bool)
		c := byTs.Cursor()
		for k, idb := c.Last(); k != nil && len(result) < limit; k, idb = c.Prev() {
			raw := posts.Get(idb)
			if raw == nil {
				continue
			}
			var p types.Post
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if muted.Get([]byte(p.Pseudonym)) != nil {
				continue
			}
			dedupeKey := p.Pseudonym + "\x00" + p.Content
			if seen[dedupeKey] {
				continue
			}
			seen[dedupeKey] = true
			result = append(result, p)
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapError(types.KindStore, "query recent", err)
	}
	return result, nil
}

// QuerySince returns posts with timestamp strictly greater than ts,
// ascending by timestamp, muted pseudonyms excluded.
func (s *Store) QuerySince(ts uint64) ([]types.Post, error) {
	var result []types.Post
	err := s.db.View(func(tx *bbolt.Tx) error {
		byTs := tx.Bucket(bucketPostsByTs)
		posts := tx.Bucket(bucketPosts)
		muted := tx.Bucket(bucketMuted)
		c := byTs.Cursor()
		seek := tsIDKey(ts+1, 0)
		for k, idb := c.Seek(seek); k != nil; k, idb = c.Next() {
			raw := posts.Get(idb)
			if raw == nil {
				continue
			}
			var p types.Post
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if p.Timestamp <= ts {
				continue
			}
			if muted.Get([]byte(p.Pseudonym)) != nil {
				continue
			}
			result = append(result, p)
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapError(types.KindStore, "query since", err)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Timestamp < result[j].Timestamp })
	return result, nil
}

// MutePseudonym adds a local read-side filter on the given pseudonym.
func (s *Store) MutePseudonym(pseudonym string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMuted).Put([]byte(pseudonym), []byte{1})
	})
	if err != nil {
		return types.WrapError(types.KindStore, "mute pseudonym", err)
	}
	return nil
}

// UnmutePseudonym removes the filter.
func (s *Store) UnmutePseudonym(pseudonym string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMuted).Delete([]byte(pseudonym))
	})
	if err != nil {
		return types.WrapError(types.KindStore, "unmute pseudonym", err)
	}
	return nil
}
