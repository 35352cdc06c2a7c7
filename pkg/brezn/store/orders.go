package store

import (
	"encoding/json"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/dabena/brezn/pkg/brezn/types"
)

var bucketOrders = []byte("post_order")

func init() {
	allBuckets = append(allBuckets, bucketOrders)
}

// RecordOrder persists a PostOrder row keyed by its sequence number, the
// §4.6 sequence-assignment side effect of accepting a post (I3).
func (s *Store) RecordOrder(order types.PostOrder) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		raw, err := json.Marshal(order)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketOrders).Put(idKey(order.SequenceNumber), raw)
	})
	if err != nil {
		return types.WrapError(types.KindStore, "record post order", err)
	}
	return nil
}

// GetOrderedPosts returns up to limit posts sorted by
// (timestamp ASC, sequence_number ASC), per §4.6 get_ordered_posts.
func (s *Store) GetOrderedPosts(limit int) ([]types.Post, error) {
	type seqPost struct {
		order types.PostOrder
		post  types.Post
	}
	var rows []seqPost

	err := s.db.View(func(tx *bbolt.Tx) error {
		orders := tx.Bucket(bucketOrders)
		posts := tx.Bucket(bucketPosts)
		byHash := tx.Bucket(bucketPostsByHash)
		c := orders.Cursor()
		for k, raw := c.First(); k != nil; k, raw = c.Next() {
			var order types.PostOrder
			if err := json.Unmarshal(raw, &order); err != nil {
				return err
			}
			idb := byHash.Get([]byte(order.PostID.Hash))
			if idb == nil {
				continue
			}
			postRaw := posts.Get(idb)
			if postRaw == nil {
				continue
			}
			var p types.Post
			if err := json.Unmarshal(postRaw, &p); err != nil {
				return err
			}
			rows = append(rows, seqPost{order: order, post: p})
		}
		return nil
	})
	if err != nil {
		return nil, types.WrapError(types.KindStore, "get ordered posts", err)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].post.Timestamp != rows[j].post.Timestamp {
			return rows[i].post.Timestamp < rows[j].post.Timestamp
		}
		return rows[i].order.SequenceNumber < rows[j].order.SequenceNumber
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]types.Post, len(rows))
	for i, r := range rows {
		out[i] = r.post
	}
	return out, nil
}
