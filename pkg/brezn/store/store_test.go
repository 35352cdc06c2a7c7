package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabena/brezn/pkg/brezn/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brezn.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Add_RejectsDuplicateHash(t *testing.T) {
	s := openTestStore(t)
	p := types.Post{Content: "hello", Timestamp: 1000, Pseudonym: "alice", Version: 1}

	_, err := s.Add(p)
	require.NoError(t, err)

	_, err = s.Add(p)
	assert.ErrorIs(t, err, types.ErrDuplicatePost)
}

func TestStore_Add_RejectsNearDuplicate(t *testing.T) {
	s := openTestStore(t)
	a := types.Post{Content: "same text", Timestamp: 1000, Pseudonym: "bob", Version: 1}
	b := types.Post{Content: "same text", Timestamp: 1100, Pseudonym: "bob", Version: 1}

	_, err := s.Add(a)
	require.NoError(t, err)

	_, err = s.Add(b)
	assert.ErrorIs(t, err, types.ErrDuplicatePost)
}

func TestStore_Add_AcceptsOutsideNearDuplicateWindow(t *testing.T) {
	s := openTestStore(t)
	a := types.Post{Content: "same text", Timestamp: 1000, Pseudonym: "bob", Version: 1}
	b := types.Post{Content: "same text", Timestamp: 1301, Pseudonym: "bob", Version: 1}

	_, err := s.Add(a)
	require.NoError(t, err)
	_, err = s.Add(b)
	assert.NoError(t, err)
}

func TestStore_Add_RejectsInvalidPost(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Add(types.Post{Content: "", Timestamp: 1000, Pseudonym: "carl"})
	assert.ErrorIs(t, err, types.ErrInvalidPost)
}

func TestStore_QueryRecent_OrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Add(types.Post{Content: "hi", Timestamp: 1000, Pseudonym: "x", Version: 1})
	require.NoError(t, err)
	_, err = s.Add(types.Post{Content: "other", Timestamp: 2000, Pseudonym: "x", Version: 1})
	require.NoError(t, err)

	posts, err := s.QueryRecent(10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "other", posts[0].Content)
}

func TestStore_QueryRecent_ExcludesMuted(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Add(types.Post{Content: "visible", Timestamp: 1000, Pseudonym: "shown", Version: 1})
	require.NoError(t, err)
	_, err = s.Add(types.Post{Content: "hidden", Timestamp: 1001, Pseudonym: "muted", Version: 1})
	require.NoError(t, err)
	require.NoError(t, s.MutePseudonym("muted"))

	posts, err := s.QueryRecent(10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "visible", posts[0].Content)
}

func TestStore_QuerySince_StrictGreaterAscending(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Add(types.Post{Content: "a", Timestamp: 100, Pseudonym: "p1", Version: 1})
	require.NoError(t, err)
	_, err = s.Add(types.Post{Content: "b", Timestamp: 500, Pseudonym: "p2", Version: 1})
	require.NoError(t, err)
	_, err = s.Add(types.Post{Content: "c", Timestamp: 900, Pseudonym: "p3", Version: 1})
	require.NoError(t, err)

	posts, err := s.QuerySince(500)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "c", posts[0].Content)
}

func TestStore_RecordAndListAndResolveConflicts(t *testing.T) {
	s := openTestStore(t)
	pid := types.PostID{Hash: "deadbeef", Timestamp: 10, NodeID: "n1"}
	id, err := s.RecordConflict(pid, []types.Post{{Content: "a", Timestamp: 10, Pseudonym: "x", Version: 1}}, types.Manual, 10)
	require.NoError(t, err)

	unresolved, err := s.ListUnresolvedConflicts()
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, id, unresolved[0].ID)

	require.NoError(t, s.ResolveConflict(id, 20))
	unresolved, err = s.ListUnresolvedConflicts()
	require.NoError(t, err)
	assert.Len(t, unresolved, 0)
}

func TestStore_GetOrderedPosts_SortsByTimestampThenSequence(t *testing.T) {
	s := openTestStore(t)
	pA := types.Post{Content: "a", Timestamp: 100, Pseudonym: "p", Version: 1}
	pB := types.Post{Content: "b", Timestamp: 50, Pseudonym: "p2", Version: 1}

	idA, err := s.Add(pA)
	require.NoError(t, err)
	idB, err := s.Add(pB)
	require.NoError(t, err)

	require.NoError(t, s.RecordOrder(types.PostOrder{PostID: types.NewPostID(pA), SequenceNumber: idA, Timestamp: pA.Timestamp, NodeID: ""}))
	require.NoError(t, s.RecordOrder(types.PostOrder{PostID: types.NewPostID(pB), SequenceNumber: idB, Timestamp: pB.Timestamp, NodeID: ""}))

	ordered, err := s.GetOrderedPosts(10)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "b", ordered[0].Content)
	assert.Equal(t, "a", ordered[1].Content)
}
