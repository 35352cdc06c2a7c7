package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabena/brezn/pkg/brezn/types"
)

func TestNewNodeID_IsUniqueAndParsable(t *testing.T) {
	a := NewNodeID()
	b := NewNodeID()
	assert.NotEqual(t, a, b)

	parsed, err := ParseNodeID(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestParseNodeID_RejectsMalformed(t *testing.T) {
	_, err := ParseNodeID("not-a-uuid")
	assert.Error(t, err)
}

func TestPostIdentity_MatchesCanonicalHash(t *testing.T) {
	p := types.Post{Content: "hi", Timestamp: 1, Pseudonym: "x", NodeID: "n"}
	id := PostIdentity(p)
	assert.Equal(t, types.NewPostID(p), id)
}
