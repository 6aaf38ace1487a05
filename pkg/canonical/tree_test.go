package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certen/mina-core/pkg/types"
)

func input(height uint32, hash, prevHash string, vrf byte) NodeInput {
	return NodeInput{
		Height:            types.BlockchainLength(height),
		StateHash:         types.StateHash(hash),
		PreviousStateHash: types.StateHash(prevHash),
		LastVRFOutput:     []byte{vrf},
	}
}

func TestSingleCanonicalChain(t *testing.T) {
	tree := NewTree(1000, nil)

	u1 := tree.Process(input(1, "b1", "genesis", 1))
	u2 := tree.Process(input(2, "b2", "b1", 1))
	u3 := tree.Process(input(3, "b3", "b2", 1))

	require.Len(t, u1, 1)
	assert.Equal(t, Update{Height: 1, StateHash: "b1", Canonical: true, WasCanonical: false}, u1[0])
	require.Len(t, u2, 1)
	assert.True(t, u2[0].Canonical)
	require.Len(t, u3, 1)
	assert.True(t, u3[0].Canonical)

	assert.Equal(t, types.StateHash("b3"), tree.BestTip())
}

func TestVRFTiebreakReorgAtEqualHeight(t *testing.T) {
	tree := NewTree(1000, nil)
	tree.Process(input(1, "b1", "genesis", 1))
	tree.Process(input(2, "b2", "b1", 1))
	tree.Process(input(3, "b3", "b2", 1))

	updates := tree.Process(input(2, "b2p", "b1", 9))

	require.Len(t, updates, 3)
	assert.Equal(t, Update{Height: 3, StateHash: "b3", Canonical: false, WasCanonical: true}, updates[0])
	assert.Equal(t, Update{Height: 2, StateHash: "b2", Canonical: false, WasCanonical: true}, updates[1])
	assert.Equal(t, Update{Height: 2, StateHash: "b2p", Canonical: true, WasCanonical: false}, updates[2])

	assert.Equal(t, types.StateHash("b2p"), tree.BestTip())
}

func TestLowerVRFSiblingStaysNonCanonical(t *testing.T) {
	tree := NewTree(1000, nil)
	tree.Process(input(1, "b1", "genesis", 9))
	tree.Process(input(2, "b2", "b1", 9))

	updates := tree.Process(input(2, "b2p", "b1", 1))

	require.Len(t, updates, 1)
	assert.Equal(t, Update{Height: 2, StateHash: "b2p", Canonical: false, WasCanonical: false}, updates[0])
	assert.Equal(t, types.StateHash("b2"), tree.BestTip())
}

func TestLongerBranchEventuallyWins(t *testing.T) {
	tree := NewTree(1000, nil)
	tree.Process(input(1, "b1", "genesis", 9))
	tree.Process(input(2, "b2", "b1", 9))

	// Competing branch forks at genesis, loses the first VRF contest, but
	// keeps extending past the current tip's height.
	u1 := tree.Process(input(1, "b1p", "genesis", 1))
	u2 := tree.Process(input(2, "b2p", "b1p", 1))
	u3 := tree.Process(input(3, "b3p", "b2p", 1))

	assert.Equal(t, []Update{{Height: 1, StateHash: "b1p", Canonical: false, WasCanonical: false}}, u1)
	assert.Equal(t, []Update{{Height: 2, StateHash: "b2p", Canonical: false, WasCanonical: false}}, u2)

	require.Len(t, u3, 5)
	assert.Equal(t, Update{Height: 2, StateHash: "b2", Canonical: false, WasCanonical: true}, u3[0])
	assert.Equal(t, Update{Height: 1, StateHash: "b1", Canonical: false, WasCanonical: true}, u3[1])
	assert.Equal(t, Update{Height: 1, StateHash: "b1p", Canonical: true, WasCanonical: false}, u3[2])
	assert.Equal(t, Update{Height: 2, StateHash: "b2p", Canonical: true, WasCanonical: false}, u3[3])
	assert.Equal(t, Update{Height: 3, StateHash: "b3p", Canonical: true, WasCanonical: false}, u3[4])

	assert.Equal(t, types.StateHash("b3p"), tree.BestTip())
}

func TestDanglingBlockDropped(t *testing.T) {
	tree := NewTree(1000, nil)
	tree.Process(input(1, "b1", "genesis", 1))

	updates := tree.Process(input(5, "orphan", "unknown-parent", 1))
	assert.Nil(t, updates)
}

func TestPruneAdvancesMaxCanonicalLength(t *testing.T) {
	tree := NewTree(2, nil)

	prev := "genesis"
	for h := uint32(1); h <= 6; h++ {
		hash := "b" + string(rune('0'+h))
		tree.Process(input(h, hash, prev, 1))
		prev = hash
	}

	assert.Equal(t, types.BlockchainLength(4), tree.MaxCanonicalBlockchainLength())
	assert.Equal(t, types.StateHash("b6"), tree.BestTip())

	_, stillPresent := tree.nodes["b6"]
	assert.True(t, stillPresent)
	_, b1Present := tree.nodes["b1"]
	assert.False(t, b1Present)
}
