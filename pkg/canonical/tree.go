// Package canonical maintains the bounded forest of recent blocks that
// decides, for every incoming block, which blocks are canonical (§4.C),
// grounded on `event_sourcing/actors_v2/block_canonicity_actor.rs` and the
// `BlockchainTree` it builds on.
package canonical

import (
	"bytes"
	"log"

	"github.com/certen/mina-core/pkg/types"
)

// NodeInput is the minimal per-block data the tree needs (§4.C).
type NodeInput struct {
	Height            types.BlockchainLength
	StateHash         types.StateHash
	PreviousStateHash types.StateHash
	LastVRFOutput     []byte
}

type node struct {
	NodeInput
	parent   *node
	children []*node
}

// Update is one emitted canonicity transition (§3.7 CanonicalUpdate).
type Update struct {
	Height       types.BlockchainLength
	StateHash    types.StateHash
	Canonical    bool
	WasCanonical bool
}

// Tree is the bounded in-memory forest §4.C describes: a single actor owns
// it; it is never shared across goroutines (§5 "the canonical-branch
// engine's forest is owned by a single actor and not shared").
type Tree struct {
	K       uint32
	logger  *log.Logger
	nodes   map[types.StateHash]*node
	root    *node
	bestTip *node

	maxCanonicalLength types.BlockchainLength
}

// NewTree constructs an empty forest bounded by the transition-frontier
// distance K (§4.C, §GLOSSARY).
func NewTree(k uint32, logger *log.Logger) *Tree {
	if logger == nil {
		logger = log.New(log.Writer(), "[canonical] ", log.LstdFlags)
	}
	return &Tree{K: k, logger: logger, nodes: make(map[types.StateHash]*node)}
}

// BestTip returns the current best tip's state hash, or the empty string
// if the tree is empty.
func (t *Tree) BestTip() types.StateHash {
	if t.bestTip == nil {
		return ""
	}
	return t.bestTip.StateHash
}

// MaxCanonicalBlockchainLength is the checkpoint frontier (§3.6): blocks
// at or below this height have a fixed canonical decision.
func (t *Tree) MaxCanonicalBlockchainLength() types.BlockchainLength {
	return t.maxCanonicalLength
}

// Process implements §4.C's `process(new_block)` operation. It returns the
// ordered sequence of canonicity updates this insertion produces; callers
// persist and apply these in the returned order (unapplies precede
// applies, per §5's ordering guarantee).
func (t *Tree) Process(in NodeInput) []Update {
	n := &node{NodeInput: in}

	if t.root == nil {
		// The root's own parent is never fed to the tree, but a later
		// block may still declare the same previous_state_hash (a
		// root-level fork). Keep a placeholder node for it so such a
		// block attaches as an ordinary sibling instead of being dropped
		// as dangling.
		virtualParent := &node{NodeInput: NodeInput{StateHash: in.PreviousStateHash}}
		virtualParent.children = append(virtualParent.children, n)
		n.parent = virtualParent
		t.nodes[in.PreviousStateHash] = virtualParent
		t.nodes[in.StateHash] = n
		t.root = n
		t.bestTip = n
		return []Update{{Height: in.Height, StateHash: in.StateHash, Canonical: true, WasCanonical: false}}
	}

	parent, ok := t.nodes[in.PreviousStateHash]
	if !ok {
		t.logger.Printf("dropping dangling block %s (parent %s not in tree)", in.StateHash, in.PreviousStateHash)
		return nil
	}

	n.parent = parent
	parent.children = append(parent.children, n)
	t.nodes[in.StateHash] = n

	tip := t.bestTip
	var updates []Update

	// A "rival" is the sibling of n that already sits on the canonical
	// path (an ancestor of, or equal to, the current best tip). Any block
	// attaching under the same parent as a rival is a same-height VRF
	// contest, even when the contest happens below the current tip's
	// height (a block can re-open a decision made earlier in the chain).
	rival := canonicalSibling(parent, n, tip)

	switch {
	case rival != nil:
		if greater(n, rival) {
			updates = t.rewriteAncestry(tip, n)
			t.bestTip = n
		} else {
			updates = []Update{{Height: in.Height, StateHash: in.StateHash, Canonical: false, WasCanonical: false}}
		}

	case in.Height > tip.Height:
		if n.parent != tip {
			updates = t.rewriteAncestry(tip, n.parent)
		}
		updates = append(updates, Update{Height: in.Height, StateHash: in.StateHash, Canonical: true, WasCanonical: false})
		t.bestTip = n

	default:
		// n attaches below an already non-canonical ancestor; it cannot
		// contest the current best tip.
		updates = []Update{{Height: in.Height, StateHash: in.StateHash, Canonical: false, WasCanonical: false}}
	}

	updates = append(updates, t.prune()...)
	return updates
}

// canonicalSibling returns parent's existing child that lies on the path
// to tip (ancestor of tip, or tip itself), if any, excluding n itself.
// Such a child is n's direct competitor under the VRF tiebreak rule.
func canonicalSibling(parent, n, tip *node) *node {
	for _, c := range parent.children {
		if c == n {
			continue
		}
		if isAncestorOrSelf(c, tip) {
			return c
		}
	}
	return nil
}

func isAncestorOrSelf(candidate, of *node) bool {
	for cur := of; cur != nil; cur = cur.parent {
		if cur == candidate {
			return true
		}
	}
	return false
}

// rewriteAncestry implements §4.C step 4: find the least common ancestor
// of a (old tip) and b (new tip), demote everything on a's side of the
// split leaf-to-root, then promote everything on b's side root-to-leaf.
func (t *Tree) rewriteAncestry(a, b *node) []Update {
	pathA := ancestorsToRoot(a)
	pathB := ancestorsToRoot(b)

	aIdx := make(map[types.StateHash]int, len(pathA))
	for i, nd := range pathA {
		aIdx[nd.StateHash] = i
	}

	lcaIdxA := -1
	lcaIdxB := -1
	for i, nd := range pathB {
		if j, ok := aIdx[nd.StateHash]; ok {
			lcaIdxA = j
			lcaIdxB = i
			break
		}
	}
	if lcaIdxA < 0 {
		// No common ancestor within the retained forest depth; treat the
		// whole of a's path as demoted and b's path as promoted.
		lcaIdxA = len(pathA)
		lcaIdxB = len(pathB)
	}

	var updates []Update
	// a ↑ L, exclusive of L: pathA is already leaf-to-root ordered (a is
	// index 0), so demote in that order directly.
	for i := 0; i < lcaIdxA; i++ {
		nd := pathA[i]
		updates = append(updates, Update{Height: nd.Height, StateHash: nd.StateHash, Canonical: false, WasCanonical: true})
	}

	// L ↓ b, exclusive of L: pathB is leaf-to-root (b is index 0); reverse
	// it to root-to-leaf before promoting.
	promote := make([]*node, 0, lcaIdxB)
	for i := 0; i < lcaIdxB; i++ {
		promote = append(promote, pathB[i])
	}
	for i, j := 0, len(promote)-1; i < j; i, j = i+1, j-1 {
		promote[i], promote[j] = promote[j], promote[i]
	}
	for _, nd := range promote {
		updates = append(updates, Update{Height: nd.Height, StateHash: nd.StateHash, Canonical: true, WasCanonical: false})
	}

	return updates
}

// ancestorsToRoot returns n and every ancestor still linked above it,
// leaf-to-root ordered. Until the first prune this includes the
// placeholder parent Process creates for the first root.
func ancestorsToRoot(n *node) []*node {
	var path []*node
	for cur := n; cur != nil; cur = cur.parent {
		path = append(path, cur)
	}
	return path
}

// greater implements the VRF tie-breaker (§4.C): higher last_vrf_output
// (unsigned big-endian) wins; ties broken by higher state_hash
// lexicographically.
func greater(a, b *node) bool {
	cmp := bytes.Compare(a.LastVRFOutput, b.LastVRFOutput)
	if cmp != 0 {
		return cmp > 0
	}
	return a.StateHash > b.StateHash
}

// prune implements §4.C step 5: once the tree's depth from the best tip
// exceeds K, the best chain's block at best_tip.height-K becomes the new
// root, every node outside its subtree is discarded, and
// MaxCanonicalBlockchainLength rises to the new root's height. The tree
// itself persists nothing and emits no updates here; the indexer stores
// MaxCanonicalBlockchainLength with each block's batch.
func (t *Tree) prune() []Update {
	if t.bestTip == nil || uint32(t.bestTip.Height-t.root.Height) <= t.K {
		return nil
	}

	newRootHeight := t.bestTip.Height - types.BlockchainLength(t.K)
	path := ancestorsToRoot(t.bestTip)
	var newRoot *node
	for _, nd := range path {
		if nd.Height == newRootHeight {
			newRoot = nd
			break
		}
	}
	if newRoot == nil {
		return nil
	}

	keep := make(map[types.StateHash]struct{})
	var mark func(n *node)
	mark = func(n *node) {
		keep[n.StateHash] = struct{}{}
		for _, c := range n.children {
			mark(c)
		}
	}
	mark(newRoot)

	for hash := range t.nodes {
		if _, ok := keep[hash]; !ok {
			delete(t.nodes, hash)
		}
	}
	newRoot.parent = nil
	t.root = newRoot
	if newRootHeight > t.maxCanonicalLength {
		t.maxCanonicalLength = newRootHeight
	}

	return nil
}
