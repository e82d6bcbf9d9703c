package merkletree

import "github.com/spacetime-chain/post-miner/internal/postcore"

// Proof is an audit path from a single leaf up to a Merkle root.
type Proof struct {
	LeafIndex    int64
	Siblings     []postcore.Leaf
	Orientations []bool // true: sibling is to the right of the path node
}

// BuildWithProof feeds every leaf from next, in order, into a Builder while
// also recording the audit path for targetIndex. It returns the root, the
// tree height, and the Proof for targetIndex.
func BuildWithProof(next func() (postcore.Leaf, bool, error), targetIndex int64) (postcore.Leaf, int64, Proof, error) {
	if targetIndex < 0 {
		return postcore.Leaf{}, 0, Proof{}, postcore.InvalidArgument("targetIndex must be non-negative")
	}

	b := NewBuilder()
	var siblings []postcore.Leaf
	var orientations []bool

	b.SetObserver(func(ev CombineEvent) {
		fullSpan := ev.Span * 2
		if targetIndex < ev.LeftStart || targetIndex >= ev.LeftStart+fullSpan {
			return
		}
		// targetIndex is always within the left half when this event is a
		// self-duplication (Left == Right): the right half is phantom
		// padding, never home to a real leaf.
		onLeft := targetIndex < ev.LeftStart+ev.Span
		if onLeft {
			siblings = append(siblings, ev.Right)
			orientations = append(orientations, true)
		} else {
			siblings = append(siblings, ev.Left)
			orientations = append(orientations, false)
		}
	})

	var leafCount int64
	for {
		l, ok, err := next()
		if err != nil {
			return postcore.Leaf{}, 0, Proof{}, err
		}
		if !ok {
			break
		}
		b.Feed(l)
		leafCount++
	}
	if targetIndex >= leafCount {
		return postcore.Leaf{}, 0, Proof{}, postcore.InvalidArgument("targetIndex out of range")
	}

	root, height, err := b.Finish()
	if err != nil {
		return postcore.Leaf{}, 0, Proof{}, err
	}

	if int64(len(siblings)) != height {
		return postcore.Leaf{}, 0, Proof{}, postcore.WithKind(postcore.KindCorrupted, "proof path length mismatch", nil)
	}

	return root, height, Proof{LeafIndex: targetIndex, Siblings: siblings, Orientations: orientations}, nil
}

// Verify implements spec §4.3's verification rule: starting from leaf,
// combine with each sibling in order (orientation true means the sibling is
// to the right: h = SHA256(h || sibling); otherwise h = SHA256(sibling ||
// h)), and accept iff the final hash equals root. Sibling and orientation
// slices must be the same length or verification fails closed.
func Verify(leaf postcore.Leaf, siblings []postcore.Leaf, orientations []bool, root postcore.Leaf) bool {
	if len(siblings) != len(orientations) {
		return false
	}
	h := leaf
	for i, sib := range siblings {
		if orientations[i] {
			h = combine(h, sib)
		} else {
			h = combine(sib, h)
		}
	}
	return h == root
}
