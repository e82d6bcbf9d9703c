// Package proofcore holds the data model and pure functions shared by the
// Proof Generator and Proof Validator (spec §3's Proof, §4.6 and §4.7):
// nothing here touches disk or a clock.
package proofcore

import (
	"crypto/sha256"

	"github.com/spacetime-chain/post-miner/internal/postcore"
)

// Proof bundles everything a validator needs to check a single mining
// result without access to the plot that produced it.
type Proof struct {
	LeafValue       postcore.Leaf
	LeafIndex       int64
	SiblingHashes   []postcore.Leaf
	OrientationBits []bool
	MerkleRoot      postcore.Leaf
	Challenge       postcore.Leaf
	Score           postcore.Leaf
}

// Score computes SHA256(challenge || leaf), the spec §8 property-7 score
// contract.
func Score(challenge, leaf postcore.Leaf) postcore.Leaf {
	h := sha256.New()
	h.Write(challenge[:])
	h.Write(leaf[:])
	var out postcore.Leaf
	h.Sum(out[:0])
	return out
}

// PlotIndex identifies a single candidate result during multi-plot fan-out:
// the tie-break key is (PlotID, LeafIndex) lexicographically, per spec §5.
type PlotIndex struct {
	PlotID    string
	LeafIndex int64
}

// Less implements the deterministic tie-break spec §5 requires: lower score
// wins; on equal scores, the lexicographically smaller (PlotID, LeafIndex)
// wins.
func Less(scoreA postcore.Leaf, idxA PlotIndex, scoreB postcore.Leaf, idxB PlotIndex) bool {
	for i := range scoreA {
		if scoreA[i] != scoreB[i] {
			return scoreA[i] < scoreB[i]
		}
	}
	if idxA.PlotID != idxB.PlotID {
		return idxA.PlotID < idxB.PlotID
	}
	return idxA.LeafIndex < idxB.LeafIndex
}
