// Package proofvalidate implements the Proof Validator (spec §4.7): five
// fixed-order checks over a proofcore.Proof, pure and deterministic. It
// never touches disk and never needs the plot that produced the proof.
package proofvalidate

import (
	"github.com/spacetime-chain/post-miner/internal/merkletree"
	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/spacetime-chain/post-miner/internal/proofcore"
	"github.com/spacetime-chain/post-miner/internal/scanstrategy"
)

// Result is the outcome of validating a Proof: Success, or the first
// failing check in the fixed order spec §4.7 defines.
type Result int

const (
	Success Result = iota
	ChallengeMismatch
	PlotRootMismatch
	ScoreMismatch
	ScoreAboveTarget
	InvalidMerklePath
)

func (r Result) String() string {
	switch r {
	case Success:
		return "Success"
	case ChallengeMismatch:
		return "ChallengeMismatch"
	case PlotRootMismatch:
		return "PlotRootMismatch"
	case ScoreMismatch:
		return "ScoreMismatch"
	case ScoreAboveTarget:
		return "ScoreAboveTarget"
	case InvalidMerklePath:
		return "InvalidMerklePath"
	default:
		return "Unknown"
	}
}

// Validate runs the five checks in the fixed order spec §4.7 requires,
// returning the first failure or Success. target is optional: a nil target
// skips the difficulty check (ScoreAboveTarget never fires).
func Validate(p proofcore.Proof, expectedChallenge, expectedRoot postcore.Leaf, target *postcore.Leaf) Result {
	if p.Challenge != expectedChallenge {
		return ChallengeMismatch
	}
	if p.MerkleRoot != expectedRoot {
		return PlotRootMismatch
	}
	if proofcore.Score(p.Challenge, p.LeafValue) != p.Score {
		return ScoreMismatch
	}
	if target != nil {
		if scanstrategy.CompareScores(p.Score, *target) >= 0 {
			return ScoreAboveTarget
		}
	}
	if !merkletree.Verify(p.LeafValue, p.SiblingHashes, p.OrientationBits, p.MerkleRoot) {
		return InvalidMerklePath
	}
	return Success
}
