// Package proofgen implements the Proof Generator (spec §4.6): a scan phase
// that finds the best-scoring leaf under a scanning strategy, followed by a
// Merkle phase that produces the audit path for the winner.
package proofgen

import (
	"sort"
	"sync"

	"github.com/spacetime-chain/post-miner/internal/merkletree"
	"github.com/spacetime-chain/post-miner/internal/plotload"
	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/spacetime-chain/post-miner/internal/proofcore"
	"github.com/spacetime-chain/post-miner/internal/scanstrategy"
)

// ErrNoProof is a distinct, non-error outcome: the scan found no candidate
// (an empty plot set, or every per-plot task failed).
var ErrNoProof = errorString("no proof found")

type errorString string

func (e errorString) Error() string { return string(e) }

// yieldEvery is how often (in scanned leaves) the scan phase checks for
// cancellation, matching spec §5's "yield to the scheduler at least every
// 1024 leaves".
const yieldEvery = 1024

type scanResult struct {
	found     bool
	bestIndex int64
	bestScore postcore.Leaf
}

// scanPlot runs the scan phase (spec §4.6 step 1) over a single loader.
func scanPlot(l *plotload.Loader, challenge postcore.Leaf, strategy scanstrategy.Strategy, cfg scanstrategy.Configuration, ctxDone <-chan struct{}, onProgress func(frac float64)) (scanResult, error) {
	leafCount := l.Header().LeafCount
	total := strategy.Count(leafCount)
	next := strategy.Indices(leafCount)

	var res scanResult
	var scanned int64

	for {
		idx, ok := next()
		if !ok {
			break
		}

		if scanned%yieldEvery == 0 {
			select {
			case <-ctxDone:
				return scanResult{}, postcore.ErrCancelled
			default:
			}
		}

		leafVal, err := l.ReadLeaf(idx)
		if err != nil {
			return scanResult{}, err
		}
		score := proofcore.Score(challenge, leafVal)

		if !res.found || scanstrategy.CompareScores(score, res.bestScore) < 0 {
			res.found = true
			res.bestScore = score
			res.bestIndex = idx
		}

		scanned++
		if onProgress != nil && total > 0 {
			onProgress(float64(scanned) / float64(total))
		}

		if cfg.MeetsThreshold(res.bestScore) {
			break
		}
		if cfg.MaxLeaves > 0 && scanned >= cfg.MaxLeaves {
			break
		}
	}

	return res, nil
}

// GenerateSingle runs the full single-plot path (spec §4.6): scan, then
// replay the leaf sequence through the Merkle engine to capture the
// winner's audit path. Returns ErrNoProof if the strategy yields no
// indices.
func GenerateSingle(l *plotload.Loader, challengeBytes []byte, strategy scanstrategy.Strategy, cfg scanstrategy.Configuration, ctxDone <-chan struct{}, onProgress func(frac float64)) (proofcore.Proof, error) {
	challenge, err := postcore.LeafFromBytes(challengeBytes)
	if err != nil {
		return proofcore.Proof{}, err
	}

	res, err := scanPlot(l, challenge, strategy, cfg, ctxDone, onProgress)
	if err != nil {
		return proofcore.Proof{}, err
	}
	if !res.found {
		return proofcore.Proof{}, ErrNoProof
	}

	leafVal, err := l.ReadLeaf(res.bestIndex)
	if err != nil {
		return proofcore.Proof{}, err
	}

	if cache := l.Cache(); cache != nil {
		mproof, err := merkletree.BuildProofWithCache(l.ReadLeaves, res.bestIndex, cache)
		if err != nil {
			return proofcore.Proof{}, err
		}
		return proofcore.Proof{
			LeafValue:       leafVal,
			LeafIndex:       res.bestIndex,
			SiblingHashes:   mproof.Siblings,
			OrientationBits: mproof.Orientations,
			MerkleRoot:      l.Header().MerkleRoot,
			Challenge:       challenge,
			Score:           res.bestScore,
		}, nil
	}

	root, _, mproof, err := merkletree.BuildWithProof(l.ReadAllLeaves(ctxDone, nil), res.bestIndex)
	if err != nil {
		return proofcore.Proof{}, err
	}

	return proofcore.Proof{
		LeafValue:       leafVal,
		LeafIndex:       res.bestIndex,
		SiblingHashes:   mproof.Siblings,
		OrientationBits: mproof.Orientations,
		MerkleRoot:      root,
		Challenge:       challenge,
		Score:           res.bestScore,
	}, nil
}

// PlotSource pairs a loader with the identity used for deterministic
// tie-breaking during multi-plot fan-out.
type PlotSource struct {
	PlotID string
	Loader *plotload.Loader
}

// GenerateMultiPlot fans out GenerateSingle across every source
// concurrently (spec §4.6 "multi-plot path"). A per-plot failure is
// suppressed — logged by the caller via onPlotError, if supplied — and
// does not abort the others. The best proof overall is selected by score,
// tie-broken by (plot_id, leaf_index) per spec §5. Returns ErrNoProof if no
// source produced a candidate.
func GenerateMultiPlot(sources []PlotSource, challengeBytes []byte, strategy scanstrategy.Strategy, cfg scanstrategy.Configuration, ctxDone <-chan struct{}, onPlotError func(plotID string, err error)) (proofcore.Proof, error) {
	if _, err := postcore.LeafFromBytes(challengeBytes); err != nil {
		return proofcore.Proof{}, err
	}
	type candidate struct {
		plotID string
		proof  proofcore.Proof
	}

	results := make([]*candidate, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src PlotSource) {
			defer wg.Done()
			p, err := GenerateSingle(src.Loader, challengeBytes, strategy, cfg, ctxDone, nil)
			if err != nil {
				if onPlotError != nil && err != ErrNoProof {
					onPlotError(src.PlotID, err)
				}
				return
			}
			results[i] = &candidate{plotID: src.PlotID, proof: p}
		}(i, src)
	}
	wg.Wait()

	var candidates []*candidate
	for _, c := range results {
		if c != nil {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return proofcore.Proof{}, ErrNoProof
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		return proofcore.Less(
			a.proof.Score, proofcore.PlotIndex{PlotID: a.plotID, LeafIndex: a.proof.LeafIndex},
			b.proof.Score, proofcore.PlotIndex{PlotID: b.plotID, LeafIndex: b.proof.LeafIndex},
		)
	})
	return candidates[0].proof, nil
}
