package proofgen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spacetime-chain/post-miner/internal/merkletree"
	"github.com/spacetime-chain/post-miner/internal/plotformat"
	"github.com/spacetime-chain/post-miner/internal/plotload"
	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/spacetime-chain/post-miner/internal/proofcore"
	"github.com/spacetime-chain/post-miner/internal/proofvalidate"
	"github.com/spacetime-chain/post-miner/internal/scanstrategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlot(t *testing.T, dir, name string, leafCount int, seedByte byte) (*plotload.Loader, []postcore.Leaf) {
	t.Helper()
	leaves := make([]postcore.Leaf, leafCount)
	for i := range leaves {
		leaves[i][0] = seedByte
		leaves[i][1] = byte(i)
		leaves[i][2] = byte(i >> 8)
	}
	i := 0
	next := func() (postcore.Leaf, bool, error) {
		if i >= len(leaves) {
			return postcore.Leaf{}, false, nil
		}
		l := leaves[i]
		i++
		return l, true, nil
	}
	root, height, err := merkletree.BuildRoot(next)
	require.NoError(t, err)

	var seed [32]byte
	seed[0] = seedByte
	h := plotformat.NewHeader(seed, int64(leafCount), height, root)
	ser, err := h.Serialize()
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.Write(ser[:])
	require.NoError(t, err)
	for _, l := range leaves {
		_, err = f.Write(l[:])
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	l, err := plotload.Open(path)
	require.NoError(t, err)
	return l, leaves
}

// writePlotWithCache is writePlot plus a sibling cache file, returning a
// loader opened with the cache attached.
func writePlotWithCache(t *testing.T, dir, name string, leafCount int, seedByte byte, cacheLevel int32) (*plotload.Loader, []postcore.Leaf) {
	t.Helper()
	leaves := make([]postcore.Leaf, leafCount)
	for i := range leaves {
		leaves[i][0] = seedByte
		leaves[i][1] = byte(i)
		leaves[i][2] = byte(i >> 8)
	}
	i := 0
	next := func() (postcore.Leaf, bool, error) {
		if i >= len(leaves) {
			return postcore.Leaf{}, false, nil
		}
		l := leaves[i]
		i++
		return l, true, nil
	}

	height := plotformat.TreeHeightFor(int64(leafCount))
	root, gotHeight, cache, err := merkletree.BuildWithCache(next, int64(leafCount), height, cacheLevel)
	require.NoError(t, err)
	require.Equal(t, height, gotHeight)

	var seed [32]byte
	seed[0] = seedByte
	h := plotformat.NewHeader(seed, int64(leafCount), height, root)
	ser, err := h.Serialize()
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.Write(ser[:])
	require.NoError(t, err)
	for _, l := range leaves {
		_, err = f.Write(l[:])
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	raw, err := cache.Serialize()
	require.NoError(t, err)
	cachePath := path + ".cache"
	require.NoError(t, os.WriteFile(cachePath, raw, 0o644))

	l, err := plotload.OpenWithCache(path, cachePath)
	require.NoError(t, err)
	require.NotNil(t, l.Cache())
	return l, leaves
}

func bestByFullScan(leaves []postcore.Leaf, challenge postcore.Leaf) (int64, postcore.Leaf) {
	best := -1
	var bestScore postcore.Leaf
	for i, l := range leaves {
		score := proofcore.Score(challenge, l)
		if best == -1 || scanstrategy.CompareScores(score, bestScore) < 0 {
			best = i
			bestScore = score
		}
	}
	return int64(best), bestScore
}

// TestGenerateSingle_RoundTrip is spec.md scenario S3: generate then
// validate, expect Success.
func TestGenerateSingle_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, leaves := writePlot(t, dir, "a.plot", 1024, 0x01)
	defer l.Close()

	var challenge postcore.Leaf
	challenge[0] = 0x42

	done := make(chan struct{})
	proof, err := GenerateSingle(l, challenge[:], scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	wantIdx, wantScore := bestByFullScan(leaves, challenge)
	assert.Equal(t, wantIdx, proof.LeafIndex)
	assert.Equal(t, wantScore, proof.Score)

	result := proofvalidate.Validate(proof, challenge, l.Header().MerkleRoot, nil)
	assert.Equal(t, proofvalidate.Success, result)
}

// TestGenerateSingle_TamperDetection is spec.md scenario S4.
func TestGenerateSingle_TamperDetection(t *testing.T) {
	dir := t.TempDir()
	l, _ := writePlot(t, dir, "a.plot", 1024, 0x01)
	defer l.Close()

	var challenge postcore.Leaf
	challenge[0] = 0x42

	done := make(chan struct{})
	proof, err := GenerateSingle(l, challenge[:], scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	proof.SiblingHashes = append([]postcore.Leaf{}, proof.SiblingHashes...)
	proof.SiblingHashes[0][0] ^= 0x01

	result := proofvalidate.Validate(proof, challenge, l.Header().MerkleRoot, nil)
	assert.Equal(t, proofvalidate.InvalidMerklePath, result)
}

// TestSamplingEquivalence is spec.md scenario S5: on a 1024-leaf plot,
// Sampling(1024) and FullScan must return identical proofs.
func TestSamplingEquivalence(t *testing.T) {
	dir := t.TempDir()
	l, _ := writePlot(t, dir, "a.plot", 1024, 0x01)
	defer l.Close()

	var challenge postcore.Leaf
	challenge[0] = 0x99

	done := make(chan struct{})
	full, err := GenerateSingle(l, challenge[:], scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	sampled, err := GenerateSingle(l, challenge[:], scanstrategy.Sampling{N: 1024}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	assert.Equal(t, full, sampled)
}

// TestMultiPlotBestOf is spec.md scenario S6: three plots, the fan-out
// winner equals the independently selected minimum across all three.
func TestMultiPlotBestOf(t *testing.T) {
	dir := t.TempDir()
	var challenge postcore.Leaf
	challenge[0] = 0x07

	var sources []PlotSource
	var allLeaves [][]postcore.Leaf
	var plotIDs []string
	for i, seedByte := range []byte{0x10, 0x20, 0x30} {
		l, leaves := writePlot(t, dir, string(rune('a'+i))+".plot", 512, seedByte)
		defer l.Close()
		id := string(rune('a' + i))
		sources = append(sources, PlotSource{PlotID: id, Loader: l})
		allLeaves = append(allLeaves, leaves)
		plotIDs = append(plotIDs, id)
	}

	done := make(chan struct{})
	got, err := GenerateMultiPlot(sources, challenge[:], scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	// Independently compute the minimum-score single-plot proof across all
	// three plots.
	bestPlot := -1
	var bestScore postcore.Leaf
	var bestIdx int64
	for pi, leaves := range allLeaves {
		idx, score := bestByFullScan(leaves, challenge)
		if bestPlot == -1 || proofcore.Less(score, proofcore.PlotIndex{PlotID: plotIDs[pi], LeafIndex: idx}, bestScore, proofcore.PlotIndex{PlotID: plotIDs[bestPlot], LeafIndex: bestIdx}) {
			bestPlot = pi
			bestScore = score
			bestIdx = idx
		}
	}

	assert.Equal(t, bestScore, got.Score)
	assert.Equal(t, bestIdx, got.LeafIndex)
}

// TestGenerateSingle_CacheAcceleratedMatchesFullScan verifies a plot opened
// with a cache attached yields a proof identical to, and one that validates
// the same as, the uncached full-replay path.
func TestGenerateSingle_CacheAcceleratedMatchesFullScan(t *testing.T) {
	dir := t.TempDir()
	cached, leaves := writePlotWithCache(t, dir, "cached.plot", 1024, 0x01, 3)
	defer cached.Close()

	uncached, err := plotload.Open(filepath.Join(dir, "cached.plot"))
	require.NoError(t, err)
	defer uncached.Close()

	var challenge postcore.Leaf
	challenge[0] = 0x42
	done := make(chan struct{})

	cachedProof, err := GenerateSingle(cached, challenge[:], scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	uncachedProof, err := GenerateSingle(uncached, challenge[:], scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.NoError(t, err)

	assert.Equal(t, uncachedProof, cachedProof)

	wantIdx, wantScore := bestByFullScan(leaves, challenge)
	assert.Equal(t, wantIdx, cachedProof.LeafIndex)
	assert.Equal(t, wantScore, cachedProof.Score)

	result := proofvalidate.Validate(cachedProof, challenge, cached.Header().MerkleRoot, nil)
	assert.Equal(t, proofvalidate.Success, result)
}

func TestGenerateSingle_EmptyStrategyYieldsNoProof(t *testing.T) {
	dir := t.TempDir()
	l, _ := writePlot(t, dir, "a.plot", 100, 0x01)
	defer l.Close()

	var challenge postcore.Leaf
	done := make(chan struct{})
	_, err := GenerateSingle(l, challenge[:], scanstrategy.Sampling{N: 0}, scanstrategy.Configuration{}, done, nil)
	assert.ErrorIs(t, err, ErrNoProof)
}

// TestGenerateSingle_InvalidChallengeLength is spec.md's "invalid challenge
// length is a programmer error" check: anything other than 32 bytes is
// rejected before scanning begins.
func TestGenerateSingle_InvalidChallengeLength(t *testing.T) {
	dir := t.TempDir()
	l, _ := writePlot(t, dir, "a.plot", 100, 0x01)
	defer l.Close()

	done := make(chan struct{})
	_, err := GenerateSingle(l, make([]byte, 31), scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	require.Error(t, err)
	kind, ok := postcore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, postcore.KindInvalidArgument, kind)

	_, err = GenerateSingle(l, make([]byte, 32), scanstrategy.FullScan{}, scanstrategy.Configuration{}, done, nil)
	assert.NoError(t, err)
}
