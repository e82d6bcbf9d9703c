package scanstrategy

import (
	"testing"

	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/stretchr/testify/assert"
)

func collect(next func() (int64, bool)) []int64 {
	var out []int64
	for {
		idx, ok := next()
		if !ok {
			break
		}
		out = append(out, idx)
	}
	return out
}

func TestFullScan(t *testing.T) {
	s := FullScan{}
	assert.Equal(t, int64(10), s.Count(10))
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, collect(s.Indices(10)))
}

func TestSampling_EvenSpacing(t *testing.T) {
	s := Sampling{N: 4}
	idxs := collect(s.Indices(1024))
	assert.Equal(t, []int64{0, 256, 512, 768}, idxs)
}

func TestSampling_DegradesToFullScanWhenNGreaterThanLeafCount(t *testing.T) {
	s := Sampling{N: 1024}
	idxs := collect(s.Indices(10))
	assert.Equal(t, int64(10), s.Count(10))
	assert.Len(t, idxs, 10)
}

// TestSampling_EquivalenceOnSmallPlot is spec.md scenario S5: Sampling(1024)
// on a 1024-leaf plot visits the same indices as FullScan.
func TestSampling_EquivalenceOnSmallPlot(t *testing.T) {
	full := collect(FullScan{}.Indices(1024))
	sampled := collect(Sampling{N: 1024}.Indices(1024))
	assert.Equal(t, full, sampled)
}

func TestCacheFriendly_VisitsContiguousRunsPerBlock(t *testing.T) {
	c := CacheFriendly{BlockSize: 100, LeavesPerBlock: 10}
	idxs := collect(c.Indices(350))
	want := []int64{
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
		100, 101, 102, 103, 104, 105, 106, 107, 108, 109,
		200, 201, 202, 203, 204, 205, 206, 207, 208, 209,
		300, 301, 302, 303, 304, 305, 306, 307, 308, 309,
	}
	assert.Equal(t, want, idxs)
	assert.Equal(t, int64(len(want)), c.Count(350))
}

func TestConfiguration_MeetsThreshold(t *testing.T) {
	c := Configuration{QualityThresholdBits: 8}
	var score postcore.Leaf
	assert.True(t, c.MeetsThreshold(score)) // all zero: infinite leading zeros

	score[0] = 0x01
	assert.False(t, c.MeetsThreshold(score)) // only 7 leading zero bits

	var none Configuration
	assert.False(t, none.MeetsThreshold(score))
}

func TestCompareScores(t *testing.T) {
	a := postcore.Leaf{0x00, 0x01}
	b := postcore.Leaf{0x00, 0x02}
	assert.Equal(t, -1, CompareScores(a, b))
	assert.Equal(t, 1, CompareScores(b, a))
	assert.Equal(t, 0, CompareScores(a, a))
}
