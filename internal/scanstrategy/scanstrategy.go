// Package scanstrategy implements the value objects spec §3 calls Scanning
// Strategy and Scanning Configuration: which leaf indices a proof scan
// examines, and when it stops early.
package scanstrategy

import "github.com/spacetime-chain/post-miner/internal/postcore"

// Strategy describes which leaf indices a scan phase should examine. It is
// a pure value object: Count and Indices never touch disk.
type Strategy interface {
	// Count returns how many indices this strategy will yield for a plot of
	// leafCount leaves.
	Count(leafCount int64) int64
	// Indices returns a pull-based iterator over the indices to examine, in
	// the order they should be scanned.
	Indices(leafCount int64) func() (int64, bool)
}

// FullScan examines every index from 0 to leafCount-1.
type FullScan struct{}

func (FullScan) Count(leafCount int64) int64 { return leafCount }

func (FullScan) Indices(leafCount int64) func() (int64, bool) {
	next := int64(0)
	return func() (int64, bool) {
		if next >= leafCount {
			return 0, false
		}
		i := next
		next++
		return i, true
	}
}

// Sampling examines N evenly-spaced indices across [0, leafCount). When N is
// greater than or equal to leafCount, it degrades to a FullScan.
type Sampling struct {
	N int64
}

func (s Sampling) Count(leafCount int64) int64 {
	if s.N <= 0 {
		return 0
	}
	if s.N >= leafCount {
		return leafCount
	}
	return s.N
}

func (s Sampling) Indices(leafCount int64) func() (int64, bool) {
	n := s.Count(leafCount)
	if n >= leafCount {
		return FullScan{}.Indices(leafCount)
	}
	emitted := int64(0)
	return func() (int64, bool) {
		if emitted >= n {
			return 0, false
		}
		// Evenly spaced: index = floor(emitted * leafCount / n).
		idx := (emitted * leafCount) / n
		emitted++
		return idx, true
	}
}

// CacheFriendly samples block-contiguous runs of leaves for locality: it
// splits [0, leafCount) into consecutive blocks of BlockSize leaves, and
// within every block scans LeavesPerBlock consecutive indices starting at
// the block's first index.
type CacheFriendly struct {
	BlockSize      int64
	LeavesPerBlock int64
}

func (c CacheFriendly) blocksTotal(leafCount int64) int64 {
	if c.BlockSize <= 0 {
		return 0
	}
	return (leafCount + c.BlockSize - 1) / c.BlockSize
}

func (c CacheFriendly) Count(leafCount int64) int64 {
	if c.BlockSize <= 0 || c.LeavesPerBlock <= 0 {
		return 0
	}
	var total int64
	blocks := c.blocksTotal(leafCount)
	for b := int64(0); b < blocks; b++ {
		start := b * c.BlockSize
		remaining := leafCount - start
		n := c.LeavesPerBlock
		if n > remaining {
			n = remaining
		}
		if n > c.BlockSize {
			n = c.BlockSize
		}
		total += n
	}
	return total
}

func (c CacheFriendly) Indices(leafCount int64) func() (int64, bool) {
	block := int64(0)
	within := int64(0)
	blocks := c.blocksTotal(leafCount)
	return func() (int64, bool) {
		for block < blocks {
			start := block * c.BlockSize
			remaining := leafCount - start
			limit := c.LeavesPerBlock
			if limit > remaining {
				limit = remaining
			}
			if limit > c.BlockSize {
				limit = c.BlockSize
			}
			if within >= limit {
				block++
				within = 0
				continue
			}
			idx := start + within
			within++
			return idx, true
		}
		return 0, false
	}
}

// Configuration is the scan's termination policy: a pure evaluation over a
// score and a leaf budget, independent of which Strategy produced the index.
type Configuration struct {
	// QualityThresholdBits, when > 0, stops the scan as soon as a score with
	// at least this many leading zero bits (counted from the most
	// significant bit of byte 0) is found.
	QualityThresholdBits int
	// MaxLeaves, when > 0, caps how many indices are examined regardless of
	// score quality.
	MaxLeaves int64
}

// MeetsThreshold reports whether score has at least c.QualityThresholdBits
// leading zero bits. A zero or negative threshold never terminates early.
func (c Configuration) MeetsThreshold(score postcore.Leaf) bool {
	if c.QualityThresholdBits <= 0 {
		return false
	}
	return leadingZeroBits(score) >= c.QualityThresholdBits
}

func leadingZeroBits(score postcore.Leaf) int {
	count := 0
	for _, b := range score {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// CompareScores returns -1, 0, or 1 as a compares lexicographically
// (big-endian, byte-by-byte — spec §4.6's "unsigned 256-bit integer"
// ordering) to b.
func CompareScores(a, b postcore.Leaf) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
