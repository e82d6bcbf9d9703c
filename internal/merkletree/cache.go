package merkletree

import (
	"bytes"
	"encoding/binary"

	"github.com/spacetime-chain/post-miner/internal/postcore"
)

const (
	cacheHeaderSize = 17
	cacheNodeSize   = postcore.LeafSize
)

// CacheMagic is the 4-byte signature of a Merkle level cache file ("SPTC").
var CacheMagic = [4]byte{'S', 'P', 'T', 'C'}

const cacheVersion = 1

// Cache holds, for a plot of LeafCount leaves, the node hashes of the top
// CachedLevels levels (height-k+1..height inclusive), left-to-right within
// each level. It lets proof generation skip replaying the upper levels of
// the tree (spec §4.3 "cache acceleration").
type Cache struct {
	LeafCount    int64
	Height       int64
	CachedLevels int32
	// Levels maps a tree level to its node hashes, left-to-right. Only
	// levels in [Height-CachedLevels+1, Height] are populated.
	Levels map[int64][]postcore.Leaf
}

// nodesAtLevel returns ceil(leafCount / 2^level), the number of nodes a
// duplicate-padded tree has at that level.
func nodesAtLevel(leafCount int64, level int64) int64 {
	span := int64(1) << uint(level)
	return (leafCount + span - 1) / span
}

// NewCacheRecorder returns an empty Cache plus an Observer that, when
// attached to a Builder via SetObserver, populates the top k levels of that
// Cache as the build proceeds. k is clamped to [0, height].
func NewCacheRecorder(leafCount, height int64, k int32) (*Cache, Observer) {
	if k < 0 {
		k = 0
	}
	if int64(k) > height {
		k = int32(height)
	}
	c := &Cache{
		LeafCount:    leafCount,
		Height:       height,
		CachedLevels: k,
		Levels:       make(map[int64][]postcore.Leaf),
	}
	minLevel := height - int64(k) + 1

	obs := func(ev CombineEvent) {
		resultLevel := int64(ev.Level + 1)
		if k == 0 || resultLevel < minLevel || resultLevel > height {
			return
		}
		result := combine(ev.Left, ev.Right)
		c.Levels[resultLevel] = append(c.Levels[resultLevel], result)
	}
	return c, obs
}

// SiblingAt returns the node hash at (level, position) within the cached
// range, where position is the left-to-right index of the node at that
// level. ok is false when the level isn't cached or position is out of
// range.
func (c *Cache) SiblingAt(level, position int64) (postcore.Leaf, bool) {
	nodes, present := c.Levels[level]
	if !present || position < 0 || position >= int64(len(nodes)) {
		return postcore.Leaf{}, false
	}
	return nodes[position], true
}

// MinCachedLevel is the lowest level this cache has data for (exclusive of
// the levels below it, which proof generation must replay from the plot).
func (c *Cache) MinCachedLevel() int64 {
	if c.CachedLevels == 0 {
		return c.Height + 1
	}
	return c.Height - int64(c.CachedLevels) + 1
}

// Serialize encodes the cache using the fixed layout: a 17-byte header
// (magic, version, leaf_count LE, cached_levels LE) followed by one 32-byte
// hash per cached node, levels ordered ascending (height-k+1..height),
// left-to-right within each level.
func (c *Cache) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(CacheMagic[:])
	buf.WriteByte(cacheVersion)

	var leafCountBuf [8]byte
	binary.LittleEndian.PutUint64(leafCountBuf[:], uint64(c.LeafCount))
	buf.Write(leafCountBuf[:])

	var levelsBuf [4]byte
	binary.LittleEndian.PutUint32(levelsBuf[:], uint32(c.CachedLevels))
	buf.Write(levelsBuf[:])

	minLevel := c.MinCachedLevel()
	for level := minLevel; level <= c.Height; level++ {
		nodes := c.Levels[level]
		want := nodesAtLevel(c.LeafCount, level)
		if int64(len(nodes)) != want {
			return nil, postcore.WithKind(postcore.KindInvalidArgument, "incomplete cache level, cannot serialize", nil)
		}
		for _, n := range nodes {
			buf.Write(n[:])
		}
	}
	return buf.Bytes(), nil
}

// ParseCache decodes a cache file previously written by Serialize. height
// must be supplied by the caller (it is not itself stored in the file; it
// is recomputed from the owning plot header's leaf_count at load time).
func ParseCache(data []byte, height int64) (*Cache, error) {
	if len(data) < cacheHeaderSize {
		return nil, postcore.WithKind(postcore.KindCorrupted, "cache file too short", nil)
	}
	if !bytes.Equal(data[0:4], CacheMagic[:]) {
		return nil, postcore.WithKind(postcore.KindCorrupted, "bad cache magic", nil)
	}
	if data[4] != cacheVersion {
		return nil, postcore.WithKind(postcore.KindCorrupted, "unsupported cache version", nil)
	}

	leafCount := int64(binary.LittleEndian.Uint64(data[5:13]))
	cachedLevels := int32(binary.LittleEndian.Uint32(data[13:17]))
	if leafCount <= 0 {
		return nil, postcore.WithKind(postcore.KindCorrupted, "cache leaf_count must be positive", nil)
	}
	if int64(cachedLevels) > height {
		return nil, postcore.WithKind(postcore.KindCorrupted, "cache cached_levels exceeds tree height", nil)
	}

	c := &Cache{
		LeafCount:    leafCount,
		Height:       height,
		CachedLevels: cachedLevels,
		Levels:       make(map[int64][]postcore.Leaf),
	}

	minLevel := c.MinCachedLevel()
	offset := cacheHeaderSize
	for level := minLevel; level <= height; level++ {
		count := nodesAtLevel(leafCount, level)
		nodes := make([]postcore.Leaf, count)
		for i := int64(0); i < count; i++ {
			end := offset + cacheNodeSize
			if end > len(data) {
				return nil, postcore.WithKind(postcore.KindCorrupted, "cache file truncated", nil)
			}
			leaf, err := postcore.LeafFromBytes(data[offset:end])
			if err != nil {
				return nil, postcore.WithKind(postcore.KindCorrupted, "malformed cache node", err)
			}
			nodes[i] = leaf
			offset = end
		}
		c.Levels[level] = nodes
	}
	if offset != len(data) {
		return nil, postcore.WithKind(postcore.KindCorrupted, "cache file has trailing data", nil)
	}
	return c, nil
}

// BuildWithCache feeds every leaf from next into a Builder and returns the
// root, height, and a populated Cache covering the top k levels — used by
// the Plot Creator when a cache file is requested alongside a new plot.
func BuildWithCache(next func() (postcore.Leaf, bool, error), leafCount, height int64, k int32) (postcore.Leaf, int64, *Cache, error) {
	cache, obs := NewCacheRecorder(leafCount, height, k)
	b := NewBuilder()
	b.SetObserver(obs)
	for {
		l, ok, err := next()
		if err != nil {
			return postcore.Leaf{}, 0, nil, err
		}
		if !ok {
			break
		}
		b.Feed(l)
	}
	root, gotHeight, err := b.Finish()
	if err != nil {
		return postcore.Leaf{}, 0, nil, err
	}
	if gotHeight != height {
		return postcore.Leaf{}, 0, nil, postcore.WithKind(postcore.KindCorrupted, "tree height mismatch during cached build", nil)
	}
	return root, gotHeight, cache, nil
}

// RangeReader supplies the leaves of [start, start+count) in nonce-ascending
// order as a pull iterator. A Loader's read_leaves operation (spec §4.5)
// implements this.
type RangeReader func(start, count int64) (func() (postcore.Leaf, bool, error), error)

// BuildProofWithCache computes the proof for targetIndex by reading only the
// single leaf-block the target falls in (2^MinCachedLevel leaves) and
// pulling the rest of the path from cache, rather than re-streaming all N
// leaves. This is the O(N / 2^k) path spec §4.3 describes for cache-backed
// proof generation.
func BuildProofWithCache(read RangeReader, targetIndex int64, cache *Cache) (Proof, error) {
	if targetIndex < 0 || targetIndex >= cache.LeafCount {
		return Proof{}, postcore.InvalidArgument("targetIndex out of range")
	}

	minCached := cache.MinCachedLevel()
	blockSize := int64(1) << uint(minCached)
	blockStart := (targetIndex / blockSize) * blockSize
	count := blockSize
	if blockStart+count > cache.LeafCount {
		count = cache.LeafCount - blockStart
	}

	iter, err := read(blockStart, count)
	if err != nil {
		return Proof{}, err
	}

	localTarget := targetIndex - blockStart
	localRoot, localHeight, localProof, err := BuildWithProof(iter, localTarget)
	if err != nil {
		return Proof{}, err
	}

	siblings := append([]postcore.Leaf{}, localProof.Siblings...)
	orientations := append([]bool{}, localProof.Orientations...)

	// The block replay only reaches minCached directly when it is a full,
	// power-of-two-aligned block. A ragged trailing block (the only kind
	// that can be short) still needs the same self-duplication the global
	// build's Finish would have applied to climb the rest of the way to
	// minCached.
	cur := localRoot
	for level := localHeight; level < minCached && level < cache.Height; level++ {
		siblings = append(siblings, cur)
		orientations = append(orientations, true)
		cur = combine(cur, cur)
	}

	for level := minCached; level < cache.Height; level++ {
		ancestorPos := targetIndex >> uint(level)
		siblingPos := ancestorPos ^ 1
		sib, ok := cache.SiblingAt(level, siblingPos)
		if !ok && siblingPos == ancestorPos+1 {
			// The ancestor is the last node of an odd-length level, which the
			// builder paired with itself.
			sib, ok = cache.SiblingAt(level, ancestorPos)
		}
		if !ok {
			return Proof{}, postcore.WithKind(postcore.KindCorrupted, "cache missing sibling for target index", nil)
		}
		siblings = append(siblings, sib)
		orientations = append(orientations, ancestorPos%2 == 0)
	}

	return Proof{LeafIndex: targetIndex, Siblings: siblings, Orientations: orientations}, nil
}
