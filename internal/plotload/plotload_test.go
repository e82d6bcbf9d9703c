package plotload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spacetime-chain/post-miner/internal/merkletree"
	"github.com/spacetime-chain/post-miner/internal/plotformat"
	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPlot(t *testing.T, leafCount int) (string, []postcore.Leaf, postcore.Leaf) {
	t.Helper()
	leaves := make([]postcore.Leaf, leafCount)
	for i := range leaves {
		leaves[i][0] = byte(i)
		leaves[i][1] = byte(i >> 8)
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
	seed[0] = 0x07
	h := plotformat.NewHeader(seed, int64(leafCount), height, root)
	ser, err := h.Serialize()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.plot")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = f.Write(ser[:])
	require.NoError(t, err)
	for _, l := range leaves {
		_, err = f.Write(l[:])
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	return path, leaves, root
}

func TestOpen_ValidPlot(t *testing.T) {
	path, _, root := writeTestPlot(t, 100)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, int64(100), l.Header().LeafCount)
	assert.Equal(t, root, l.Header().MerkleRoot)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.plot"))
	require.Error(t, err)
	kind, ok := postcore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, postcore.KindMissing, kind)
}

func TestOpen_Truncated(t *testing.T) {
	path, _, _ := writeTestPlot(t, 100)
	require.NoError(t, os.Truncate(path, plotformat.HeaderSize+10))
	_, err := Open(path)
	require.Error(t, err)
	kind, ok := postcore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, postcore.KindTruncated, kind)
}

func TestOpen_CorruptedHeader(t *testing.T) {
	path, _, _ := writeTestPlot(t, 100)
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{'X'}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(path)
	require.Error(t, err)
	kind, ok := postcore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, postcore.KindCorrupted, kind)
}

func TestReadLeaf(t *testing.T) {
	path, leaves, _ := writeTestPlot(t, 50)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	for _, idx := range []int64{0, 1, 25, 49} {
		got, err := l.ReadLeaf(idx)
		require.NoError(t, err)
		assert.Equal(t, leaves[idx], got)
	}

	_, err = l.ReadLeaf(-1)
	assert.Error(t, err)
	_, err = l.ReadLeaf(50)
	assert.Error(t, err)
}

func TestReadLeaves(t *testing.T) {
	path, leaves, _ := writeTestPlot(t, 50)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	next, err := l.ReadLeaves(10, 5)
	require.NoError(t, err)
	var got []postcore.Leaf
	for {
		leaf, ok, err := next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, leaf)
	}
	assert.Equal(t, leaves[10:15], got)

	_, err = l.ReadLeaves(48, 5)
	assert.Error(t, err)
}

func TestReadAllLeaves_RestartableAndComplete(t *testing.T) {
	path, leaves, _ := writeTestPlot(t, 5000)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan struct{})
	for pass := 0; pass < 2; pass++ {
		var got []postcore.Leaf
		next := l.ReadAllLeaves(done, nil)
		for {
			leaf, ok, err := next()
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, leaf)
		}
		assert.Equal(t, leaves, got, "pass %d", pass)
	}
}

func TestReadAllLeaves_ProgressDebounced(t *testing.T) {
	path, _, _ := writeTestPlot(t, 1000)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan struct{})
	var ticks []int
	next := l.ReadAllLeaves(done, func(pct int) { ticks = append(ticks, pct) })
	for {
		_, ok, err := next()
		require.NoError(t, err)
		if !ok {
			break
		}
	}
	for i := 1; i < len(ticks); i++ {
		assert.NotEqual(t, ticks[i-1], ticks[i], "progress ticks must be distinct")
	}
	assert.Equal(t, 100, ticks[len(ticks)-1])
}

func TestVerifyMerkleRoot(t *testing.T) {
	path, _, _ := writeTestPlot(t, 200)
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan struct{})
	ok, err := l.VerifyMerkleRoot(done)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMerkleRoot_DetectsTamperedLeaf(t *testing.T) {
	path, _, _ := writeTestPlot(t, 200)
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, plotformat.HeaderSize+5)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	done := make(chan struct{})
	ok, err := l.VerifyMerkleRoot(done)
	require.NoError(t, err)
	assert.False(t, ok)
}

func writeCacheFile(t *testing.T, dir string, leaves []postcore.Leaf, height int64, level int32) string {
	t.Helper()
	i := 0
	next := func() (postcore.Leaf, bool, error) {
		if i >= len(leaves) {
			return postcore.Leaf{}, false, nil
		}
		l := leaves[i]
		i++
		return l, true, nil
	}
	_, _, cache, err := merkletree.BuildWithCache(next, int64(len(leaves)), height, level)
	require.NoError(t, err)
	raw, err := cache.Serialize()
	require.NoError(t, err)

	path := filepath.Join(dir, "test.cache")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestOpenWithCache_Attaches(t *testing.T) {
	dir := t.TempDir()
	path, leaves, _ := writeTestPlot(t, 200)
	l, err := Open(path)
	require.NoError(t, err)
	height := l.Header().TreeHeight
	require.NoError(t, l.Close())

	cachePath := writeCacheFile(t, dir, leaves, height, 3)

	l2, err := OpenWithCache(path, cachePath)
	require.NoError(t, err)
	defer l2.Close()

	require.NotNil(t, l2.Cache())
	assert.Equal(t, int64(200), l2.Cache().LeafCount)
}

func TestOpenWithCache_EmptyPathLeavesCacheNil(t *testing.T) {
	path, _, _ := writeTestPlot(t, 100)
	l, err := OpenWithCache(path, "")
	require.NoError(t, err)
	defer l.Close()
	assert.Nil(t, l.Cache())
}

func TestOpenWithCache_MissingFileDegradesGracefully(t *testing.T) {
	path, _, _ := writeTestPlot(t, 100)
	l, err := OpenWithCache(path, filepath.Join(t.TempDir(), "nope.cache"))
	require.NoError(t, err)
	defer l.Close()
	assert.Nil(t, l.Cache())
}

func TestOpenWithCache_LeafCountMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	path, leaves, _ := writeTestPlot(t, 100)
	l, err := Open(path)
	require.NoError(t, err)
	height := l.Header().TreeHeight
	require.NoError(t, l.Close())

	i := 0
	next := func() (postcore.Leaf, bool, error) {
		if i >= len(leaves) {
			return postcore.Leaf{}, false, nil
		}
		out := leaves[i]
		i++
		return out, true, nil
	}
	_, _, cache, err := merkletree.BuildWithCache(next, int64(len(leaves)), height, 2)
	require.NoError(t, err)
	cache.LeafCount = 999 // tamper: pretend this cache belongs to a different plot
	raw, err := cache.Serialize()
	require.NoError(t, err)
	cachePath := filepath.Join(dir, "test.cache")
	require.NoError(t, os.WriteFile(cachePath, raw, 0o644))

	_, err = OpenWithCache(path, cachePath)
	require.Error(t, err)
	kind, ok := postcore.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, postcore.KindCorrupted, kind)
}
