// Package plotload implements the Plot Loader (spec §4.5): open a plot file
// shared-read, parse and validate its header, and expose bounds-checked
// leaf reads plus a restartable full scan.
package plotload

import (
	"io"
	"os"

	"github.com/spacetime-chain/post-miner/internal/merkletree"
	"github.com/spacetime-chain/post-miner/internal/plotformat"
	"github.com/spacetime-chain/post-miner/internal/postcore"
)

// Loader owns an open plot file handle. It is not safe for concurrent use by
// multiple goroutines against the same instance; separate Loaders opened on
// the same path are safe (the underlying file is never written to once
// created).
type Loader struct {
	file   *os.File
	header plotformat.Header
	path   string
	cache  *merkletree.Cache
}

// Open opens path, reads and validates the 121-byte header, and checks the
// file is at least as long as the header claims. A header that fails to
// parse is postcore.KindCorrupted; a file shorter than the header promises
// is postcore.KindTruncated.
func Open(path string) (*Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, postcore.WithKind(postcore.KindMissing, "plot file not found", err)
		}
		return nil, postcore.WithKind(postcore.KindReadFailure, "failed to open plot file", err)
	}

	headerBuf := make([]byte, plotformat.HeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		f.Close()
		return nil, postcore.WithKind(postcore.KindCorrupted, "failed to read plot header", err)
	}

	h, err := plotformat.Parse(headerBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, postcore.WithKind(postcore.KindReadFailure, "failed to stat plot file", err)
	}
	wantSize := int64(plotformat.HeaderSize) + h.LeafCount*int64(h.LeafSize)
	if info.Size() < wantSize {
		f.Close()
		return nil, postcore.WithKind(postcore.KindTruncated, "plot file shorter than header promises", nil)
	}

	return &Loader{file: f, header: h, path: path}, nil
}

// OpenWithCache opens path like Open, then attaches the Merkle level cache at
// cachePath if cachePath is non-empty. A cache whose leaf_count does not
// match the plot header is rejected (postcore.KindCorrupted) rather than
// silently ignored, since a mismatched cache would hand back wrong siblings.
// A missing cache file degrades to the uncached path rather than failing the
// open, since cache acceleration is an optional speedup (spec §4.3).
func OpenWithCache(path, cachePath string) (*Loader, error) {
	l, err := Open(path)
	if err != nil {
		return nil, err
	}
	if cachePath == "" {
		return l, nil
	}

	raw, err := os.ReadFile(cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		l.Close()
		return nil, postcore.WithKind(postcore.KindReadFailure, "failed to read cache file", err)
	}
	cache, err := merkletree.ParseCache(raw, l.header.TreeHeight)
	if err != nil {
		l.Close()
		return nil, err
	}
	if cache.LeafCount != l.header.LeafCount {
		l.Close()
		return nil, postcore.WithKind(postcore.KindCorrupted, "cache file leaf_count does not match plot header", nil)
	}
	l.cache = cache
	return l, nil
}

// Header returns the plot's parsed header.
func (l *Loader) Header() plotformat.Header { return l.header }

// Path returns the path the loader was opened from.
func (l *Loader) Path() string { return l.path }

// Cache returns the loader's attached Merkle level cache, or nil if none was
// loaded.
func (l *Loader) Cache() *merkletree.Cache { return l.cache }

// Close releases the underlying file handle.
func (l *Loader) Close() error { return l.file.Close() }

func (l *Loader) offsetFor(index int64) int64 {
	return int64(plotformat.HeaderSize) + index*int64(l.header.LeafSize)
}

// ReadLeaf reads the leaf at index, bounds-checked against the header's
// leaf_count.
func (l *Loader) ReadLeaf(index int64) (postcore.Leaf, error) {
	if index < 0 || index >= l.header.LeafCount {
		return postcore.Leaf{}, postcore.InvalidArgument("leaf index out of range")
	}
	buf := make([]byte, postcore.LeafSize)
	if _, err := l.file.ReadAt(buf, l.offsetFor(index)); err != nil {
		return postcore.Leaf{}, postcore.WithKind(postcore.KindReadFailure, "short read on plot leaf", err)
	}
	return postcore.LeafFromBytes(buf)
}

// ReadLeaves returns a pull iterator over the count leaves starting at
// start, read as one contiguous span.
func (l *Loader) ReadLeaves(start, count int64) (func() (postcore.Leaf, bool, error), error) {
	if start < 0 || count < 0 || start+count > l.header.LeafCount {
		return nil, postcore.InvalidArgument("leaf range out of bounds")
	}
	buf := make([]byte, count*int64(postcore.LeafSize))
	if count > 0 {
		if _, err := l.file.ReadAt(buf, l.offsetFor(start)); err != nil {
			return nil, postcore.WithKind(postcore.KindReadFailure, "short read on plot leaf range", err)
		}
	}
	i := int64(0)
	return func() (postcore.Leaf, bool, error) {
		if i >= count {
			return postcore.Leaf{}, false, nil
		}
		off := i * int64(postcore.LeafSize)
		leaf, err := postcore.LeafFromBytes(buf[off : off+int64(postcore.LeafSize)])
		if err != nil {
			return postcore.Leaf{}, false, err
		}
		i++
		return leaf, true, nil
	}, nil
}

// ReadAllLeaves returns a restartable, sequential, pull-based iterator over
// every leaf in nonce order, with no seeking between adjacent reads. Each
// call to ReadAllLeaves starts a fresh scan from leaf 0. onProgress, if not
// nil, is called with an integer percentage (debounced to distinct values)
// as the scan proceeds.
func (l *Loader) ReadAllLeaves(ctxDone <-chan struct{}, onProgress func(pct int)) func() (postcore.Leaf, bool, error) {
	total := l.header.LeafCount
	const chunkLeaves = 4096
	buf := make([]byte, 0, chunkLeaves*postcore.LeafSize)
	var chunkOff int64
	var nextIndex int64
	lastPct := -1

	return func() (postcore.Leaf, bool, error) {
		if nextIndex >= total {
			return postcore.Leaf{}, false, nil
		}
		select {
		case <-ctxDone:
			return postcore.Leaf{}, false, postcore.ErrCancelled
		default:
		}

		posInChunk := nextIndex - chunkOff
		if posInChunk < 0 || posInChunk*int64(postcore.LeafSize) >= int64(len(buf)) {
			remaining := total - nextIndex
			n := int64(chunkLeaves)
			if n > remaining {
				n = remaining
			}
			want := n * int64(postcore.LeafSize)
			buf = buf[:want]
			if _, err := l.file.ReadAt(buf, l.offsetFor(nextIndex)); err != nil {
				return postcore.Leaf{}, false, postcore.WithKind(postcore.KindReadFailure, "short read during full leaf scan", err)
			}
			chunkOff = nextIndex
			posInChunk = 0
		}

		off := posInChunk * int64(postcore.LeafSize)
		leaf, err := postcore.LeafFromBytes(buf[off : off+int64(postcore.LeafSize)])
		if err != nil {
			return postcore.Leaf{}, false, err
		}
		nextIndex++

		if onProgress != nil {
			pct := int(nextIndex * 100 / total)
			if pct != lastPct {
				lastPct = pct
				onProgress(pct)
			}
		}
		return leaf, true, nil
	}
}

// VerifyMerkleRoot rebuilds the Merkle tree from a full sequential scan and
// compares it to the header's root. This reads every leaf; callers opt in
// explicitly.
func (l *Loader) VerifyMerkleRoot(ctxDone <-chan struct{}) (bool, error) {
	root, height, err := merkletree.BuildRoot(l.ReadAllLeaves(ctxDone, nil))
	if err != nil {
		return false, err
	}
	if height != l.header.TreeHeight {
		return false, nil
	}
	return root == l.header.MerkleRoot, nil
}
