// Package plotcreate implements the Plot Creator (spec §4.4): single-pass
// generation of a plot file (and optional cache file), feeding each leaf to
// disk and to the streaming Merkle engine at the same time.
package plotcreate

import (
	"os"

	"github.com/spacetime-chain/post-miner/internal/leaf"
	"github.com/spacetime-chain/post-miner/internal/merkletree"
	"github.com/spacetime-chain/post-miner/internal/plotformat"
	"github.com/spacetime-chain/post-miner/internal/postcore"
)

// MinPlotSizeBytes is the smallest plot size the creator accepts (spec
// §4.4: "plot size must be at least 100 MiB").
const MinPlotSizeBytes = 100 * 1024 * 1024

// Config describes a single plot-creation request.
type Config struct {
	OutputPath string
	CachePath  string // empty means no cache file is written
	CacheLevel int32  // number of top levels to cache; ignored if CachePath is empty
	Pubkey     []byte
	Seed       []byte
	PlotSizeBytes int64
}

// Validate checks the constraints spec §4.4 places on a creation request.
func (c Config) Validate() error {
	if c.PlotSizeBytes < MinPlotSizeBytes {
		return postcore.InvalidArgument("plot size must be at least 100 MiB")
	}
	if len(c.Pubkey) != leaf.KeySize {
		return postcore.InvalidArgument("pubkey must be exactly 32 bytes")
	}
	if len(c.Seed) != leaf.KeySize {
		return postcore.InvalidArgument("seed must be exactly 32 bytes")
	}
	if c.CacheLevel < 0 {
		return postcore.InvalidArgument("cache level count must be non-negative")
	}
	return nil
}

// LeafCount returns floor(plotSizeBytes / 32), the leaf count a plot of this
// size holds.
func (c Config) LeafCount() int64 {
	return c.PlotSizeBytes / int64(postcore.LeafSize)
}

// Result summarizes a completed plot creation.
type Result struct {
	LeafCount  int64
	TreeHeight int64
	MerkleRoot postcore.Leaf
}

// Create generates a plot per cfg, writing leaves and header to
// cfg.OutputPath and (if cfg.CachePath is set) a Merkle level cache to
// cfg.CachePath. onProgress, if not nil, receives debounced integer
// percentage ticks. ctxDone allows cooperative cancellation between leaves;
// on cancellation the partially written file is left in place for the
// caller to delete, per spec §4.4's best-effort atomicity.
func Create(cfg Config, ctxDone <-chan struct{}, onProgress func(pct int)) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	leafCount := cfg.LeafCount()
	height := plotformat.TreeHeightFor(leafCount)

	f, err := os.Create(cfg.OutputPath)
	if err != nil {
		return Result{}, postcore.WithKind(postcore.KindWriteFailure, "failed to create plot file", err)
	}
	defer f.Close()

	// Reserve the header region with zero bytes; it is overwritten once the
	// root is known.
	if _, err := f.Write(make([]byte, plotformat.HeaderSize)); err != nil {
		return Result{}, postcore.WithKind(postcore.KindWriteFailure, "failed to reserve header region", err)
	}

	seq, err := leaf.NewSequence(cfg.Pubkey, cfg.Seed, 0, leafCount)
	if err != nil {
		return Result{}, err
	}
	lastPct := -1
	seq.OnProgress(func(nonce int64) {
		if onProgress == nil {
			return
		}
		pct := int((nonce + 1) * 100 / leafCount)
		if pct != lastPct {
			lastPct = pct
			onProgress(pct)
		}
	})

	next := func() (postcore.Leaf, bool, error) {
		l, ok, err := seq.Next(ctxDone)
		if err != nil {
			return postcore.Leaf{}, false, err
		}
		if !ok {
			return postcore.Leaf{}, false, nil
		}
		if _, werr := f.Write(l[:]); werr != nil {
			return postcore.Leaf{}, false, postcore.WithKind(postcore.KindWriteFailure, "failed to write leaf", werr)
		}
		return l, true, nil
	}

	var root postcore.Leaf
	var gotHeight int64
	var cache *merkletree.Cache

	if cfg.CachePath != "" {
		root, gotHeight, cache, err = merkletree.BuildWithCache(next, leafCount, height, cfg.CacheLevel)
	} else {
		root, gotHeight, err = merkletree.BuildRoot(next)
	}
	if err != nil {
		return Result{}, err
	}

	h := plotformat.NewHeader(seedArray(cfg.Seed), leafCount, gotHeight, root)
	ser, err := h.Serialize()
	if err != nil {
		return Result{}, err
	}
	if _, err := f.WriteAt(ser[:], 0); err != nil {
		return Result{}, postcore.WithKind(postcore.KindWriteFailure, "failed to write plot header", err)
	}

	if cfg.CachePath != "" {
		raw, err := cache.Serialize()
		if err != nil {
			return Result{}, err
		}
		if err := os.WriteFile(cfg.CachePath, raw, 0o644); err != nil {
			return Result{}, postcore.WithKind(postcore.KindWriteFailure, "failed to write cache file", err)
		}
	}

	return Result{LeafCount: leafCount, TreeHeight: gotHeight, MerkleRoot: root}, nil
}

func seedArray(seed []byte) [32]byte {
	var out [32]byte
	copy(out[:], seed)
	return out
}
