package main

import (
	"encoding/hex"
	"fmt"

	"github.com/go-pkgz/lgr"

	"github.com/spacetime-chain/post-miner/internal/plotcreate"
	"github.com/spacetime-chain/post-miner/internal/plotload"
)

// plotCommand groups the "plot create" and "plot verify" subcommands.
type plotCommand struct {
	Create createPlotCommand `command:"create" description:"generate a new plot file"`
	Verify verifyPlotCommand `command:"verify" description:"rebuild a plot's Merkle root and compare it to the header"`
}

type createPlotCommand struct {
	Output     string `long:"output" description:"path to write the plot file" required:"true"`
	Cache      string `long:"cache" description:"optional path to write a Merkle cache file alongside the plot"`
	CacheLevel int32  `long:"cache-level" description:"number of top Merkle levels to cache" default:"0"`
	Pubkey     string `long:"pubkey" description:"32-byte miner public key, hex-encoded" required:"true"`
	Seed       string `long:"seed" description:"32-byte plot seed, hex-encoded" required:"true"`
	SizeBytes  int64  `long:"size" description:"plot size in bytes (minimum 100 MiB)" required:"true"`
}

func (c *createPlotCommand) Execute(_ []string) error {
	pubkey, err := hex.DecodeString(c.Pubkey)
	if err != nil {
		return fmt.Errorf("invalid --pubkey: %w", err)
	}
	seed, err := hex.DecodeString(c.Seed)
	if err != nil {
		return fmt.Errorf("invalid --seed: %w", err)
	}

	cfg := plotcreate.Config{
		OutputPath:    c.Output,
		CachePath:     c.Cache,
		CacheLevel:    c.CacheLevel,
		Pubkey:        pubkey,
		Seed:          seed,
		PlotSizeBytes: c.SizeBytes,
	}

	done := make(chan struct{})
	lastPct := -1
	result, err := plotcreate.Create(cfg, done, func(pct int) {
		if pct != lastPct {
			lastPct = pct
			fmt.Printf("\rcreating plot: %d%%", pct)
		}
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to create plot: %w", err)
	}

	fmt.Printf("created %s: %d leaves, tree height %d, root %x\n",
		c.Output, result.LeafCount, result.TreeHeight, result.MerkleRoot)
	return nil
}

type verifyPlotCommand struct {
	Path string `long:"path" description:"path to the plot file to verify" required:"true"`
}

func (c *verifyPlotCommand) Execute(_ []string) error {
	logger := lgr.New(lgr.Msec)
	l, err := plotload.Open(c.Path)
	if err != nil {
		return fmt.Errorf("failed to open plot: %w", err)
	}
	defer l.Close()

	done := make(chan struct{})
	ok, err := l.VerifyMerkleRoot(done)
	if err != nil {
		return fmt.Errorf("failed to verify plot: %w", err)
	}
	if !ok {
		logger.Logf("ERROR plot %s failed Merkle root verification", c.Path)
		return fmt.Errorf("plot %s: Merkle root mismatch", c.Path)
	}

	fmt.Printf("%s: OK (%d leaves, height %d)\n", c.Path, l.Header().LeafCount, l.Header().TreeHeight)
	return nil
}
