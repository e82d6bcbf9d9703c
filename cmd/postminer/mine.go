package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spacetime-chain/post-miner/internal/blocksigner"
	"github.com/spacetime-chain/post-miner/internal/config"
	"github.com/spacetime-chain/post-miner/internal/eventlog"
	"github.com/spacetime-chain/post-miner/internal/infra/logging"
	"github.com/spacetime-chain/post-miner/internal/plotmanager"
	"github.com/spacetime-chain/post-miner/internal/scanstrategy"
)

// mineCommand runs one mining pass: load the registry described by
// --config, fan out a scan across every valid plot, and print the winning
// proof.
type mineCommand struct {
	Config    string `long:"config" description:"path to postminer config YAML" required:"true"`
	Challenge string `long:"challenge" description:"32-byte challenge, hex-encoded" required:"true"`
	SignKey   string `long:"sign-key" description:"optional hex-encoded ECDSA key to sign the winning proof's score with"`
}

func (c *mineCommand) Execute(_ []string) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewWithConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	challenge, err := hex.DecodeString(c.Challenge)
	if err != nil {
		return fmt.Errorf("invalid --challenge: %w", err)
	}

	var events *eventlog.Log
	if cfg.EventLog.Directory != "" {
		events, err = eventlog.Open(logger, cfg.EventLog.Directory)
		if err != nil {
			return fmt.Errorf("failed to open event log: %w", err)
		}
		defer events.Close()
	}

	mgr := plotmanager.New(logger, cfg.Plots.MetadataPath, events)
	if err := mgr.Load(); err != nil {
		return fmt.Errorf("failed to load plot registry: %w", err)
	}
	defer mgr.Close()

	strategy := strategyFromConfig(cfg.Scan)
	scanCfg := scanstrategy.Configuration{
		QualityThresholdBits: cfg.Scan.QualityThresholdBits,
		MaxLeaves:            cfg.Scan.MaxLeaves,
	}

	done := make(chan struct{})
	proof, err := mgr.GenerateProof(challenge, strategy, scanCfg, done)
	if err != nil {
		return fmt.Errorf("mining pass produced no proof: %w", err)
	}

	fmt.Printf("best proof: leaf_index=%d score=%x\n", proof.LeafIndex, proof.Score)

	if c.SignKey != "" {
		signer, err := blocksigner.NewSignerFromHex(c.SignKey)
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		sig, err := signer.Sign(proof.Score[:])
		if err != nil {
			return fmt.Errorf("failed to sign proof: %w", err)
		}
		fmt.Printf("signed by %s: %x\n", signer.Address(), sig)
	}
	return nil
}

func strategyFromConfig(sc config.ScanConfig) scanstrategy.Strategy {
	switch sc.Strategy {
	case "sampling":
		return scanstrategy.Sampling{N: sc.SamplingCount}
	case "cache_friendly":
		return scanstrategy.CacheFriendly{
			BlockSize:      sc.CacheFriendlyBlockSize,
			LeavesPerBlock: sc.CacheFriendlyLeavesPerBlock,
		}
	default:
		return scanstrategy.FullScan{}
	}
}
