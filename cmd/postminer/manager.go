package main

import (
	"fmt"

	"github.com/spacetime-chain/post-miner/internal/config"
	"github.com/spacetime-chain/post-miner/internal/eventlog"
	"github.com/spacetime-chain/post-miner/internal/infra/logging"
	"github.com/spacetime-chain/post-miner/internal/plotmanager"
)

// managerCommand groups the plot registry maintenance subcommands: list,
// add, remove, and refresh.
type managerCommand struct {
	List    managerListCommand    `command:"list" description:"print every registered plot"`
	Add     managerAddCommand     `command:"add" description:"register a plot file with the registry"`
	Remove  managerRemoveCommand  `command:"remove" description:"drop a plot from the registry"`
	Refresh managerRefreshCommand `command:"refresh" description:"re-check every registered plot's on-disk status"`
}

func openManager(configPath string) (*plotmanager.Manager, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewWithConfig(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	var events *eventlog.Log
	if cfg.EventLog.Directory != "" {
		events, err = eventlog.Open(logger, cfg.EventLog.Directory)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open event log: %w", err)
		}
	}

	mgr := plotmanager.New(logger, cfg.Plots.MetadataPath, events)
	if err := mgr.Load(); err != nil {
		if events != nil {
			events.Close()
		}
		return nil, nil, fmt.Errorf("failed to load plot registry: %w", err)
	}

	cleanup := func() {
		mgr.Close()
		if events != nil {
			events.Close()
		}
	}
	return mgr, cleanup, nil
}

type managerListCommand struct {
	Config string `long:"config" description:"path to postminer config YAML" required:"true"`
}

func (c *managerListCommand) Execute(_ []string) error {
	mgr, cleanup, err := openManager(c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, entry := range mgr.List() {
		fmt.Printf("%s  %-9s  %s\n", entry.PlotID, entry.Status, entry.FilePath)
	}
	return nil
}

type managerAddCommand struct {
	Config string `long:"config" description:"path to postminer config YAML" required:"true"`
	Path   string `long:"path" description:"path to the plot file" required:"true"`
	Cache  string `long:"cache" description:"optional sibling cache file path"`
}

func (c *managerAddCommand) Execute(_ []string) error {
	mgr, cleanup, err := openManager(c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	entry, err := mgr.Add(c.Path, c.Cache)
	if err != nil {
		return fmt.Errorf("failed to add plot: %w", err)
	}
	if err := mgr.Persist(); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	fmt.Printf("registered %s as %s (%s)\n", c.Path, entry.PlotID, entry.Status)
	return nil
}

type managerRemoveCommand struct {
	Config string `long:"config" description:"path to postminer config YAML" required:"true"`
	PlotID string `long:"plot-id" description:"id of the plot to remove" required:"true"`
}

func (c *managerRemoveCommand) Execute(_ []string) error {
	mgr, cleanup, err := openManager(c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := mgr.Remove(c.PlotID); err != nil {
		return fmt.Errorf("failed to remove plot: %w", err)
	}
	if err := mgr.Persist(); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	fmt.Printf("removed %s\n", c.PlotID)
	return nil
}

type managerRefreshCommand struct {
	Config string `long:"config" description:"path to postminer config YAML" required:"true"`
}

func (c *managerRefreshCommand) Execute(_ []string) error {
	mgr, cleanup, err := openManager(c.Config)
	if err != nil {
		return err
	}
	defer cleanup()

	transitions := mgr.RefreshAll()
	if err := mgr.Persist(); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	fmt.Printf("refreshed %d plots, %d status transitions\n", mgr.Count(), transitions)
	return nil
}
