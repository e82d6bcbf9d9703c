// Package testing provides a containerized BadgerDB fixture for the event
// journal's integration test (internal/eventlog), the way the teacher backs
// its own store integration tests with a real containerized dependency
// instead of an in-process fake.
package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-pkgz/lgr"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// BadgerContainer pairs an open BadgerDB with the Docker container standing
// in for the node it would run on in production, so a journal test exercises
// the same open/write/sync/close lifecycle it would against a real deployment.
type BadgerContainer struct {
	container testcontainers.Container
	db        *badger.DB
	logger    lgr.L
}

// BadgerContainerConfig configures the fixture. Only Logger is commonly set
// by callers; Image and Options exist so a test can override the defaults.
type BadgerContainerConfig struct {
	// Docker image to use (optional, defaults to alpine:latest)
	Image string
	// BadgerDB options
	Options badger.Options
	// Logger instance
	Logger lgr.L
	// Whether to enable debug logging
	Debug bool
}

// NewBadgerContainer creates a new BadgerDB container instance
func NewBadgerContainer(ctx context.Context, config BadgerContainerConfig) (*BadgerContainer, error) {
	if config.Image == "" {
		config.Image = "alpine:latest"
	}
	if config.Logger == nil {
		config.Logger = lgr.New(lgr.Debug)
	}

	// Create container request
	req := testcontainers.ContainerRequest{
		Image: config.Image,
		// Keep container running
		Cmd:          []string{"sleep", "3600"},
		ExposedPorts: []string{},
		WaitingFor:   wait.ForExec([]string{"echo", "ready"}).WithStartupTimeout(30 * time.Second),
	}

	// Start container
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start BadgerDB container: %w", err)
	}

	// Create BadgerDB instance
	opts := config.Options
	if opts.Dir == "" {
		// Use a temp directory for the test
		opts.Dir = "/tmp/badger-test"
		opts.ValueDir = "/tmp/badger-test"
	}

	// Set up BadgerDB options for testing
	opts.Logger = newBadgerLogger(config.Logger)
	opts.MemTableSize = 1 << 20 // 1MB for faster tests
	opts.NumMemtables = 2
	opts.NumLevelZeroTables = 1
	opts.NumLevelZeroTablesStall = 2
	opts.LevelSizeMultiplier = 2
	opts.MaxLevels = 3
	opts.SyncWrites = false // Faster for tests
	opts.NumVersionsToKeep = 1
	opts.CompactL0OnClose = true
	opts.ValueLogFileSize = 16 << 20 // 16MB - minimum valid size

	if config.Debug {
		opts.Logger = newBadgerLogger(lgr.New(lgr.Debug))
	}

	db, err := badger.Open(opts)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	bc := &BadgerContainer{
		container: container,
		db:        db,
		logger:    config.Logger,
	}

	return bc, nil
}

// GetDB returns the BadgerDB instance backing this fixture.
func (bc *BadgerContainer) GetDB() *badger.DB {
	return bc.db
}

// Sync forces a sync of the BadgerDB, so a test can assert on durable state
// immediately after a write.
func (bc *BadgerContainer) Sync() error {
	return bc.db.Sync()
}

// GetKeyCount returns the total number of keys in the database, letting a
// test assert on the journal's on-disk shape without reaching into badger
// internals itself.
func (bc *BadgerContainer) GetKeyCount() (int, error) {
	count := 0
	err := bc.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the BadgerDB and stops the container
func (bc *BadgerContainer) Close(ctx context.Context) error {
	var errs []error

	// Close BadgerDB
	if bc.db != nil {
		if err := bc.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close BadgerDB: %w", err))
		}
	}

	// Stop container
	if bc.container != nil {
		if err := bc.container.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to terminate container: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

// badgerLogger adapts lgr.L to badger's Logger interface
type badgerLogger struct {
	lgr lgr.L
}

func newBadgerLogger(l lgr.L) *badgerLogger {
	return &badgerLogger{lgr: l}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.lgr.Logf("ERROR "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.lgr.Logf("WARN "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.lgr.Logf("INFO "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.lgr.Logf("DEBUG "+format, args...)
}
