// Package plotmanager implements the Plot Manager (spec §4.8): a
// concurrent registry of plots with status tracking, JSON persistence, and
// fan-out proof generation across every currently-valid plot.
package plotmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"

	"github.com/spacetime-chain/post-miner/internal/eventlog"
	"github.com/spacetime-chain/post-miner/internal/plotload"
	"github.com/spacetime-chain/post-miner/internal/plotmeta"
	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/spacetime-chain/post-miner/internal/proofcore"
	"github.com/spacetime-chain/post-miner/internal/proofgen"
	"github.com/spacetime-chain/post-miner/internal/scanstrategy"
)

// record pairs a registry entry with its loader, when the plot parses. A
// nil Loader means the entry is Corrupted or Missing.
type record struct {
	meta   plotmeta.Entry
	loader *plotload.Loader
}

// Manager is the Plot Manager. Reads (Get, List, Count) are lock-free over
// the underlying sync.Map; Add/Remove/Refresh/Persist take the coarse write
// lock, matching spec §4.8's concurrency discipline.
type Manager struct {
	mu           sync.Mutex
	entries      sync.Map // plotID string -> *record
	metadataPath string
	logger       lgr.L
	events       *eventlog.Log // optional; nil disables journaling
}

// New creates an empty manager. events may be nil if no journal is wired.
func New(logger lgr.L, metadataPath string, events *eventlog.Log) *Manager {
	return &Manager{logger: logger, metadataPath: metadataPath, events: events}
}

// Add registers path (and optionally a sibling cache file) with the
// manager. Duplicate paths are coalesced case-insensitively: re-adding an
// already-registered path returns the existing entry rather than creating a
// second one. A load failure does not return an error — it is recorded as
// a Corrupted or Missing entry, per spec §4.8.
func (m *Manager) Add(path, cachePath string) (plotmeta.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := strings.ToLower(path)
	var existing *record
	m.entries.Range(func(_, v interface{}) bool {
		r := v.(*record)
		if strings.ToLower(r.meta.FilePath) == normalized {
			existing = r
			return false
		}
		return true
	})
	if existing != nil {
		return existing.meta, nil
	}

	id := uuid.NewString()
	meta, loader := m.load(id, path, cachePath)

	m.entries.Store(id, &record{meta: meta, loader: loader})
	m.emit(eventlog.KindPlotAdded, id)
	return meta, nil
}

// load opens path and classifies the resulting status, without mutating the
// registry. Shared by Add and Refresh.
func (m *Manager) load(id, path, cachePath string) (plotmeta.Entry, *plotload.Loader) {
	meta := plotmeta.Entry{
		PlotID:        id,
		FilePath:      path,
		CacheFilePath: cachePath,
		CreatedAtUTC:  time.Now().UTC(),
	}

	loader, err := plotload.OpenWithCache(path, cachePath)
	if err != nil {
		meta.Status = classifyOpenError(err)
		return meta, nil
	}

	info, statErr := os.Stat(path)
	if statErr == nil {
		meta.SpaceAllocatedBytes = info.Size()
	}
	meta.MerkleRoot = loader.Header().MerkleRoot
	meta.Status = plotmeta.StatusValid
	return meta, loader
}

func classifyOpenError(err error) plotmeta.Status {
	if kind, ok := postcore.KindOf(err); ok && kind == postcore.KindMissing {
		return plotmeta.StatusMissing
	}
	return plotmeta.StatusCorrupted
}

// Remove drops the registry entry for plotID, closing its loader if one is
// open.
func (m *Manager) Remove(plotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.entries.Load(plotID)
	if !ok {
		return fmt.Errorf("plotmanager: unknown plot id %q", plotID)
	}
	r := v.(*record)
	if r.loader != nil {
		if err := r.loader.Close(); err != nil {
			m.logger.Logf("WARN failed to close loader for plot %s: %v", plotID, err)
		}
	}
	m.entries.Delete(plotID)
	m.emit(eventlog.KindPlotRemoved, plotID)
	return nil
}

// Refresh re-checks plotID's on-disk status, updating the entry if its
// status transitioned (Valid->Corrupted/Missing, or Corrupted/Missing->
// Valid). Reports whether a transition occurred.
func (m *Manager) Refresh(plotID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.entries.Load(plotID)
	if !ok {
		return false, fmt.Errorf("plotmanager: unknown plot id %q", plotID)
	}
	r := v.(*record)
	oldStatus := r.meta.Status

	if r.loader != nil {
		if err := r.loader.Close(); err != nil {
			m.logger.Logf("WARN failed to close loader for plot %s during refresh: %v", plotID, err)
		}
	}
	meta, loader := m.load(plotID, r.meta.FilePath, r.meta.CacheFilePath)
	meta.CreatedAtUTC = r.meta.CreatedAtUTC // refresh never resets creation time

	m.entries.Store(plotID, &record{meta: meta, loader: loader})
	return meta.Status != oldStatus, nil
}

// RefreshAll refreshes every registered entry and returns the number whose
// status transitioned.
func (m *Manager) RefreshAll() int {
	var ids []string
	m.entries.Range(func(k, _ interface{}) bool {
		ids = append(ids, k.(string))
		return true
	})

	transitions := 0
	for _, id := range ids {
		changed, err := m.Refresh(id)
		if err != nil {
			continue
		}
		if changed {
			transitions++
		}
	}
	return transitions
}

// Get returns the entry for plotID, if present. Lock-free.
func (m *Manager) Get(plotID string) (plotmeta.Entry, bool) {
	v, ok := m.entries.Load(plotID)
	if !ok {
		return plotmeta.Entry{}, false
	}
	return v.(*record).meta, true
}

// List returns every registered entry, in no particular order. Lock-free.
func (m *Manager) List() []plotmeta.Entry {
	var out []plotmeta.Entry
	m.entries.Range(func(_, v interface{}) bool {
		out = append(out, v.(*record).meta)
		return true
	})
	return out
}

// Count returns the number of registered entries. Lock-free.
func (m *Manager) Count() int {
	n := 0
	m.entries.Range(func(_, _ interface{}) bool { n++; return true })
	return n
}

// Persist serializes the registry to m.metadataPath as a JSON array (spec
// §6.2), using a temp-file-then-rename so a crash mid-write never leaves a
// half-written registry.
func (m *Manager) Persist() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.List()
	if entries == nil {
		entries = []plotmeta.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(m.metadataPath)
	tmp, err := os.CreateTemp(dir, ".plotmeta-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp metadata file: %w", err)
	}
	if err := os.Rename(tmpPath, m.metadataPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp metadata file: %w", err)
	}
	return nil
}

// Load reads m.metadataPath and populates the registry, reopening a loader
// for every entry whose status was Valid. A missing file is treated as an
// empty registry. A corrupt (unparseable) file is also treated as empty —
// spec §4.8's "do not crash" recovery rule — rather than returning an
// error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read metadata file: %w", err)
	}

	var entries []plotmeta.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		m.logger.Logf("WARN metadata file %s is corrupt, starting with an empty registry: %v", m.metadataPath, err)
		return nil
	}

	for _, e := range entries {
		var loader *plotload.Loader
		if e.Status == plotmeta.StatusValid {
			loader, err = plotload.OpenWithCache(e.FilePath, e.CacheFilePath)
			if err != nil {
				e.Status = classifyOpenError(err)
			}
		}
		m.entries.Store(e.PlotID, &record{meta: e, loader: loader})
	}
	return nil
}

// GenerateProof fans out proof generation (spec §4.6's multi-plot path)
// across every currently-Valid plot and returns the best overall proof, or
// proofgen.ErrNoProof if none is found.
func (m *Manager) GenerateProof(challengeBytes []byte, strategy scanstrategy.Strategy, cfg scanstrategy.Configuration, ctxDone <-chan struct{}) (proofcore.Proof, error) {
	var sources []proofgen.PlotSource
	m.entries.Range(func(_, v interface{}) bool {
		r := v.(*record)
		if r.meta.Status == plotmeta.StatusValid && r.loader != nil {
			sources = append(sources, proofgen.PlotSource{PlotID: r.meta.PlotID, Loader: r.loader})
		}
		return true
	})

	onPlotError := func(plotID string, err error) {
		m.logger.Logf("WARN plot %s failed during scan: %v", plotID, err)
	}
	return proofgen.GenerateMultiPlot(sources, challengeBytes, strategy, cfg, ctxDone, onPlotError)
}

// Close releases every open loader, e.g. on process shutdown.
func (m *Manager) Close() {
	m.entries.Range(func(_, v interface{}) bool {
		r := v.(*record)
		if r.loader != nil {
			if err := r.loader.Close(); err != nil {
				m.logger.Logf("WARN failed to close loader: %v", err)
			}
		}
		return true
	})
}

func (m *Manager) emit(kind eventlog.Kind, plotID string) {
	if m.events == nil {
		return
	}
	if _, err := m.events.Append(kind, plotID); err != nil {
		m.logger.Logf("WARN failed to journal %s event for plot %s: %v", kind, plotID, err)
	}
}
