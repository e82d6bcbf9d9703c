// Package plotmeta defines the Plot Manager's persisted registry entry
// (spec §6.2) and its JSON wire shape.
package plotmeta

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/spacetime-chain/post-miner/internal/postcore"
)

// Status is a plot's last-known health, as tracked by the registry.
type Status string

const (
	StatusValid     Status = "Valid"
	StatusCorrupted Status = "Corrupted"
	StatusMissing   Status = "Missing"
)

// Entry is one plot's in-memory registry record (spec §3 "Plot Metadata").
type Entry struct {
	PlotID              string
	FilePath            string
	CacheFilePath       string
	SpaceAllocatedBytes int64
	MerkleRoot          postcore.Leaf
	CreatedAtUTC        time.Time
	Status              Status
}

// wireEntry is the exact JSON shape spec §6.2 specifies.
type wireEntry struct {
	PlotID              string `json:"plotId"`
	FilePath            string `json:"filePath"`
	CacheFilePath       string `json:"cacheFilePath"`
	SpaceAllocatedBytes int64  `json:"spaceAllocatedBytes"`
	MerkleRoot          string `json:"merkleRoot"`
	CreatedAtUTC        string `json:"createdAtUtc"`
	Status              string `json:"status"`
}

// MarshalJSON encodes e per spec §6.2: base64 Merkle root, ISO-8601 timestamp.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEntry{
		PlotID:              e.PlotID,
		FilePath:            e.FilePath,
		CacheFilePath:       e.CacheFilePath,
		SpaceAllocatedBytes: e.SpaceAllocatedBytes,
		MerkleRoot:          base64.StdEncoding.EncodeToString(e.MerkleRoot[:]),
		CreatedAtUTC:        e.CreatedAtUTC.UTC().Format(time.RFC3339),
		Status:              string(e.Status),
	})
}

// UnmarshalJSON decodes e per spec §6.2. An unknown status string
// deserializes to Missing, matching "Unknown status strings deserialize to
// Missing" in spec §6.2.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	root, err := base64.StdEncoding.DecodeString(w.MerkleRoot)
	if err != nil || len(root) != postcore.LeafSize {
		root = make([]byte, postcore.LeafSize)
	}

	createdAt, err := time.Parse(time.RFC3339, w.CreatedAtUTC)
	if err != nil {
		createdAt = time.Time{}
	}

	status := Status(w.Status)
	switch status {
	case StatusValid, StatusCorrupted, StatusMissing:
	default:
		status = StatusMissing
	}

	*e = Entry{
		PlotID:              w.PlotID,
		FilePath:            w.FilePath,
		CacheFilePath:       w.CacheFilePath,
		SpaceAllocatedBytes: w.SpaceAllocatedBytes,
		CreatedAtUTC:        createdAt,
		Status:              status,
	}
	copy(e.MerkleRoot[:], root)
	return nil
}
