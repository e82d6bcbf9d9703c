package plotmeta

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spacetime-chain/post-miner/internal/postcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	var root postcore.Leaf
	root[0] = 0xAB
	e := Entry{
		PlotID:              "4f9e6f3a-1b2c-4d3e-9f1a-0123456789ab",
		FilePath:            "/plots/a.plot",
		CacheFilePath:       "/plots/a.plot.cache",
		SpaceAllocatedBytes: 104857600,
		MerkleRoot:          root,
		CreatedAtUTC:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:              StatusValid,
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got Entry
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, e.PlotID, got.PlotID)
	assert.Equal(t, e.MerkleRoot, got.MerkleRoot)
	assert.Equal(t, e.Status, got.Status)
	assert.True(t, e.CreatedAtUTC.Equal(got.CreatedAtUTC))
}

func TestUnmarshal_UnknownStatusBecomesMissing(t *testing.T) {
	raw := `{"plotId":"x","filePath":"p","cacheFilePath":"","spaceAllocatedBytes":1,"merkleRoot":"","createdAtUtc":"","status":"Bogus"}`
	var e Entry
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	assert.Equal(t, StatusMissing, e.Status)
}
