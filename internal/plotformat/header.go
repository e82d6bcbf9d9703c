// Package plotformat implements the fixed-layout, bit-exact plot header
// (spec §4.2, §6.1): serialize, parse and validate. Corruption detection is
// the whole point of this package — a header that doesn't check out is
// fatal, never silently coerced.
package plotformat

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/spacetime-chain/post-miner/internal/postcore"
)

const (
	// HeaderSize is the exact on-disk size of a serialized header.
	HeaderSize = 121
	// checksumOffset is where the 89-byte checksummed prefix ends.
	checksumOffset = 89
	// CurrentVersion is the only version this codec parses.
	CurrentVersion = 1
	// LeafSize mirrors postcore.LeafSize; kept local so this package has no
	// surprise coupling beyond error kinds.
	LeafSize = postcore.LeafSize
)

// Magic is the 4-byte file signature "SPTP".
var Magic = [4]byte{'S', 'P', 'T', 'P'}

// Header is the parsed, in-memory form of the 121-byte plot header.
type Header struct {
	Version    uint8
	PlotSeed   [32]byte
	LeafCount  int64
	LeafSize   int32
	TreeHeight int64
	MerkleRoot [32]byte
	Checksum   [32]byte
}

// NewHeader builds a Header for a freshly created plot. TreeHeight is
// computed by the caller (the streaming Merkle engine knows it exactly);
// Checksum is computed by Serialize, not here.
func NewHeader(plotSeed [32]byte, leafCount int64, treeHeight int64, merkleRoot [32]byte) Header {
	return Header{
		Version:    CurrentVersion,
		PlotSeed:   plotSeed,
		LeafCount:  leafCount,
		LeafSize:   LeafSize,
		TreeHeight: treeHeight,
		MerkleRoot: merkleRoot,
	}
}

// Validate checks the invariants spec §3 requires of a Header independent of
// the checksum (leaf_count > 0, leaf_size > 0). Checksum/magic/version are
// verified only by Parse, since Serialize computes them fresh.
func (h Header) Validate() error {
	if h.LeafCount <= 0 {
		return postcore.InvalidArgument("leaf_count must be positive")
	}
	if h.LeafSize <= 0 {
		return postcore.InvalidArgument("leaf_size must be positive")
	}
	return nil
}

// Serialize encodes h into the exact 121-byte on-disk layout (spec §6.1),
// computing and filling in the checksum over the first 89 bytes.
func (h Header) Serialize() ([HeaderSize]byte, error) {
	var out [HeaderSize]byte
	if err := h.Validate(); err != nil {
		return out, err
	}

	copy(out[0:4], Magic[:])
	out[4] = h.Version
	copy(out[5:37], h.PlotSeed[:])
	binary.LittleEndian.PutUint64(out[37:45], uint64(h.LeafCount))
	binary.LittleEndian.PutUint32(out[45:49], uint32(h.LeafSize))
	binary.LittleEndian.PutUint64(out[49:57], uint64(h.TreeHeight))
	copy(out[57:89], h.MerkleRoot[:])

	sum := sha256.Sum256(out[0:checksumOffset])
	copy(out[89:121], sum[:])

	return out, nil
}

// Parse decodes and validates a 121-byte header. Any structural failure
// (wrong length, bad magic, unknown version, checksum mismatch) is a
// postcore.KindCorrupted error — by design there is no partial-trust path;
// a plot with a header that doesn't parse cleanly is corruption, full stop.
func Parse(data []byte) (Header, error) {
	var h Header
	if len(data) != HeaderSize {
		return h, postcore.WithKind(postcore.KindCorrupted, "header must be exactly 121 bytes", nil)
	}

	if !bytes.Equal(data[0:4], Magic[:]) {
		return h, postcore.WithKind(postcore.KindCorrupted, "bad magic", nil)
	}

	version := data[4]
	if version != CurrentVersion {
		return h, postcore.WithKind(postcore.KindCorrupted, "unsupported plot version", nil)
	}

	wantSum := sha256.Sum256(data[0:checksumOffset])
	if !bytes.Equal(data[89:121], wantSum[:]) {
		return h, postcore.WithKind(postcore.KindCorrupted, "checksum mismatch", nil)
	}

	copy(h.PlotSeed[:], data[5:37])
	h.Version = version
	h.LeafCount = int64(binary.LittleEndian.Uint64(data[37:45]))
	h.LeafSize = int32(binary.LittleEndian.Uint32(data[45:49]))
	h.TreeHeight = int64(binary.LittleEndian.Uint64(data[49:57]))
	copy(h.MerkleRoot[:], data[57:89])
	copy(h.Checksum[:], data[89:121])

	if h.LeafCount <= 0 {
		return Header{}, postcore.WithKind(postcore.KindCorrupted, "leaf_count must be positive", nil)
	}
	if h.LeafSize != LeafSize {
		return Header{}, postcore.WithKind(postcore.KindCorrupted, "leaf_size must be 32", nil)
	}

	return h, nil
}

// TreeHeightFor computes ceil(log2(leafCount)), with the spec's special
// case that a single leaf has height 0.
func TreeHeightFor(leafCount int64) int64 {
	if leafCount <= 1 {
		return 0
	}
	var height int64
	// n-1 so exact powers of two (e.g. 8 leaves -> height 3) aren't rounded up.
	n := leafCount - 1
	for n > 0 {
		height++
		n >>= 1
	}
	return height
}
