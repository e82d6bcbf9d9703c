package postcore

// LeafSize is the fixed width of every leaf, challenge, score and Merkle
// node hash in the mining core: a SHA-256 digest.
const LeafSize = 32

// Leaf is a 32-byte content-addressed hash at a position in a plot.
type Leaf [LeafSize]byte

// IsZero reports whether l is the zero value.
func (l Leaf) IsZero() bool {
	return l == Leaf{}
}

// Bytes returns l as a slice. The value receiver is a copy of the caller's
// Leaf, so the slice is backed by that copy and writing to it does not
// change the caller's Leaf.
func (l Leaf) Bytes() []byte { return l[:] }

// LeafFromBytes copies b (which must be exactly LeafSize bytes) into a Leaf.
func LeafFromBytes(b []byte) (Leaf, error) {
	var l Leaf
	if len(b) != LeafSize {
		return l, InvalidArgument("leaf must be exactly 32 bytes")
	}
	copy(l[:], b)
	return l, nil
}

// Progress is a sample in [0, 100] reported on caller-supplied progress
// channels (spec §6.4). It is a plain float so callers can render a bar
// without depending on any core package.
type Progress = float64
