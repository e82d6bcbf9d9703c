// Package leaf implements the pure, deterministic leaf-hash function at the
// bottom of the mining core (spec §4.1): leaf(pubkey, seed, nonce) =
// SHA256(pubkey || seed || nonce_le64). Everything here is referentially
// transparent — no I/O, no global state, no clock.
package leaf

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/spacetime-chain/post-miner/internal/postcore"
)

// KeySize is the fixed width of the public key and seed inputs.
const KeySize = 32

// Generate computes leaf(pubkey, seed, nonce). pubkey and seed must each be
// exactly 32 bytes and nonce must be non-negative; violations are
// postcore.KindInvalidArgument, a programmer error surfaced immediately
// rather than folded into the mining control flow.
func Generate(pubkey, seed []byte, nonce int64) (postcore.Leaf, error) {
	var zero postcore.Leaf
	if len(pubkey) != KeySize {
		return zero, postcore.InvalidArgument("pubkey must be exactly 32 bytes")
	}
	if len(seed) != KeySize {
		return zero, postcore.InvalidArgument("seed must be exactly 32 bytes")
	}
	if nonce < 0 {
		return zero, postcore.InvalidArgument("nonce must be non-negative")
	}
	return generateUnchecked(pubkey, seed, nonce), nil
}

// generateUnchecked assumes its arguments have already been validated. The
// nonce is serialized little-endian — this is a wire contract, not an
// implementation detail, so two honest implementations on different
// platforms must produce byte-identical leaves.
func generateUnchecked(pubkey, seed []byte, nonce int64) postcore.Leaf {
	h := sha256.New()
	h.Write(pubkey)
	h.Write(seed)
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], uint64(nonce))
	h.Write(nonceBuf[:])
	var out postcore.Leaf
	h.Sum(out[:0])
	return out
}

// ProgressFunc is called after each leaf is produced, with the nonce just
// generated. It is optional and may be nil.
type ProgressFunc func(nonce int64)

// Sequence is a finite, non-restartable, pull-based iterator over leaves
// generated in strict nonce-ascending order starting at startNonce. It
// checks ctx between leaves so long scans can be cancelled cooperatively
// (spec §5's "yield to the scheduler at least every 1024 leaves" is the
// caller's job when consuming Next in a tight loop; Sequence itself checks
// cancellation on every call since leaf hashing is cheap).
type Sequence struct {
	pubkey, seed []byte
	next         int64
	remaining    int64
	onProgress   ProgressFunc
	done         bool
}

// NewSequence builds a Sequence yielding count leaves starting at startNonce.
// pubkey and seed are retained by reference (callers must not mutate them
// while the sequence is in use) and validated once, up front.
func NewSequence(pubkey, seed []byte, startNonce, count int64) (*Sequence, error) {
	if len(pubkey) != KeySize {
		return nil, postcore.InvalidArgument("pubkey must be exactly 32 bytes")
	}
	if len(seed) != KeySize {
		return nil, postcore.InvalidArgument("seed must be exactly 32 bytes")
	}
	if startNonce < 0 {
		return nil, postcore.InvalidArgument("startNonce must be non-negative")
	}
	if count < 0 {
		return nil, postcore.InvalidArgument("count must be non-negative")
	}
	return &Sequence{pubkey: pubkey, seed: seed, next: startNonce, remaining: count}, nil
}

// OnProgress installs a per-leaf progress callback. Not safe to call
// concurrently with Next.
func (s *Sequence) OnProgress(fn ProgressFunc) { s.onProgress = fn }

// Next produces the next leaf, or (_, false, nil) once the sequence is
// exhausted. ctx is checked before generating, so a cancelled context stops
// the sequence with postcore.ErrCancelled rather than silently truncating.
func (s *Sequence) Next(ctxDone <-chan struct{}) (postcore.Leaf, bool, error) {
	if s.done || s.remaining == 0 {
		return postcore.Leaf{}, false, nil
	}
	select {
	case <-ctxDone:
		s.done = true
		return postcore.Leaf{}, false, postcore.ErrCancelled
	default:
	}
	l := generateUnchecked(s.pubkey, s.seed, s.next)
	if s.onProgress != nil {
		s.onProgress(s.next)
	}
	s.next++
	s.remaining--
	if s.remaining == 0 {
		s.done = true
	}
	return l, true, nil
}

// Remaining reports how many leaves are left to generate.
func (s *Sequence) Remaining() int64 { return s.remaining }
