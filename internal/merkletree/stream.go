// Package merkletree implements the bounded-memory streaming Merkle engine
// (spec §4.3): build a root from a lazy leaf sequence in O(height) working
// memory, generate audit proofs along the way, and verify them without
// touching the plot that produced them.
package merkletree

import (
	"crypto/sha256"

	"github.com/spacetime-chain/post-miner/internal/postcore"
)

// combine is always left-first: parent = SHA256(left || right).
func combine(left, right postcore.Leaf) postcore.Leaf {
	h := sha256.New()
	h.Write(left[:])
	h.Write(right[:])
	var out postcore.Leaf
	h.Sum(out[:0])
	return out
}

// CombineEvent describes one pairwise combination (or self-duplication, when
// Right == Left) performed by the builder. Level is the level of the two
// operands (the result lands at Level+1). LeftStart is the leaf index at
// which the left operand's subtree begins; Span is the number of real leaves
// the left operand spans (always a power of two). A self-duplication event
// has the same Span for its phantom right operand, but that range never
// contains a real leaf index.
type CombineEvent struct {
	Level     int
	Left      postcore.Leaf
	Right     postcore.Leaf
	LeftStart int64
	Span      int64
}

// Observer is notified of every CombineEvent as the build progresses, in the
// order they occur (which is always left-to-right within a level). It is
// used both for proof capture and for cache recording; nil is a valid,
// no-op observer.
type Observer func(CombineEvent)

// Builder accumulates leaves into pending per-level hashes, using at most
// height+1 slots regardless of how many leaves are fed. It implements the
// streaming algorithm of spec §4.3: combine left-first while a level already
// holds a pending hash; on Finish, collapse any leftovers by
// self-duplicating upward until a single hash remains.
type Builder struct {
	pending      []*postcore.Leaf
	pendingStart []int64
	leavesSeen   int64
	observer     Observer
	finished     bool
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetObserver installs a combine-event observer. Must be called before
// feeding any leaves.
func (b *Builder) SetObserver(obs Observer) {
	b.observer = obs
}

func (b *Builder) emit(level int, left, right postcore.Leaf, leftStart, span int64) {
	if b.observer != nil {
		b.observer(CombineEvent{Level: level, Left: left, Right: right, LeftStart: leftStart, Span: span})
	}
}

func (b *Builder) ensureLevel(level int) {
	for level >= len(b.pending) {
		b.pending = append(b.pending, nil)
		b.pendingStart = append(b.pendingStart, 0)
	}
}

// Feed absorbs the next leaf in nonce-ascending order. Leaves must be fed in
// strict sequence; the builder has no notion of out-of-order insertion.
func (b *Builder) Feed(l postcore.Leaf) {
	cur := l
	curStart := b.leavesSeen
	level := 0
	for {
		b.ensureLevel(level)
		if b.pending[level] == nil {
			break
		}
		left := *b.pending[level]
		leftStart := b.pendingStart[level]
		span := int64(1) << uint(level)
		parent := combine(left, cur)
		b.emit(level, left, cur, leftStart, span)
		b.pending[level] = nil
		cur = parent
		curStart = leftStart
		level++
	}
	b.ensureLevel(level)
	b.pending[level] = &cur
	b.pendingStart[level] = curStart
	b.leavesSeen++
}

// Finish collapses any leftover pending hashes by self-duplicating upward
// until a single hash remains, and returns (root, height). Calling Finish on
// a Builder that has never been fed a leaf is a programmer error.
func (b *Builder) Finish() (postcore.Leaf, int64, error) {
	if b.finished {
		return postcore.Leaf{}, 0, postcore.InvalidArgument("builder already finished")
	}
	b.finished = true
	if b.leavesSeen == 0 {
		return postcore.Leaf{}, 0, postcore.InvalidArgument("cannot finish an empty sequence")
	}

	for {
		lowest := -1
		for lvl, p := range b.pending {
			if p != nil {
				lowest = lvl
				break
			}
		}
		// lowest is always found: leavesSeen > 0 guarantees at least one
		// pending slot is occupied at all times.
		count := 0
		for _, p := range b.pending {
			if p != nil {
				count++
			}
		}
		if count <= 1 {
			root := *b.pending[lowest]
			return root, int64(lowest), nil
		}

		cur := *b.pending[lowest]
		curStart := b.pendingStart[lowest]
		span := int64(1) << uint(lowest)
		dup := combine(cur, cur)
		b.emit(lowest, cur, cur, curStart, span)
		b.pending[lowest] = nil
		cur = dup
		level := lowest + 1
		span <<= 1

		for {
			b.ensureLevel(level)
			if b.pending[level] == nil {
				break
			}
			left := *b.pending[level]
			leftStart := b.pendingStart[level]
			parent := combine(left, cur)
			b.emit(level, left, cur, leftStart, span)
			b.pending[level] = nil
			cur = parent
			curStart = leftStart
			level++
			span <<= 1
		}
		b.ensureLevel(level)
		b.pending[level] = &cur
		b.pendingStart[level] = curStart
	}
}

// BuildRoot is a convenience wrapper that feeds every leaf from next in
// order and returns the final root and height. next must return
// (leaf, true, nil) for each element and (zero, false, nil) when exhausted;
// a non-nil error aborts the build and is returned unchanged (typically
// postcore.ErrCancelled from a cooperative cancellation check inside next).
func BuildRoot(next func() (postcore.Leaf, bool, error)) (postcore.Leaf, int64, error) {
	b := NewBuilder()
	for {
		l, ok, err := next()
		if err != nil {
			return postcore.Leaf{}, 0, err
		}
		if !ok {
			break
		}
		b.Feed(l)
	}
	return b.Finish()
}
