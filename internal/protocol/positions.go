// CLAUDE:SUMMARY Position store: two append-only stake sequences per claim behind a single bidirectional index space
package protocol

import "math"

// PositionIndex addresses a position in a claim. Agree positions count up from 0,
// disagree positions count down from MaxUint64.
type PositionIndex uint64

const indexMidpoint PositionIndex = 1 << 63

// Side reports which half of the keyspace the index lies in.
func (i PositionIndex) Side() Side {
	if i < indexMidpoint {
		return SideAgree
	}
	return SideDisagree
}

// offset is the index's distance from its side's origin.
func (i PositionIndex) offset() uint64 {
	if i < indexMidpoint {
		return uint64(i)
	}
	return math.MaxUint64 - uint64(i)
}

// IndexAt returns the index of the offset-th position on side.
func IndexAt(side Side, offset uint64) PositionIndex {
	if side == SideAgree {
		return PositionIndex(offset)
	}
	return PositionIndex(math.MaxUint64 - offset)
}

// Position is a single stake action.
type Position struct {
	ClaimID ClaimID       `json:"claim_id"`
	Index   PositionIndex `json:"index"`
	Side    Side          `json:"side"`
	Owner   Address       `json:"owner"`
	Amount  Amount        `json:"amount"`
}

type stake struct {
	owner  Address
	amount Amount
}

// positionBook holds both sides of a claim. Entries are never removed or reordered.
type positionBook struct {
	agree    []stake
	disagree []stake
}

func (b *positionBook) side(s Side) []stake {
	if s == SideAgree {
		return b.agree
	}
	return b.disagree
}

func (b *positionBook) count(s Side) uint64 { return uint64(len(b.side(s))) }

func (b *positionBook) total() int { return len(b.agree) + len(b.disagree) }

// append records a stake and returns its index.
func (b *positionBook) append(s Side, owner Address, amount Amount) PositionIndex {
	if s == SideAgree {
		b.agree = append(b.agree, stake{owner: owner, amount: amount})
		return IndexAt(SideAgree, uint64(len(b.agree)-1))
	}
	b.disagree = append(b.disagree, stake{owner: owner, amount: amount})
	return IndexAt(SideDisagree, uint64(len(b.disagree)-1))
}

func (b *positionBook) at(i PositionIndex) (stake, bool) {
	entries := b.side(i.Side())
	off := i.offset()
	if off >= uint64(len(entries)) {
		return stake{}, false
	}
	return entries[off], true
}

// ordinal maps an index to its settlement order: agree side first, then disagree.
func (b *positionBook) ordinal(n int) PositionIndex {
	if n < len(b.agree) {
		return IndexAt(SideAgree, uint64(n))
	}
	return IndexAt(SideDisagree, uint64(n-len(b.agree)))
}

// window normalizes an inclusive range to (side, first offset, slot count).
// Either end may be given first; both ends must sit on the same side.
func window(from, to PositionIndex) (Side, uint64, uint64, error) {
	if from.Side() != to.Side() {
		return 0, 0, 0, fail(KindInvalidMapping, "range", "indices %d and %d lie on different sides", from, to)
	}
	lo, hi := from.offset(), to.offset()
	if lo > hi {
		lo, hi = hi, lo
	}
	n := hi - lo + 1
	if n > MaxRangeWindow {
		return 0, 0, 0, fail(KindInvalidMapping, "range", "window of %d slots exceeds %d", n, MaxRangeWindow)
	}
	return from.Side(), lo, n, nil
}

// readRange lists owners for a window, with the zero address for unfilled slots.
func (b *positionBook) readRange(from, to PositionIndex) ([]Address, error) {
	side, lo, n, err := window(from, to)
	if err != nil {
		return nil, err
	}
	entries := b.side(side)
	out := make([]Address, n)
	for k := uint64(0); k < n; k++ {
		if off := lo + k; off < uint64(len(entries)) {
			out[k] = entries[off].owner
		}
	}
	return out, nil
}
