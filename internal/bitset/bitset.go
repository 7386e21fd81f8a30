package bitset

import (
	"math/bits"
)

const wordBits = 64

// BitSet is a fixed-size bitset. Its size is set at construction and never grows.
type BitSet struct {
	words []uint64
	size  uint64
	count uint64
}

// New creates a new BitSet with the given size (in bits). All bits start cleared.
func New(size uint64) *BitSet {
	return &BitSet{
		words: make([]uint64, (size+wordBits-1)/wordBits),
		size:  size,
	}
}

// Len returns the size of the bitset in bits.
func (b *BitSet) Len() uint64 {
	return b.size
}

// Count returns the number of set bits.
func (b *BitSet) Count() uint64 {
	return b.count
}

// Set sets the bit at the given index. Out-of-range indices are ignored.
func (b *BitSet) Set(i uint64) {
	if i >= b.size {
		return
	}
	w, mask := i/wordBits, uint64(1)<<(i%wordBits)
	if b.words[w]&mask == 0 {
		b.words[w] |= mask
		b.count++
	}
}

// Unset clears the bit at the given index. Out-of-range indices are ignored.
func (b *BitSet) Unset(i uint64) {
	if i >= b.size {
		return
	}
	w, mask := i/wordBits, uint64(1)<<(i%wordBits)
	if b.words[w]&mask != 0 {
		b.words[w] &^= mask
		b.count--
	}
}

// Test returns true if the bit at the given index is set.
func (b *BitSet) Test(i uint64) bool {
	if i >= b.size {
		return false
	}
	return b.words[i/wordBits]&(uint64(1)<<(i%wordBits)) != 0
}

// SetAll sets every bit in [0, Len()).
func (b *BitSet) SetAll() {
	for i := range b.words {
		b.words[i] = ^uint64(0)
	}
	if tail := b.size % wordBits; tail != 0 {
		b.words[len(b.words)-1] = uint64(1)<<tail - 1
	}
	b.count = b.size
}

// ClearAll clears every bit.
func (b *BitSet) ClearAll() {
	clear(b.words)
	b.count = 0
}

// NextSetBit returns the index of the next set bit starting from i (inclusive).
// Returns -1 if no bit is set at or after i.
func (b *BitSet) NextSetBit(i uint64) int64 {
	if i >= b.size {
		return -1
	}

	w := i / wordBits
	// Mask out bits before i in the first word
	val := b.words[w] &^ (uint64(1)<<(i%wordBits) - 1)
	for {
		if val != 0 {
			return int64(w*wordBits + uint64(bits.TrailingZeros64(val)))
		}
		w++
		if w >= uint64(len(b.words)) {
			return -1
		}
		val = b.words[w]
	}
}
