package bitvector

import "math/bits"

const wordBits = 64

// Basic is a flat word-packed bit vector.
//
// Every operation touches at most Size()/64 words, so for the small node
// spaces the detector runs with (tens to low hundreds of mutexes) this is
// the fastest representation: no summary bookkeeping, one cache line for
// capacities up to 512.
//
// The zero value is not usable; create vectors with NewBasic.
type Basic struct {
	words []uint64
	size  int
}

// NewBasic creates an empty vector with the given fixed capacity.
func NewBasic(size int) *Basic {
	if size <= 0 {
		panic("bitvector: capacity must be positive")
	}
	return &Basic{
		words: make([]uint64, (size+wordBits-1)/wordBits),
		size:  size,
	}
}

// Size returns the fixed capacity in bits.
func (b *Basic) Size() int { return b.size }

// Clear removes every bit.
func (b *Basic) Clear() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// SetBit sets bit i and reports whether it was newly set.
func (b *Basic) SetBit(i int) bool {
	checkIndex(i, b.size)
	mask := uint64(1) << (uint(i) % wordBits)
	w := &b.words[i/wordBits]
	old := *w
	*w = old | mask
	return old&mask == 0
}

// ClearBit clears bit i and reports whether it was previously set.
func (b *Basic) ClearBit(i int) bool {
	checkIndex(i, b.size)
	mask := uint64(1) << (uint(i) % wordBits)
	w := &b.words[i/wordBits]
	old := *w
	*w = old &^ mask
	return old&mask != 0
}

// GetBit reports whether bit i is set.
func (b *Basic) GetBit(i int) bool {
	checkIndex(i, b.size)
	return b.words[i/wordBits]&(uint64(1)<<(uint(i)%wordBits)) != 0
}

// Empty reports whether no bit is set.
func (b *Basic) Empty() bool {
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// SetUnion ORs other into b and reports whether any new bit was added.
func (b *Basic) SetUnion(other BitVector) bool {
	checkSameSize(b, other)
	if o, ok := other.(*Basic); ok {
		changed := false
		for i, w := range o.words {
			if w&^b.words[i] != 0 {
				changed = true
				b.words[i] |= w
			}
		}
		return changed
	}
	return genericSetUnion(b, other)
}

// Intersects reports whether b and other share any set bit.
func (b *Basic) Intersects(other BitVector) bool {
	checkSameSize(b, other)
	if o, ok := other.(*Basic); ok {
		for i, w := range o.words {
			if b.words[i]&w != 0 {
				return true
			}
		}
		return false
	}
	return genericIntersects(b, other)
}

// Difference removes every bit of other from b.
func (b *Basic) Difference(other BitVector) {
	checkSameSize(b, other)
	if o, ok := other.(*Basic); ok {
		for i, w := range o.words {
			b.words[i] &^= w
		}
		return
	}
	genericDifference(b, other)
}

// ForEach visits set bits in ascending order until fn returns false.
//
// Uses TrailingZeros64 to jump between set bits, so iteration cost is
// proportional to the number of set bits plus the number of words.
func (b *Basic) ForEach(fn func(i int) bool) {
	for wi, w := range b.words {
		base := wi * wordBits
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			if !fn(base + bit) {
				return
			}
			w &^= 1 << uint(bit)
		}
	}
}

// genericSetUnion is the cross-implementation fallback for SetUnion.
func genericSetUnion(dst, src BitVector) bool {
	changed := false
	src.ForEach(func(i int) bool {
		if dst.SetBit(i) {
			changed = true
		}
		return true
	})
	return changed
}

// genericIntersects is the cross-implementation fallback for Intersects.
func genericIntersects(a, b BitVector) bool {
	hit := false
	b.ForEach(func(i int) bool {
		if a.GetBit(i) {
			hit = true
			return false
		}
		return true
	})
	return hit
}

// genericDifference is the cross-implementation fallback for Difference.
func genericDifference(dst, src BitVector) {
	src.ForEach(func(i int) bool {
		dst.ClearBit(i)
		return true
	})
}
