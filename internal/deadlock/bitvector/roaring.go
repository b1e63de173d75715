package bitvector

import "github.com/RoaringBitmap/roaring/v2"

// Roaring adapts a compressed roaring bitmap to the BitVector contract.
//
// Roaring containers allocate and reshape themselves as bits come and go,
// so this backend gives up the strict no-allocation guarantee of Basic and
// TwoLevel in exchange for compact storage when the configured capacity is
// large and rows stay very sparse. It is a configuration-time opt-in; the
// default detector configuration does not use it.
//
// The fixed-capacity contract is enforced on top of the inherently dynamic
// bitmap: indexes are range-checked exactly like the other backends.
type Roaring struct {
	rb   *roaring.Bitmap
	size int
}

// NewRoaring creates an empty roaring-backed vector with the given
// capacity.
func NewRoaring(size int) *Roaring {
	if size <= 0 {
		panic("bitvector: capacity must be positive")
	}
	return &Roaring{
		rb:   roaring.New(),
		size: size,
	}
}

// Size returns the fixed capacity in bits.
func (r *Roaring) Size() int { return r.size }

// Clear removes every bit.
func (r *Roaring) Clear() {
	r.rb.Clear()
}

// SetBit sets bit i and reports whether it was newly set.
func (r *Roaring) SetBit(i int) bool {
	checkIndex(i, r.size)
	return r.rb.CheckedAdd(uint32(i))
}

// ClearBit clears bit i and reports whether it was previously set.
func (r *Roaring) ClearBit(i int) bool {
	checkIndex(i, r.size)
	return r.rb.CheckedRemove(uint32(i))
}

// GetBit reports whether bit i is set.
func (r *Roaring) GetBit(i int) bool {
	checkIndex(i, r.size)
	return r.rb.Contains(uint32(i))
}

// Empty reports whether no bit is set.
func (r *Roaring) Empty() bool {
	return r.rb.IsEmpty()
}

// SetUnion ORs other into r and reports whether any new bit was added.
func (r *Roaring) SetUnion(other BitVector) bool {
	checkSameSize(r, other)
	if o, ok := other.(*Roaring); ok {
		before := r.rb.GetCardinality()
		r.rb.Or(o.rb)
		return r.rb.GetCardinality() != before
	}
	return genericSetUnion(r, other)
}

// Intersects reports whether r and other share any set bit.
func (r *Roaring) Intersects(other BitVector) bool {
	checkSameSize(r, other)
	if o, ok := other.(*Roaring); ok {
		return r.rb.Intersects(o.rb)
	}
	return genericIntersects(r, other)
}

// Difference removes every bit of other from r.
func (r *Roaring) Difference(other BitVector) {
	checkSameSize(r, other)
	if o, ok := other.(*Roaring); ok {
		r.rb.AndNot(o.rb)
		return
	}
	genericDifference(r, other)
}

// ForEach visits set bits in ascending order until fn returns false.
// Roaring iterators are already ordered.
func (r *Roaring) ForEach(fn func(i int) bool) {
	it := r.rb.Iterator()
	for it.HasNext() {
		if !fn(int(it.Next())) {
			return
		}
	}
}
