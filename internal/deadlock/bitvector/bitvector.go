// Package bitvector implements fixed-capacity bit sets for the lock-order
// graph.
//
// The deadlock detector represents the out-edges of every graph node as a
// bit set over the node ID space. All operations the graph needs are
// collected in the BitVector interface, so the adjacency representation is
// a construction-time choice:
//
//   - Basic: flat word-packed vector, best for small capacities
//   - TwoLevel: summary level skips empty word groups, best for sparse
//     vectors at larger capacities
//   - Roaring: compressed bitmap backend for very large, very sparse
//     configurations
//
// Capacity is fixed when a vector is created and never grows. All
// implementations are plain value structures with no internal locking; the
// detector serializes access with its own coarse lock.
//
// Index range is a hard precondition. An index outside [0, Size()) is a
// caller bug inside instrumentation code, and masking it could hide a more
// serious corruption in the program under observation, so every
// implementation panics immediately instead of returning an error.
package bitvector

import "fmt"

// BitVector is the capability set the lock-order graph is generic over.
//
// The mutating union, difference and iteration operations accept any
// BitVector implementation; mixing implementations works but is slower than
// operating on two vectors of the same concrete type.
type BitVector interface {
	// Size returns the fixed capacity in bits.
	Size() int

	// Clear removes every bit.
	Clear()

	// SetBit sets bit i and reports whether it was newly set.
	SetBit(i int) bool

	// ClearBit clears bit i and reports whether it was previously set.
	ClearBit(i int) bool

	// GetBit reports whether bit i is set.
	GetBit(i int) bool

	// Empty reports whether no bit is set.
	Empty() bool

	// SetUnion adds every bit of other and reports whether any bit was
	// newly added. The return value is what lets the graph's breadth-first
	// search detect its fixed point.
	SetUnion(other BitVector) bool

	// Intersects reports whether any bit is set in both vectors.
	Intersects(other BitVector) bool

	// Difference removes every bit that is set in other.
	Difference(other BitVector)

	// ForEach calls fn for every set bit in ascending order until fn
	// returns false. Iteration is restartable: ForEach may be called any
	// number of times and always starts from the lowest set bit.
	ForEach(fn func(i int) bool)
}

// checkIndex panics if i is outside [0, size).
//
// Fail-fast by policy: an out-of-range index inside sanitizer runtime code
// is never recoverable.
func checkIndex(i, size int) {
	if i < 0 || i >= size {
		panic(fmt.Sprintf("bitvector: index %d out of range [0, %d)", i, size))
	}
}

// checkSameSize panics if two vectors that are combined have different
// capacities. Union, intersection and difference are only defined over the
// same node ID space.
func checkSameSize(a, b BitVector) {
	if a.Size() != b.Size() {
		panic(fmt.Sprintf("bitvector: size mismatch %d != %d", a.Size(), b.Size()))
	}
}
