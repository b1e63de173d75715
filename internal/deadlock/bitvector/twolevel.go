package bitvector

// twoLevelGroupBits is the capacity of one inner group. One machine word
// keeps the inner operations single-instruction while the summary level
// lets bulk operations skip 64 bits at a time.
const twoLevelGroupBits = 64

// TwoLevel is a bit vector with a summary level.
//
// The ID space is partitioned into groups of 64 bits. A summary vector
// holds one bit per group recording whether the group is non-empty, so
// union, intersection, difference and iteration only visit groups that
// actually contain bits. For the sparse adjacency rows of a mostly-idle
// lock-order graph this makes bulk operations proportional to the number
// of populated groups instead of the capacity.
//
// The trade is a little bookkeeping on every mutation: setting a bit may
// newly mark its group, and clearing a bit must re-check the group for
// emptiness before the summary bit can be dropped. A summary bit is never
// cleared on the strength of the single removed bit alone.
type TwoLevel struct {
	size    int
	summary *Basic
	groups  []*Basic
}

// NewTwoLevel creates an empty two-level vector with the given capacity.
func NewTwoLevel(size int) *TwoLevel {
	if size <= 0 {
		panic("bitvector: capacity must be positive")
	}
	n := (size + twoLevelGroupBits - 1) / twoLevelGroupBits
	groups := make([]*Basic, n)
	for g := range groups {
		inner := twoLevelGroupBits
		if g == n-1 {
			inner = size - g*twoLevelGroupBits
		}
		groups[g] = NewBasic(inner)
	}
	return &TwoLevel{
		size:    size,
		summary: NewBasic(n),
		groups:  groups,
	}
}

// Size returns the fixed capacity in bits.
func (t *TwoLevel) Size() int { return t.size }

// Clear removes every bit. Only populated groups are touched.
func (t *TwoLevel) Clear() {
	t.summary.ForEach(func(g int) bool {
		t.groups[g].Clear()
		return true
	})
	t.summary.Clear()
}

// SetBit sets bit i and reports whether it was newly set.
func (t *TwoLevel) SetBit(i int) bool {
	checkIndex(i, t.size)
	g := i / twoLevelGroupBits
	fresh := t.groups[g].SetBit(i % twoLevelGroupBits)
	if fresh {
		t.summary.SetBit(g)
	}
	return fresh
}

// ClearBit clears bit i and reports whether it was previously set.
//
// When the removed bit was the group's last one, the group is re-checked
// for emptiness before the summary bit is cleared.
func (t *TwoLevel) ClearBit(i int) bool {
	checkIndex(i, t.size)
	g := i / twoLevelGroupBits
	was := t.groups[g].ClearBit(i % twoLevelGroupBits)
	if was && t.groups[g].Empty() {
		t.summary.ClearBit(g)
	}
	return was
}

// GetBit reports whether bit i is set. Empty groups answer from the
// summary alone.
func (t *TwoLevel) GetBit(i int) bool {
	checkIndex(i, t.size)
	g := i / twoLevelGroupBits
	if !t.summary.GetBit(g) {
		return false
	}
	return t.groups[g].GetBit(i % twoLevelGroupBits)
}

// Empty reports whether no bit is set.
func (t *TwoLevel) Empty() bool {
	return t.summary.Empty()
}

// SetUnion ORs other into t and reports whether any new bit was added.
// Only other's populated groups are visited.
func (t *TwoLevel) SetUnion(other BitVector) bool {
	checkSameSize(t, other)
	o, ok := other.(*TwoLevel)
	if !ok {
		return genericSetUnion(t, other)
	}
	changed := false
	o.summary.ForEach(func(g int) bool {
		if t.groups[g].SetUnion(o.groups[g]) {
			changed = true
			t.summary.SetBit(g)
		}
		return true
	})
	return changed
}

// Intersects reports whether t and other share any set bit. Only groups
// populated on both sides are compared.
func (t *TwoLevel) Intersects(other BitVector) bool {
	checkSameSize(t, other)
	o, ok := other.(*TwoLevel)
	if !ok {
		return genericIntersects(t, other)
	}
	hit := false
	o.summary.ForEach(func(g int) bool {
		if t.summary.GetBit(g) && t.groups[g].Intersects(o.groups[g]) {
			hit = true
			return false
		}
		return true
	})
	return hit
}

// Difference removes every bit of other from t, re-deriving summary bits
// for groups that become empty.
func (t *TwoLevel) Difference(other BitVector) {
	checkSameSize(t, other)
	o, ok := other.(*TwoLevel)
	if !ok {
		genericDifferenceTwoLevel(t, other)
		return
	}
	o.summary.ForEach(func(g int) bool {
		if t.summary.GetBit(g) {
			t.groups[g].Difference(o.groups[g])
			if t.groups[g].Empty() {
				t.summary.ClearBit(g)
			}
		}
		return true
	})
}

// ForEach visits set bits in ascending order until fn returns false,
// skipping empty groups via the summary.
func (t *TwoLevel) ForEach(fn func(i int) bool) {
	t.summary.ForEach(func(g int) bool {
		base := g * twoLevelGroupBits
		stop := false
		t.groups[g].ForEach(func(i int) bool {
			if !fn(base + i) {
				stop = true
				return false
			}
			return true
		})
		return !stop
	})
}

// genericDifferenceTwoLevel is the cross-implementation Difference
// fallback; routed through ClearBit so summary bits stay consistent.
func genericDifferenceTwoLevel(dst *TwoLevel, src BitVector) {
	src.ForEach(func(i int) bool {
		dst.ClearBit(i)
		return true
	})
}
