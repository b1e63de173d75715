// Package mutexset maps mutex addresses to dense graph node IDs.
//
// The lock-order graph works over a small fixed ID space, while the
// program identifies its mutexes by address. This package owns the
// translation: each tracked address gets a dense ID in [0, capacity) on
// first use, and destroyed mutexes return their ID to a free list so a
// long-running program can churn through many short-lived locks without
// exhausting the space.
//
// Capacity is fixed. When it runs out, tracking of new mutexes degrades
// instead of aborting: Acquire reports failure and counts the drop, and
// the detector simply stops ordering-checking the locks it cannot seat.
// Aborting the monitored program over detector bookkeeping would be worse
// than missing one lock.
//
// The set has no locking of its own; the detector's lock covers it
// together with the graph.
package mutexset

// Set is the address-to-ID table.
type Set struct {
	capacity int
	ids      map[uintptr]int
	addrs    []uintptr // node ID -> address, 0 when the ID is free
	free     []int     // recycled IDs, most recently freed last
	next     int       // lowest never-used ID
	dropped  uint64
}

// New creates an empty table for up to capacity tracked mutexes.
func New(capacity int) *Set {
	if capacity <= 0 {
		panic("mutexset: capacity must be positive")
	}
	return &Set{
		capacity: capacity,
		ids:      make(map[uintptr]int, capacity),
		addrs:    make([]uintptr, capacity),
	}
}

// Capacity returns the fixed ID space size.
func (s *Set) Capacity() int { return s.capacity }

// Len returns the number of currently tracked mutexes.
func (s *Set) Len() int { return len(s.ids) }

// Acquire returns the node ID for addr, allocating one on first use.
// ok is false when the ID space is exhausted; the drop is counted and the
// caller is expected to skip tracking for this mutex.
func (s *Set) Acquire(addr uintptr) (id int, ok bool) {
	if id, ok := s.ids[addr]; ok {
		return id, true
	}
	switch {
	case len(s.free) > 0:
		id = s.free[len(s.free)-1]
		s.free = s.free[:len(s.free)-1]
	case s.next < s.capacity:
		id = s.next
		s.next++
	default:
		s.dropped++
		return 0, false
	}
	s.ids[addr] = id
	s.addrs[id] = addr
	return id, true
}

// Lookup returns the node ID for addr without allocating.
func (s *Set) Lookup(addr uintptr) (int, bool) {
	id, ok := s.ids[addr]
	return id, ok
}

// Release frees the ID bound to addr and returns it for graph cleanup.
// Releasing an untracked address is a no-op.
func (s *Set) Release(addr uintptr) (int, bool) {
	id, ok := s.ids[addr]
	if !ok {
		return 0, false
	}
	delete(s.ids, addr)
	s.addrs[id] = 0
	s.free = append(s.free, id)
	return id, true
}

// Addr returns the address currently bound to a node ID, or 0 when the ID
// is free. Used when turning a graph path back into a report.
func (s *Set) Addr(id int) uintptr {
	if id < 0 || id >= s.capacity {
		return 0
	}
	return s.addrs[id]
}

// Dropped returns how many mutexes could not be tracked because the ID
// space was full.
func (s *Set) Dropped() uint64 { return s.dropped }

// Reset discards all bindings and counters. Test helper.
func (s *Set) Reset() {
	s.ids = make(map[uintptr]int, s.capacity)
	for i := range s.addrs {
		s.addrs[i] = 0
	}
	s.free = s.free[:0]
	s.next = 0
	s.dropped = 0
}
