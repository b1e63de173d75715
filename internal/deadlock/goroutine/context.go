// Package goroutine tracks per-goroutine lock acquisition state.
//
// Every goroutine that takes tracked mutexes gets a Context holding the
// set of locks it currently owns: a bit vector over graph node IDs for
// the reachability queries, and a parallel ordered list carrying the
// acquisition sites for reporting. The two views are kept in sync by this
// package; the detector only pushes and removes.
package goroutine

import "github.com/kolkov/deadlockdetector/internal/deadlock/bitvector"

// MaxStackFrames is how many program counters are kept per acquisition
// site. Eight frames show the caller chain that matters in practice while
// keeping a held-lock record at one cache line.
const MaxStackFrames = 8

// HeldLock is one currently-held mutex: its graph node ID plus the call
// stack of the acquisition, for the eventual report.
type HeldLock struct {
	ID        int
	Stack     [MaxStackFrames]uintptr
	NumFrames int
}

// PCs returns the captured acquisition stack as a slice.
func (h *HeldLock) PCs() []uintptr {
	return h.Stack[:h.NumFrames]
}

// Context is the lock state of a single goroutine.
//
// Not safe for concurrent use; a Context is only ever touched by its own
// goroutine under the detector lock.
type Context struct {
	gid  int64
	held []HeldLock
	set  bitvector.BitVector
}

// NewContext creates an empty context. The set's capacity must match the
// detector's graph capacity; the detector supplies it from its bit vector
// factory.
func NewContext(gid int64, set bitvector.BitVector) *Context {
	return &Context{gid: gid, set: set}
}

// GID returns the owning goroutine's ID.
func (c *Context) GID() int64 { return c.gid }

// Push records a newly acquired lock.
func (c *Context) Push(hl HeldLock) {
	c.held = append(c.held, hl)
	c.set.SetBit(hl.ID)
}

// Remove drops the most recent held entry for the given node ID and
// reports whether one existed. Unlock order is not required to mirror
// lock order, so this searches rather than pops.
//
// With recursive acquisition several entries can carry the same ID; the
// membership bit is only cleared once the last one is gone.
func (c *Context) Remove(id int) bool {
	for i := len(c.held) - 1; i >= 0; i-- {
		if c.held[i].ID == id {
			c.held = append(c.held[:i], c.held[i+1:]...)
			if !c.holdsEntry(id) {
				c.set.ClearBit(id)
			}
			return true
		}
	}
	return false
}

// Holds reports whether the goroutine currently holds the given node ID.
func (c *Context) Holds(id int) bool {
	return c.set.GetBit(id)
}

// Held returns the held locks in acquisition order. The slice is the
// context's own storage; callers must not retain it across updates.
func (c *Context) Held() []HeldLock { return c.held }

// Set returns the held-lock membership bit vector, used directly as the
// target set of the cycle query.
func (c *Context) Set() bitvector.BitVector { return c.set }

// Len returns the number of held entries, counting recursive acquisitions
// individually.
func (c *Context) Len() int { return len(c.held) }

func (c *Context) holdsEntry(id int) bool {
	for i := range c.held {
		if c.held[i].ID == id {
			return true
		}
	}
	return false
}
