// Package bvgraph implements the bit-vector directed graph behind deadlock
// detection.
//
// The graph records observed ordering relations over a small fixed node
// space: an edge (a, b) means "a was observed before b". One bit vector per
// node holds its out-edges, so edge mutation is a single bit operation and
// the reachability query that decides whether a new relation would close a
// cycle is a layered breadth-first expansion over whole rows at a time.
//
// Determinism and boundedness are load-bearing. The graph runs inline in
// the hot path of an instrumented program, under the detector's lock, so
// every operation finishes in O(size) or O(size^2) steps with no recursion
// and no allocation after construction; the breadth-first scratch vectors
// are allocated once with the graph.
//
// The graph has no locking of its own. Exactly one external lock must be
// held across every call; that discipline belongs to the owner (the
// detector), which also makes the instance's lifetime visible at call
// sites instead of hiding it in package state.
package bvgraph

import (
	"fmt"

	"github.com/kolkov/deadlockdetector/internal/deadlock/bitvector"
)

// Factory creates the bit vector used for one adjacency row and for the
// search scratch state. The choice of backend (flat, two-level, roaring)
// is made here, once, at construction.
type Factory func(size int) bitvector.BitVector

// Graph is a directed graph over the node IDs [0, Size()).
//
// Self-edges are permitted and cycles are legal graph states; a cycle is
// exactly the condition the reachability query exists to detect before an
// edge is committed.
type Graph struct {
	rows []bitvector.BitVector

	// Breadth-first search scratch, reused across queries so the hot
	// path never allocates. Valid only while the owner's lock is held.
	frontier bitvector.BitVector
	next     bitvector.BitVector
	visited  bitvector.BitVector
	pred     []int32
}

// New creates an empty graph with the given fixed node capacity.
func New(size int, newBV Factory) *Graph {
	if size <= 0 {
		panic("bvgraph: capacity must be positive")
	}
	g := &Graph{
		rows:     make([]bitvector.BitVector, size),
		frontier: newBV(size),
		next:     newBV(size),
		visited:  newBV(size),
		pred:     make([]int32, size),
	}
	for i := range g.rows {
		g.rows[i] = newBV(size)
	}
	return g
}

// Size returns the fixed node capacity.
func (g *Graph) Size() int { return len(g.rows) }

// Clear removes every edge.
func (g *Graph) Clear() {
	for _, row := range g.rows {
		row.Clear()
	}
}

// Empty reports whether the graph has no edges.
func (g *Graph) Empty() bool {
	for _, row := range g.rows {
		if !row.Empty() {
			return false
		}
	}
	return true
}

// AddEdge adds the edge (from, to) and reports whether it was newly
// created. Adding an existing edge is an idempotent no-op.
func (g *Graph) AddEdge(from, to int) bool {
	g.checkNode(from)
	g.checkNode(to)
	return g.rows[from].SetBit(to)
}

// RemoveEdge removes the edge (from, to) and reports whether it existed.
func (g *Graph) RemoveEdge(from, to int) bool {
	g.checkNode(from)
	g.checkNode(to)
	return g.rows[from].ClearBit(to)
}

// HasEdge reports whether the edge (from, to) exists.
func (g *Graph) HasEdge(from, to int) bool {
	g.checkNode(from)
	g.checkNode(to)
	return g.rows[from].GetBit(to)
}

// RemoveEdgesFrom clears the whole out-edge row of every node in sources.
// This retires a node's own ordering knowledge, for example when the
// tracked mutex it stands for is destroyed. An empty sources set is a
// valid no-op.
func (g *Graph) RemoveEdgesFrom(sources bitvector.BitVector) {
	g.checkSet(sources)
	sources.ForEach(func(s int) bool {
		g.rows[s].Clear()
		return true
	})
}

// RemoveEdgesTo removes every edge whose destination is in targets. All
// rows are scanned regardless of how many edges actually change.
func (g *Graph) RemoveEdgesTo(targets bitvector.BitVector) {
	g.checkSet(targets)
	for _, row := range g.rows {
		row.Difference(targets)
	}
}

// IsReachable reports whether a path of length >= 0 exists from the node
// from to any node in targets. A node in targets is reachable from itself
// by the zero-length path.
//
// The search expands one breadth-first layer per iteration: if the current
// frontier touches targets the answer is yes; if folding the frontier into
// the visited set adds nothing, the search has hit its fixed point and the
// answer is no. The visited set strictly grows otherwise, so the loop runs
// at most Size() iterations.
func (g *Graph) IsReachable(from int, targets bitvector.BitVector) bool {
	g.checkNode(from)
	g.checkSet(targets)

	g.frontier.Clear()
	g.frontier.SetBit(from)
	g.visited.Clear()

	for {
		if g.frontier.Intersects(targets) {
			return true
		}
		if !g.visited.SetUnion(g.frontier) {
			return false
		}
		g.expandFrontier(nil)
	}
}

// FindPath finds a shortest path from the node from to the nearest node in
// targets and writes it, origin first and hit node last, into out. The
// return value is the path length in nodes (edges + 1), or 0 when no node
// in targets is reachable, or 0 when the shortest path would not fit in
// out; a path that does not fit is never partially written.
//
// The search is the same layered expansion as IsReachable, additionally
// recording for every node the predecessor that first reached it. Frontier
// nodes are expanded in ascending order, so the recorded predecessor of a
// node is always the smallest among that layer's candidates and the
// reconstructed path is the same on every run. Instrumentation reports
// must be reproducible, and tied shortest paths would otherwise make the
// reported cycle depend on memory layout.
func (g *Graph) FindPath(from int, targets bitvector.BitVector, out []int) int {
	g.checkNode(from)
	g.checkSet(targets)

	for i := range g.pred {
		g.pred[i] = -1
	}
	g.frontier.Clear()
	g.frontier.SetBit(from)
	g.visited.Clear()

	pathLen := 1
	for {
		if g.frontier.Intersects(targets) {
			if pathLen > len(out) {
				return 0
			}
			hit := -1
			g.frontier.ForEach(func(n int) bool {
				if targets.GetBit(n) {
					hit = n
					return false
				}
				return true
			})
			n := hit
			for i := pathLen - 1; i >= 0; i-- {
				out[i] = n
				if i > 0 {
					n = int(g.pred[n])
				}
			}
			return pathLen
		}
		if !g.visited.SetUnion(g.frontier) {
			return 0
		}
		g.expandFrontier(g.pred)
		pathLen++
	}
}

// expandFrontier replaces the frontier with the union of the out-edge rows
// of the current frontier nodes, restricted to unvisited nodes. When pred
// is non-nil, each newly discovered node records the frontier node that
// reached it first; ascending iteration makes that the smallest candidate.
//
// The caller has already folded the frontier into the visited set, so the
// unvisited check also excludes the frontier itself.
func (g *Graph) expandFrontier(pred []int32) {
	g.next.Clear()
	if pred == nil {
		g.frontier.ForEach(func(n int) bool {
			g.next.SetUnion(g.rows[n])
			return true
		})
		g.next.Difference(g.visited)
	} else {
		g.frontier.ForEach(func(n int) bool {
			g.rows[n].ForEach(func(s int) bool {
				if !g.visited.GetBit(s) && g.next.SetBit(s) {
					pred[s] = int32(n)
				}
				return true
			})
			return true
		})
	}
	g.frontier, g.next = g.next, g.frontier
}

// checkNode panics if n is not a valid node ID. The fail-fast policy of
// the bit vectors applies to the graph surface too.
func (g *Graph) checkNode(n int) {
	if n < 0 || n >= len(g.rows) {
		panic(fmt.Sprintf("bvgraph: node %d out of range [0, %d)", n, len(g.rows)))
	}
}

// checkSet panics if a node set has a different capacity than the graph.
func (g *Graph) checkSet(set bitvector.BitVector) {
	if set.Size() != len(g.rows) {
		panic(fmt.Sprintf("bvgraph: node set capacity %d != graph capacity %d", set.Size(), len(g.rows)))
	}
}
