// Package detector implements lock-order tracking on top of the
// bit-vector graph.
//
// The detector owns one long-lived graph instance plus the address-to-ID
// table and the per-goroutine held-lock contexts, all guarded by a single
// coarse mutex. Every hook takes that lock for its whole duration; the
// graph and the table rely on it and do no locking of their own. Keeping
// the one lock here, at the owner, is what makes the locking discipline
// visible at every call site.
//
// The detection rule: before goroutine G acquires mutex N while holding
// the set H, the acquisition is safe only if N cannot currently reach any
// member of H in the lock-order graph. If it can, committing the edges
// h -> N would close a cycle, which is exactly a lock order inversion;
// the offending path becomes the report. After the acquisition the edges
// h -> N for every h in H are recorded.
package detector

import (
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/kolkov/deadlockdetector/internal/deadlock/bitvector"
	"github.com/kolkov/deadlockdetector/internal/deadlock/bvgraph"
	"github.com/kolkov/deadlockdetector/internal/deadlock/config"
	"github.com/kolkov/deadlockdetector/internal/deadlock/goroutine"
	"github.com/kolkov/deadlockdetector/internal/deadlock/mutexset"
	"github.com/kolkov/deadlockdetector/internal/deadlock/report"
	"github.com/kolkov/deadlockdetector/internal/deadlock/symbolize"
)

// abortExitCode is the process exit code under abort_on_report, matching
// the sanitizer runtime convention.
const abortExitCode = 66

// osExit is swapped out in tests of the abort path.
var osExit = os.Exit

// Detector is the deadlock detection runtime state.
type Detector struct {
	mu sync.Mutex

	cfg     config.Config
	graph   *bvgraph.Graph
	muxes   *mutexset.Set
	factory bvgraph.Factory

	// contexts maps goroutine IDs to their held-lock state. Entries are
	// dropped as soon as a goroutine holds nothing, so the map stays
	// proportional to goroutines currently inside critical sections.
	contexts map[int64]*goroutine.Context

	// reported dedups cycles by their normalized key, so each inversion
	// is printed once no matter how often the program re-runs it. The
	// value keeps the cycle's node IDs so entries can be purged when a
	// participating mutex is destroyed and its ID recycled.
	reported map[string][]int

	reports   int
	satLogged bool

	// Search scratch, valid under mu.
	pathBuf []int
	nodeSet bitvector.BitVector

	out     io.Writer
	logFile *os.File
	sym     *symbolize.Symbolizer
	log     *slog.Logger
}

// New creates a detector for a validated configuration.
//
// A configured external symbolizer that fails to start is downgraded to
// in-process symbolization with a warning; losing source locations is
// better than losing the runtime.
func New(cfg config.Config) *Detector {
	factory := cfg.Factory()
	log := cfg.NewLogger(os.Stderr)

	sym := symbolize.Runtime()
	if cfg.Symbolizer != "" {
		ext, err := symbolize.External(cfg.Symbolizer)
		if err != nil {
			log.Warn("external symbolizer unavailable, using runtime symbolization",
				slog.String("path", cfg.Symbolizer), slog.Any("error", err))
		} else {
			sym = ext
		}
	}

	var out io.Writer = os.Stderr
	var logFile *os.File
	if cfg.LogPath != "" {
		f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Warn("cannot open report log file, reports go to stderr",
				slog.String("path", cfg.LogPath), slog.Any("error", err))
		} else {
			out = f
			logFile = f
		}
	}

	d := &Detector{
		cfg:      cfg,
		graph:    bvgraph.New(cfg.Capacity, factory),
		muxes:    mutexset.New(cfg.Capacity),
		factory:  factory,
		contexts: make(map[int64]*goroutine.Context),
		reported: make(map[string][]int),
		pathBuf:  make([]int, cfg.Capacity),
		nodeSet:  factory(cfg.Capacity),
		out:      out,
		logFile:  logFile,
		sym:      sym,
		log:      log,
	}
	log.Info("deadlock detector initialized",
		slog.Int("capacity", cfg.Capacity),
		slog.String("strategy", cfg.Strategy))
	return d
}

// SetOutput redirects report output, which defaults to stderr.
func (d *Detector) SetOutput(w io.Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = w
}

// MutexBeforeLock checks whether acquiring the mutex at addr would close
// a cycle in the lock-order graph and reports the inversion if so. It
// changes no tracking state; call it before the actual lock operation,
// then MutexLock after it succeeds.
func (d *Detector) MutexBeforeLock(addr uintptr) {
	gid := goroutine.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts[gid]
	if !ok || ctx.Len() == 0 {
		// Holding nothing, nothing to invert.
		return
	}
	id, ok := d.muxes.Acquire(addr)
	if !ok {
		d.noteSaturation()
		return
	}
	if ctx.Holds(id) {
		// Recursive acquisition never adds an edge.
		return
	}
	if !d.graph.IsReachable(id, ctx.Set()) {
		return
	}
	d.reportCycle(gid, id, ctx)
}

// MutexLock records a completed acquisition: one ordering edge from every
// held mutex to the new one, and the new mutex on the goroutine's held
// set with its acquisition stack.
func (d *Detector) MutexLock(addr uintptr) {
	gid := goroutine.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.muxes.Acquire(addr)
	if !ok {
		d.noteSaturation()
		return
	}

	ctx, ok := d.contexts[gid]
	if !ok {
		ctx = goroutine.NewContext(gid, d.factory(d.cfg.Capacity))
		d.contexts[gid] = ctx
	}

	hl := goroutine.HeldLock{ID: id}
	// Skip runtime.Callers and this hook; deeper detector frames are
	// filtered again at formatting time.
	hl.NumFrames = runtime.Callers(2, hl.Stack[:])

	for _, held := range ctx.Held() {
		if held.ID != id {
			d.graph.AddEdge(held.ID, id)
		}
	}
	ctx.Push(hl)
}

// MutexUnlock removes the mutex from the goroutine's held set. Unlocking
// an untracked mutex, or one this goroutine does not hold, is a no-op.
func (d *Detector) MutexUnlock(addr uintptr) {
	gid := goroutine.ID()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, ok := d.contexts[gid]
	if !ok {
		return
	}
	if id, ok := d.muxes.Lookup(addr); ok {
		ctx.Remove(id)
	}
	if ctx.Len() == 0 {
		delete(d.contexts, gid)
	}
}

// MutexDestroy retires a mutex: its node loses every in- and out-edge
// and its ID returns to the free list for the next tracked mutex. The
// ordering knowledge of a destroyed lock must not leak into whatever is
// allocated at the same address later.
func (d *Detector) MutexDestroy(addr uintptr) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.muxes.Release(addr)
	if !ok {
		return
	}
	d.nodeSet.Clear()
	d.nodeSet.SetBit(id)
	d.graph.RemoveEdgesFrom(d.nodeSet)
	d.graph.RemoveEdgesTo(d.nodeSet)

	// Destroying a held mutex is a program bug, but the recycled ID must
	// not inherit membership in anyone's held set.
	for gid, ctx := range d.contexts {
		for ctx.Remove(id) {
		}
		if ctx.Len() == 0 {
			delete(d.contexts, gid)
		}
	}

	// Whatever mutex next receives this ID is a different lock; cycles
	// the old one took part in must not suppress its reports.
	for key, ids := range d.reported {
		for _, n := range ids {
			if n == id {
				delete(d.reported, key)
				break
			}
		}
	}
}

// ReportsDetected returns the number of unique inversions reported.
func (d *Detector) ReportsDetected() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reports
}

// DroppedMutexes returns how many mutexes were left untracked because the
// configured capacity was exhausted.
func (d *Detector) DroppedMutexes() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muxes.Dropped()
}

// Reset clears all tracking state and counters. Test helper.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.graph.Clear()
	d.muxes.Reset()
	d.contexts = make(map[int64]*goroutine.Context)
	d.reported = make(map[string][]int)
	d.reports = 0
	d.satLogged = false
}

// Close releases the symbolizer subprocess and the report log file, if
// either is in use.
func (d *Detector) Close() error {
	err := d.sym.Close()
	if d.logFile != nil {
		if cerr := d.logFile.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// reportCycle turns the path that proves the inversion into a report and
// prints it unless the same cycle was already reported. Called with mu
// held; id is the node being acquired, which can reach ctx's held set.
func (d *Detector) reportCycle(gid int64, id int, ctx *goroutine.Context) {
	n := d.graph.FindPath(id, ctx.Set(), d.pathBuf)
	if n == 0 {
		// Reachable but the path outgrew the buffer; impossible with a
		// capacity-sized buffer.
		return
	}

	cycle := make([]report.Mutex, n)
	for i, node := range d.pathBuf[:n] {
		cycle[i] = report.Mutex{ID: node, Addr: d.muxes.Addr(node)}
	}
	// The stack of the acquisition closing the cycle is the current one.
	pcs := make([]uintptr, goroutine.MaxStackFrames)
	cycle[0].Stack = pcs[:runtime.Callers(3, pcs)]
	// For nodes this goroutine still holds, the recorded acquisition
	// stack is the best account of how the lock entered the cycle.
	for i := 1; i < n; i++ {
		for _, held := range ctx.Held() {
			if held.ID == cycle[i].ID {
				cycle[i].Stack = held.PCs()
				break
			}
		}
	}

	rep := report.New(gid, cycle)
	if _, dup := d.reported[rep.DedupKey]; dup {
		return
	}
	d.reported[rep.DedupKey] = append([]int(nil), d.pathBuf[:n]...)
	d.reports++
	rep.Format(d.out, d.sym)
	if d.cfg.AbortOnReport {
		osExit(abortExitCode)
	}
}

// noteSaturation logs the capacity exhaustion once. Called with mu held.
func (d *Detector) noteSaturation() {
	if d.satLogged {
		return
	}
	d.satLogged = true
	d.log.Warn("tracked mutex capacity exhausted, new mutexes are not order-checked",
		slog.Int("capacity", d.cfg.Capacity))
}
