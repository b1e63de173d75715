// Package report builds and formats lock-order inversion reports.
//
// A report describes one cycle the detector found in the lock-order
// graph: the mutexes on the cycle, the goroutine that closed it, and the
// acquisition stacks that are known. Formatting follows the banner style
// of the sanitizer family so the output is recognizable next to data-race
// reports.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/kolkov/deadlockdetector/internal/deadlock/symbolize"
)

// Mutex is one node on the reported cycle.
type Mutex struct {
	// ID is the node's lock-order graph ID, stable for the mutex's
	// tracked lifetime and used to label it in the report (M3, M7, ...).
	ID int

	// Addr is the mutex address in the monitored program.
	Addr uintptr

	// Stack holds the program counters of the acquisition that put this
	// mutex on the cycle, when the detector recorded them. May be empty.
	Stack []uintptr
}

// Report is one detected lock-order inversion.
type Report struct {
	// Cycle lists the mutexes in cycle order: each entry was acquired
	// while the previous one (cyclically) was held.
	Cycle []Mutex

	// Goroutine is the goroutine whose acquisition closed the cycle.
	Goroutine int64

	// DedupKey identifies the cycle independently of where on it the
	// detection happened, so each inversion is reported once.
	DedupKey string
}

// New builds a report for a cycle. The cycle is recorded as given;
// the dedup key normalizes its rotation so that the same cycle detected
// from any of its nodes produces the same key.
func New(gid int64, cycle []Mutex) *Report {
	return &Report{
		Cycle:     cycle,
		Goroutine: gid,
		DedupKey:  dedupKey(cycle),
	}
}

// dedupKey renders the cycle's node IDs starting from the smallest one.
// Format: "lock-inversion:3->7->12".
func dedupKey(cycle []Mutex) string {
	if len(cycle) == 0 {
		return "lock-inversion:"
	}
	start := 0
	for i := range cycle {
		if cycle[i].ID < cycle[start].ID {
			start = i
		}
	}
	var b strings.Builder
	b.WriteString("lock-inversion:")
	for i := range cycle {
		if i > 0 {
			b.WriteString("->")
		}
		fmt.Fprintf(&b, "%d", cycle[(start+i)%len(cycle)].ID)
	}
	return b.String()
}

// Format writes the report in the sanitizer banner style:
//
//	==================
//	WARNING: MUTEX LOCK ORDER INVERSION (potential deadlock)
//	Cycle in lock order graph: M0 (0x00000000000010a0) => M3 (0x00000000000010c8) => M0
//
//	Mutex M3 acquired here while holding mutex M0 in goroutine 12:
//	  main.transfer()
//	      /app/main.go:31
//	...
//	==================
//
// sym resolves the recorded program counters; pass symbolize.Runtime()
// when no external symbolizer is configured.
func (r *Report) Format(w io.Writer, sym *symbolize.Symbolizer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "WARNING: MUTEX LOCK ORDER INVERSION (potential deadlock)\n")

	fmt.Fprintf(w, "Cycle in lock order graph: ")
	for i, m := range r.Cycle {
		if i > 0 {
			fmt.Fprintf(w, " => ")
		}
		fmt.Fprintf(w, "M%d (0x%016x)", m.ID, m.Addr)
	}
	if len(r.Cycle) > 0 {
		fmt.Fprintf(w, " => M%d", r.Cycle[0].ID)
	}
	fmt.Fprintf(w, "\n")

	for i, m := range r.Cycle {
		prev := r.Cycle[(i+len(r.Cycle)-1)%len(r.Cycle)]
		fmt.Fprintf(w, "\nMutex M%d acquired here while holding mutex M%d in goroutine %d:\n",
			m.ID, prev.ID, r.Goroutine)
		if len(m.Stack) == 0 {
			fmt.Fprintf(w, "  (acquisition stack not recorded)\n")
			continue
		}
		formatStack(w, m.Stack, sym)
	}

	fmt.Fprintf(w, "==================\n")
}

// String renders the report with runtime symbolization. Convenience for
// tests and debugging.
func (r *Report) String() string {
	var b strings.Builder
	r.Format(&b, symbolize.Runtime())
	return b.String()
}

// formatStack prints one acquisition stack, two lines per frame, skipping
// Go runtime internals and the detector's own hook frames so the report
// starts at the monitored program's code.
func formatStack(w io.Writer, pcs []uintptr, sym *symbolize.Symbolizer) {
	printed := 0
	for _, pc := range pcs {
		for _, f := range sym.Symbolize(pc) {
			if skipFrame(f.Function) {
				continue
			}
			fmt.Fprintf(w, "  %s()\n", f.Function)
			if f.File != "" {
				fmt.Fprintf(w, "      %s:%d\n", f.File, f.Line)
			}
			printed++
		}
	}
	if printed == 0 {
		fmt.Fprintf(w, "  (all frames internal)\n")
	}
}

func skipFrame(fn string) bool {
	return strings.HasPrefix(fn, "runtime.") ||
		strings.Contains(fn, "internal/deadlock/detector.") ||
		strings.Contains(fn, "internal/deadlock/goroutine.") ||
		strings.Contains(fn, "kolkov/deadlockdetector/deadlock.")
}
