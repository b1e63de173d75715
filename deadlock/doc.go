// Package deadlock provides a pure-Go runtime detector for lock order
// inversions, the classic recipe for deadlock.
//
// The detector maintains a directed graph over tracked mutexes in which
// an edge A -> B means "B was acquired while A was held". Before every
// tracked acquisition it asks whether the new lock can already reach any
// currently held lock in that graph; if it can, committing the new edges
// would close a cycle, and the detector prints the offending cycle with
// symbolized acquisition stacks. The check runs before the lock blocks,
// so the report is produced even when the program then deadlocks for
// real, and an inversion is reported even when the interleaving never
// actually wedges.
//
// # Quick Start
//
// Replace sync.Mutex with [Mutex] on the locks you want checked:
//
//	package main
//
//	import "github.com/kolkov/deadlockdetector/deadlock"
//
//	var (
//		a deadlock.Mutex
//		b deadlock.Mutex
//	)
//
//	func main() {
//		deadlock.Init()
//		defer deadlock.Fini()
//
//		a.Lock()
//		b.Lock() // establishes the order a -> b
//		b.Unlock()
//		a.Unlock()
//
//		b.Lock()
//		a.Lock() // reported: closes the cycle a -> b -> a
//		a.Unlock()
//		b.Unlock()
//	}
//
// For instrumented call sites that keep their sync.Mutex, use the hook
// functions directly: [MutexBeforeLock] before the lock operation,
// [MutexLock] after it, [MutexUnlock] on release, and [MutexDestroy]
// when a mutex goes out of use.
//
// # Options
//
// Options are read by [Init] from the DEADLOCK_OPTIONS environment
// variable as colon-separated key=value flags:
//
//	DEADLOCK_OPTIONS="capacity=256:strategy=roaring:verbosity=1"
//
//	capacity         number of simultaneously tracked mutexes (default 128)
//	strategy         adjacency backend: basic, twolevel or roaring
//	symbolizer       path to an llvm-symbolizer compatible binary
//	log_path         append reports to this file instead of stderr
//	verbosity        diagnostic log level (0 warnings, 1 info, 2 debug)
//	abort_on_report  exit the process after the first report
//	require_version  minimum runtime version, e.g. v0.1.0
//	config           path to a YAML file carrying the same settings
//
// Flags given in the environment override the YAML file.
//
// # Limitations
//
// The detector tracks a fixed number of mutexes; beyond the configured
// capacity new mutexes are simply not order-checked, and a counter of
// dropped mutexes is kept. Single-lock acquisitions are never reported:
// a cycle needs at least two locks held in conflicting orders.
package deadlock
