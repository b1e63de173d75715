// Package deadlock provides the public API for the lock order inversion
// detector.
//
// See doc.go for detailed documentation and examples.
package deadlock

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kolkov/deadlockdetector/internal/deadlock/config"
	"github.com/kolkov/deadlockdetector/internal/deadlock/detector"
)

var (
	initOnce sync.Once

	mu      sync.Mutex
	det     *detector.Detector
	enabled bool
)

// Init initializes the deadlock detector runtime.
//
// Options are read from the DEADLOCK_OPTIONS environment variable; see
// doc.go for the flag list. Invalid options are reported on stderr and
// replaced by the defaults rather than disabling detection.
//
// Init must be called before any other operation of this package and is
// safe to call multiple times (subsequent calls are no-ops).
func Init() {
	initOnce.Do(func() {
		cfg, err := config.FromEnv()
		if err == nil {
			err = cfg.Validate("v" + Version)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "deadlockdetector: %v, using default options\n", err)
			cfg = config.Default()
		}

		mu.Lock()
		defer mu.Unlock()
		det = detector.New(cfg)
		enabled = true
	})
}

// Fini finalizes the detector: it prints a summary when inversions were
// found, stops the symbolizer subprocess, and disables further tracking.
// Counters such as ReportsDetected remain readable afterwards.
//
//	func main() {
//		deadlock.Init()
//		defer deadlock.Fini()
//		// ... rest of program
//	}
func Fini() {
	mu.Lock()
	defer mu.Unlock()
	if det == nil || !enabled {
		return
	}
	enabled = false
	if n := det.ReportsDetected(); n > 0 {
		fmt.Fprintf(os.Stderr, "Found %d lock order inversion(s)\n", n)
	}
	_ = det.Close()
}

// Enabled reports whether the detector is initialized and active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// MutexBeforeLock checks whether acquiring the mutex at addr would
// invert an established lock order and reports the cycle if so. Call it
// immediately before the blocking lock operation:
//
//	deadlock.MutexBeforeLock(uintptr(unsafe.Pointer(&mu)))
//	mu.Lock()
//	deadlock.MutexLock(uintptr(unsafe.Pointer(&mu)))
//
// The check runs before the acquisition so the report appears even when
// the program then genuinely deadlocks.
func MutexBeforeLock(addr uintptr) {
	if d := active(); d != nil {
		d.MutexBeforeLock(addr)
	}
}

// MutexLock records a completed acquisition of the mutex at addr.
func MutexLock(addr uintptr) {
	if d := active(); d != nil {
		d.MutexLock(addr)
	}
}

// MutexUnlock records a release of the mutex at addr.
func MutexUnlock(addr uintptr) {
	if d := active(); d != nil {
		d.MutexUnlock(addr)
	}
}

// MutexDestroy forgets the mutex at addr: its ordering edges are erased
// and its tracking slot is recycled. Call it when a tracked mutex goes
// out of use, for example when the structure owning it is freed to a
// pool, so stale ordering never binds a later mutex at the same address.
func MutexDestroy(addr uintptr) {
	if d := active(); d != nil {
		d.MutexDestroy(addr)
	}
}

// ReportsDetected returns the number of unique lock order inversions
// reported so far.
func ReportsDetected() int {
	mu.Lock()
	defer mu.Unlock()
	if det == nil {
		return 0
	}
	return det.ReportsDetected()
}

// SetOutput redirects inversion reports, which default to stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if det != nil {
		det.SetOutput(w)
	}
}

func active() *detector.Detector {
	mu.Lock()
	defer mu.Unlock()
	if !enabled {
		return nil
	}
	return det
}
