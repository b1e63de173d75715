package goroutine

import "runtime"

// ID returns the current goroutine ID.
//
// This is the universal runtime.Stack parsing method: slow (~1500ns) but
// portable across Go versions and architectures. Lock acquisition already
// pays for a map lookup and a graph update under the detector lock, so
// unlike a memory-access sanitizer hot path the cost is acceptable here.
//
// Stack trace format: "goroutine 123 [running]:\n..."
//
// Returns 0 if the trace cannot be parsed, which callers treat as an
// untrackable goroutine.
func ID() int64 {
	// Only the first line is needed; 64 bytes always covers it.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the goroutine ID from stack trace bytes.
//
// Direct byte parsing, no string conversion beyond the prefix check and
// no regex, to keep allocations out of the lock hooks.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}
	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
