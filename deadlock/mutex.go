package deadlock

import (
	"sync"
	"unsafe"
)

// Mutex is a drop-in replacement for sync.Mutex whose acquisitions and
// releases are tracked by the detector. Using it is the manual
// alternative to instrumenting call sites with the MutexBeforeLock /
// MutexLock / MutexUnlock hooks.
//
// A Mutex must not be copied after first use, same as sync.Mutex.
type Mutex struct {
	mu sync.Mutex
}

// Lock acquires the mutex, checking the lock order first.
func (m *Mutex) Lock() {
	addr := uintptr(unsafe.Pointer(m))
	MutexBeforeLock(addr)
	m.mu.Lock()
	MutexLock(addr)
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() {
	MutexUnlock(uintptr(unsafe.Pointer(m)))
	m.mu.Unlock()
}

// Destroy forgets the mutex's tracking state. Call it when the mutex
// goes out of use; a later mutex allocated at the same address must not
// inherit this one's ordering.
func (m *Mutex) Destroy() {
	MutexDestroy(uintptr(unsafe.Pointer(m)))
}

// RWMutex is a tracked replacement for sync.RWMutex.
//
// Read acquisitions participate in lock ordering the same way writes do.
// Readers of an RWMutex can still deadlock against a waiting writer, so
// treating them as exclusive is the conservative choice; it can report
// an inversion between orderings that only ever mix read locks.
type RWMutex struct {
	mu sync.RWMutex
}

// Lock acquires the write lock, checking the lock order first.
func (m *RWMutex) Lock() {
	addr := uintptr(unsafe.Pointer(m))
	MutexBeforeLock(addr)
	m.mu.Lock()
	MutexLock(addr)
}

// Unlock releases the write lock.
func (m *RWMutex) Unlock() {
	MutexUnlock(uintptr(unsafe.Pointer(m)))
	m.mu.Unlock()
}

// RLock acquires the read lock, checking the lock order first.
func (m *RWMutex) RLock() {
	addr := uintptr(unsafe.Pointer(m))
	MutexBeforeLock(addr)
	m.mu.RLock()
	MutexLock(addr)
}

// RUnlock releases the read lock.
func (m *RWMutex) RUnlock() {
	MutexUnlock(uintptr(unsafe.Pointer(m)))
	m.mu.RUnlock()
}

// Destroy forgets the mutex's tracking state, as for [Mutex.Destroy].
func (m *RWMutex) Destroy() {
	MutexDestroy(uintptr(unsafe.Pointer(m)))
}
