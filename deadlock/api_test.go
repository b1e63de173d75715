package deadlock

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The facade holds process-global state, so these tests share one Init
// and assert on report-count deltas.

func TestFacade(t *testing.T) {
	Init()
	require.True(t, Enabled())

	var buf bytes.Buffer
	SetOutput(&buf)

	t.Run("info", func(t *testing.T) {
		info := GetInfo()
		assert.Equal(t, Version, info.Version)
		assert.True(t, info.Enabled)
	})

	t.Run("mutex wrapper reports inversion", func(t *testing.T) {
		before := ReportsDetected()

		var a, b Mutex
		defer a.Destroy()
		defer b.Destroy()
		a.Lock()
		b.Lock()
		b.Unlock()
		a.Unlock()

		b.Lock()
		a.Lock()
		a.Unlock()
		b.Unlock()

		assert.Equal(t, before+1, ReportsDetected())
		assert.Contains(t, buf.String(), "MUTEX LOCK ORDER INVERSION")
	})

	t.Run("consistent order stays quiet", func(t *testing.T) {
		before := ReportsDetected()

		var a, b Mutex
		defer a.Destroy()
		defer b.Destroy()
		for i := 0; i < 3; i++ {
			a.Lock()
			b.Lock()
			b.Unlock()
			a.Unlock()
		}

		assert.Equal(t, before, ReportsDetected())
	})

	t.Run("rwmutex read locks participate", func(t *testing.T) {
		before := ReportsDetected()

		var a RWMutex
		var b Mutex
		defer a.Destroy()
		defer b.Destroy()
		a.RLock()
		b.Lock()
		b.Unlock()
		a.RUnlock()

		b.Lock()
		a.Lock()
		a.Unlock()
		b.Unlock()

		assert.Equal(t, before+1, ReportsDetected())
	})

	t.Run("hooks ignore untracked releases", func(t *testing.T) {
		before := ReportsDetected()
		MutexUnlock(0xDEAD)
		MutexDestroy(0xDEAD)
		assert.Equal(t, before, ReportsDetected())
	})
}

func TestHooksBeforeInitAreNoOps(t *testing.T) {
	// Runs in the same process, so Init may already have happened; the
	// guarantee worth pinning is that raw hooks never panic on addresses
	// the detector has not seen.
	MutexBeforeLock(0xBEEF)
	MutexUnlock(0xBEEF)
	MutexDestroy(0xBEEF)
}
