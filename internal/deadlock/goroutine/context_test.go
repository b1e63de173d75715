package goroutine

import (
	"sync"
	"testing"

	"github.com/kolkov/deadlockdetector/internal/deadlock/bitvector"
)

func TestIDStableWithinGoroutine(t *testing.T) {
	a := ID()
	b := ID()
	if a == 0 {
		t.Fatal("ID() = 0, parsing failed")
	}
	if a != b {
		t.Errorf("ID() changed within a goroutine: %d then %d", a, b)
	}
}

func TestIDDiffersAcrossGoroutines(t *testing.T) {
	main := ID()
	var wg sync.WaitGroup
	ids := make(chan int64, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{main: true}
	for id := range ids {
		if id == 0 {
			t.Fatal("goroutine ID() = 0")
		}
		if seen[id] {
			t.Errorf("duplicate goroutine ID %d", id)
		}
		seen[id] = true
	}
}

func TestParseGID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"typical", "goroutine 123 [running]:\nmain.main()", 123},
		{"single digit", "goroutine 7 [running]:", 7},
		{"large", "goroutine 4294967296 [running]:", 4294967296},
		{"wrong prefix", "gorotine 12 [running]:", 0},
		{"empty", "", 0},
		{"truncated", "goroutin", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseGID([]byte(tt.in)); got != tt.want {
				t.Errorf("parseGID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestContextPushRemove(t *testing.T) {
	c := NewContext(1, bitvector.NewBasic(16))

	c.Push(HeldLock{ID: 3})
	c.Push(HeldLock{ID: 7})
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if !c.Holds(3) || !c.Holds(7) {
		t.Fatal("held IDs not reported by Holds")
	}
	if c.Holds(5) {
		t.Fatal("Holds(5) = true for never-held lock")
	}

	// Out-of-order release is legal.
	if !c.Remove(3) {
		t.Fatal("Remove(3) = false")
	}
	if c.Holds(3) {
		t.Error("Holds(3) = true after Remove")
	}
	if !c.Holds(7) {
		t.Error("Remove(3) disturbed lock 7")
	}
	if c.Remove(3) {
		t.Error("second Remove(3) = true")
	}
}

func TestContextRecursiveHold(t *testing.T) {
	c := NewContext(1, bitvector.NewBasic(16))
	c.Push(HeldLock{ID: 4})
	c.Push(HeldLock{ID: 4})

	if !c.Remove(4) {
		t.Fatal("Remove of recursive hold = false")
	}
	if !c.Holds(4) {
		t.Error("membership bit cleared while one recursive hold remains")
	}
	if !c.Remove(4) {
		t.Fatal("Remove of last hold = false")
	}
	if c.Holds(4) {
		t.Error("membership bit set after last hold removed")
	}
}

func TestContextSetMirrorsHeld(t *testing.T) {
	c := NewContext(1, bitvector.NewBasic(16))
	c.Push(HeldLock{ID: 2})
	c.Push(HeldLock{ID: 9})
	c.Remove(2)

	var got []int
	c.Set().ForEach(func(i int) bool {
		got = append(got, i)
		return true
	})
	if len(got) != 1 || got[0] != 9 {
		t.Errorf("set = %v, want [9]", got)
	}
}

func TestHeldLockPCs(t *testing.T) {
	hl := HeldLock{ID: 1, NumFrames: 2}
	hl.Stack[0] = 0x100
	hl.Stack[1] = 0x200
	pcs := hl.PCs()
	if len(pcs) != 2 || pcs[0] != 0x100 || pcs[1] != 0x200 {
		t.Errorf("PCs() = %v", pcs)
	}
}
