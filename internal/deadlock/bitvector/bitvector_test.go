package bitvector

import (
	"math/rand"
	"sort"
	"testing"
)

// impls lists every BitVector implementation under test. All tests run
// against all of them so the three backends stay behaviorally identical.
var impls = []struct {
	name string
	make func(size int) BitVector
}{
	{"basic", func(size int) BitVector { return NewBasic(size) }},
	{"twolevel", func(size int) BitVector { return NewTwoLevel(size) }},
	{"roaring", func(size int) BitVector { return NewRoaring(size) }},
}

// testSizes covers a sub-word vector, exactly one word, and a multi-group
// two-level layout with a partial trailing group.
var testSizes = []int{8, 64, 256, 300}

func TestSetClearGetModel(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			for _, size := range testSizes {
				rng := rand.New(rand.NewSource(1))
				bv := im.make(size)
				model := make(map[int]bool)

				for it := 0; it < 2000; it++ {
					i := rng.Intn(size)
					switch rng.Intn(3) {
					case 0:
						want := !model[i]
						if got := bv.SetBit(i); got != want {
							t.Fatalf("size %d: SetBit(%d) = %v, want %v", size, i, got, want)
						}
						model[i] = true
					case 1:
						want := model[i]
						if got := bv.ClearBit(i); got != want {
							t.Fatalf("size %d: ClearBit(%d) = %v, want %v", size, i, got, want)
						}
						delete(model, i)
					case 2:
						if got := bv.GetBit(i); got != model[i] {
							t.Fatalf("size %d: GetBit(%d) = %v, want %v", size, i, got, model[i])
						}
					}
					if got := bv.Empty(); got != (len(model) == 0) {
						t.Fatalf("size %d: Empty() = %v with %d bits in model", size, got, len(model))
					}
				}

				// Full sweep at the end: every index must agree.
				for i := 0; i < size; i++ {
					if got := bv.GetBit(i); got != model[i] {
						t.Fatalf("size %d: final GetBit(%d) = %v, want %v", size, i, got, model[i])
					}
				}
			}
		})
	}
}

func TestClear(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			bv := im.make(256)
			for _, i := range []int{0, 63, 64, 130, 255} {
				bv.SetBit(i)
			}
			bv.Clear()
			if !bv.Empty() {
				t.Error("Empty() = false after Clear()")
			}
			for i := 0; i < 256; i++ {
				if bv.GetBit(i) {
					t.Fatalf("GetBit(%d) = true after Clear()", i)
				}
			}
		})
	}
}

func TestSetUnionReportsNewBits(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			a := im.make(128)
			b := im.make(128)
			a.SetBit(3)
			a.SetBit(70)
			b.SetBit(70)
			b.SetBit(100)

			if !a.SetUnion(b) {
				t.Error("SetUnion with a new bit reported no change")
			}
			for _, i := range []int{3, 70, 100} {
				if !a.GetBit(i) {
					t.Errorf("GetBit(%d) = false after union", i)
				}
			}

			// b is now a subset of a; a second union is a fixed point.
			if a.SetUnion(b) {
				t.Error("SetUnion with a subset reported a change")
			}
		})
	}
}

func TestIntersects(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			a := im.make(256)
			b := im.make(256)
			if a.Intersects(b) {
				t.Error("two empty vectors intersect")
			}
			a.SetBit(5)
			a.SetBit(200)
			b.SetBit(6)
			b.SetBit(199)
			if a.Intersects(b) {
				t.Error("disjoint vectors intersect")
			}
			b.SetBit(200)
			if !a.Intersects(b) {
				t.Error("vectors sharing bit 200 do not intersect")
			}
		})
	}
}

func TestDifference(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			a := im.make(256)
			b := im.make(256)
			for _, i := range []int{1, 64, 65, 255} {
				a.SetBit(i)
			}
			b.SetBit(64)
			b.SetBit(255)
			b.SetBit(7) // not in a, must be a no-op

			a.Difference(b)
			for _, i := range []int{1, 65} {
				if !a.GetBit(i) {
					t.Errorf("GetBit(%d) = false, bit outside difference removed", i)
				}
			}
			for _, i := range []int{64, 255} {
				if a.GetBit(i) {
					t.Errorf("GetBit(%d) = true after difference", i)
				}
			}
		})
	}
}

func TestForEachAscendingAndRestartable(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			bv := im.make(300)
			want := []int{0, 2, 63, 64, 128, 192, 299}
			for _, i := range want {
				bv.SetBit(i)
			}

			collect := func() []int {
				var got []int
				bv.ForEach(func(i int) bool {
					got = append(got, i)
					return true
				})
				return got
			}

			got := collect()
			if !sort.IntsAreSorted(got) {
				t.Errorf("iteration not ascending: %v", got)
			}
			if len(got) != len(want) {
				t.Fatalf("iterated %d bits, want %d", len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("iteration = %v, want %v", got, want)
				}
			}

			// Restartable: a second pass yields the same sequence.
			again := collect()
			for i := range want {
				if again[i] != want[i] {
					t.Fatalf("second iteration = %v, want %v", again, want)
				}
			}

			// Early stop.
			var n int
			bv.ForEach(func(i int) bool {
				n++
				return n < 3
			})
			if n != 3 {
				t.Errorf("early-stopped iteration visited %d bits, want 3", n)
			}
		})
	}
}

func TestCrossImplementationOps(t *testing.T) {
	// Mixed-type unions go through the generic fallback; the result must
	// match the same-type path exactly.
	for _, dst := range impls {
		for _, src := range impls {
			if dst.name == src.name {
				continue
			}
			t.Run(dst.name+"_from_"+src.name, func(t *testing.T) {
				a := dst.make(130)
				b := src.make(130)
				a.SetBit(1)
				b.SetBit(1)
				b.SetBit(129)

				if !a.SetUnion(b) {
					t.Error("cross-type SetUnion reported no change")
				}
				if !a.GetBit(129) {
					t.Error("cross-type SetUnion dropped bit 129")
				}
				if !a.Intersects(b) {
					t.Error("cross-type Intersects = false")
				}
				a.Difference(b)
				if a.GetBit(1) || a.GetBit(129) {
					t.Error("cross-type Difference left bits behind")
				}
			})
		}
	}
}

func TestTwoLevelSummaryTracksGroups(t *testing.T) {
	tl := NewTwoLevel(256)

	tl.SetBit(70) // group 1
	if !tl.summary.GetBit(1) {
		t.Fatal("summary bit not set for populated group")
	}

	// A second bit in the same group, then remove one: summary must stay.
	tl.SetBit(71)
	tl.ClearBit(70)
	if !tl.summary.GetBit(1) {
		t.Fatal("summary bit dropped while group still populated")
	}

	// Removing the last bit empties the group.
	tl.ClearBit(71)
	if tl.summary.GetBit(1) {
		t.Fatal("summary bit kept for empty group")
	}
	if !tl.Empty() {
		t.Fatal("Empty() = false with all groups empty")
	}
}

func TestOutOfRangePanics(t *testing.T) {
	for _, im := range impls {
		t.Run(im.name, func(t *testing.T) {
			bv := im.make(64)
			for _, idx := range []int{-1, 64, 1000} {
				func() {
					defer func() {
						if recover() == nil {
							t.Errorf("SetBit(%d) did not panic", idx)
						}
					}()
					bv.SetBit(idx)
				}()
			}
		})
	}
}

func TestSizeMismatchPanics(t *testing.T) {
	a := NewBasic(64)
	b := NewBasic(128)
	defer func() {
		if recover() == nil {
			t.Error("SetUnion across capacities did not panic")
		}
	}()
	a.SetUnion(b)
}

// ========== BENCHMARKS ==========

func BenchmarkSetUnion(b *testing.B) {
	for _, im := range impls {
		b.Run(im.name, func(b *testing.B) {
			dst := im.make(256)
			src := im.make(256)
			for i := 0; i < 256; i += 17 {
				src.SetBit(i)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				dst.SetUnion(src)
			}
		})
	}
}

func BenchmarkForEachSparse(b *testing.B) {
	for _, im := range impls {
		b.Run(im.name, func(b *testing.B) {
			bv := im.make(256)
			bv.SetBit(3)
			bv.SetBit(250)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				bv.ForEach(func(int) bool { return true })
			}
		})
	}
}

func BenchmarkSetClear(b *testing.B) {
	for _, im := range impls {
		b.Run(im.name, func(b *testing.B) {
			bv := im.make(256)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				bv.SetBit(i % 256)
				bv.ClearBit(i % 256)
			}
		})
	}
}
