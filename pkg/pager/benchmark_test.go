// ABOUTME: Benchmarks for page allocation and heap malloc/free cycles

package pager

import "testing"

func BenchmarkFreeListAllocate(b *testing.B) {
	s := NewMemStream()
	fl, err := InitFreeList(1, s)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := fl.Allocate(s, func(pgNum uint32) Page {
			return BTreeLeafPage{Num: pgNum, FirstFreeOff: 5}
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHeapMallocFree(b *testing.B) {
	s := NewMemStream()
	fl, err := InitFreeList(1, s)
	if err != nil {
		b.Fatal(err)
	}
	h := NewHeap()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		frag, _, err := h.Malloc(256, false, fl, s)
		if err != nil {
			b.Fatal(err)
		}
		if err := h.Free(frag.Pos, fl, s); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHeapMallocSpread(b *testing.B) {
	s := NewMemStream()
	fl, err := InitFreeList(1, s)
	if err != nil {
		b.Fatal(err)
	}
	h := NewHeap()
	sizes := []uint16{16, 64, 256, 1024, 3000}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := h.Malloc(sizes[i%len(sizes)], false, fl, s); err != nil {
			b.Fatal(err)
		}
	}
}
