package graph

import (
	"testing"

	"github.com/lumenforge/rendergraph/handle"
)

func hItem(id int, size uint64, begin, end int, insertOrder int) allocItem {
	return allocItem{
		id:          handle.New(handle.KindImage),
		size:        size,
		align:       1,
		begin:       begin,
		end:         end,
		insertOrder: insertOrder,
	}
}

func TestAliasAllocateNonOverlappingResourcesCanShareOffset(t *testing.T) {
	a := hItem(1, 100, 0, 0, 0)
	b := hItem(2, 100, 1, 1, 1)

	res := aliasAllocate([]allocItem{a, b})

	if res.offsets[a.id].offset != res.offsets[b.id].offset {
		t.Fatalf("non-overlapping resources did not alias to the same offset: %v vs %v",
			res.offsets[a.id].offset, res.offsets[b.id].offset)
	}
	if res.peak != 100 {
		t.Fatalf("peak = %d, want 100 (resources should alias)", res.peak)
	}
}

func TestAliasAllocateOverlappingResourcesGetDistinctRanges(t *testing.T) {
	a := hItem(1, 100, 0, 2, 0)
	b := hItem(2, 50, 1, 3, 1)

	res := aliasAllocate([]allocItem{a, b})

	oa, ob := res.offsets[a.id], res.offsets[b.id]
	overlap := oa.offset < ob.offset+ob.size && ob.offset < oa.offset+oa.size
	if overlap {
		t.Fatalf("overlapping-lifetime resources were placed at overlapping offsets: %+v vs %+v", oa, ob)
	}
	if res.peak < 150 {
		t.Fatalf("peak = %d, want >= 150 for two live-simultaneously resources", res.peak)
	}
}

func TestAliasAllocatePlacesLargestFirst(t *testing.T) {
	small := hItem(1, 10, 0, 5, 0)
	large := hItem(2, 1000, 0, 5, 1)

	res := aliasAllocate([]allocItem{small, large})

	// The larger item, placed first, should land at offset 0.
	if res.offsets[large.id].offset != 0 {
		t.Fatalf("largest item offset = %d, want 0", res.offsets[large.id].offset)
	}
}

func TestAliasAllocateRespectsAlignment(t *testing.T) {
	a := allocItem{id: handle.New(handle.KindBuffer), size: 10, align: 256, begin: 0, end: 1, insertOrder: 0}
	b := allocItem{id: handle.New(handle.KindBuffer), size: 10, align: 256, begin: 0, end: 1, insertOrder: 1}

	res := aliasAllocate([]allocItem{a, b})

	for h, p := range res.offsets {
		if p.offset%256 != 0 {
			t.Fatalf("offset for %v = %d, not 256-aligned", h, p.offset)
		}
	}
}

func TestAliasAllocateDeterministicAcrossRuns(t *testing.T) {
	items := []allocItem{
		hItem(1, 64, 0, 3, 0),
		hItem(2, 128, 1, 2, 1),
		hItem(3, 32, 2, 4, 2),
	}

	res1 := aliasAllocate(items)
	res2 := aliasAllocate(items)

	if res1.peak != res2.peak {
		t.Fatalf("peak differs across identical runs: %d vs %d", res1.peak, res2.peak)
	}
	for _, it := range items {
		if res1.offsets[it.id] != res2.offsets[it.id] {
			t.Fatalf("offset for %v differs across identical runs", it.id)
		}
	}
}

func TestAllocItemOverlaps(t *testing.T) {
	tests := []struct {
		a, b allocItem
		want bool
	}{
		{allocItem{begin: 0, end: 2}, allocItem{begin: 1, end: 3}, true},
		{allocItem{begin: 0, end: 1}, allocItem{begin: 2, end: 3}, false},
		{allocItem{begin: 0, end: 5}, allocItem{begin: 2, end: 3}, true},
		{allocItem{begin: 2, end: 2}, allocItem{begin: 2, end: 2}, true},
	}
	for _, tt := range tests {
		if got := tt.a.overlaps(tt.b); got != tt.want {
			t.Errorf("overlaps(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct {
		v, align, want uint64
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{10, 1, 10},
		{10, 0, 10},
	}
	for _, tt := range tests {
		if got := alignUp(tt.v, tt.align); got != tt.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", tt.v, tt.align, got, tt.want)
		}
	}
}
