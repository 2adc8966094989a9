package graph

import (
	"sort"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/rhi"
)

// buildAllocItems gathers the aliasing allocator's input set: every transient
// image and buffer that the lifetime analyzer found to be actually touched,
// excluding external resources (which own no graph-managed memory). The result
// is sorted by builder-local creation order (seq) so that aliasAllocate's
// stable tie-break — and therefore the final offsets — are a pure function of
// the sequence of builder calls, never of map iteration order or handle values
// (spec §8: "Rebuilding the same builder twice produces byte-identical offset
// assignments").
func buildAllocItems(b *Builder, lr *lifetimeResult) []allocItem {
	var items []allocItem
	for h, l := range lr.images {
		entry := b.images[h]
		if entry.external || len(l.accesses) == 0 {
			continue
		}
		items = append(items, allocItem{
			id: h, size: estimateImageSize(entry.desc), align: imageAlignment,
			begin: l.first(), end: l.last(), insertOrder: entry.seq,
		})
	}
	for h, l := range lr.buffers {
		entry := b.buffers[h]
		if entry.external || len(l.accesses) == 0 {
			continue
		}
		items = append(items, allocItem{
			id: h, size: entry.desc.Size, align: bufferAlignment,
			begin: l.first(), end: l.last(), insertOrder: entry.seq,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].insertOrder < items[j].insertOrder })
	return items
}

// allocItem is one aliasing-allocator input: a resource's byte size, required
// alignment, and the inclusive pass-index interval it must stay live across
// (spec §4.3).
type allocItem struct {
	id          handle.Handle
	size        uint64
	align       uint64
	begin, end  int
	insertOrder int // tie-break for determinism when sizes are equal
}

// overlaps reports whether two pass-index intervals intersect.
func (a allocItem) overlaps(b allocItem) bool {
	return a.begin <= b.end && b.begin <= a.end
}

// placement is the aliasing allocator's output for one resource: its byte
// offset inside the single device-memory block.
type placement struct {
	offset uint64
	size   uint64
}

// allocationResult is the complete output of aliasAllocate: every transient
// resource's offset, plus the peak byte size to request from the device.
type allocationResult struct {
	offsets map[handle.Handle]placement
	peak    uint64
}

// aliasAllocate implements the first-fit-decreasing aliasing algorithm of spec
// §4.3: resources are placed largest-first, and for each one the smallest
// feasible offset is chosen among 0 and the end-offsets of every
// already-placed, temporally overlapping resource. This is C7.
func aliasAllocate(items []allocItem) allocationResult {
	ordered := make([]allocItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].size > ordered[j].size
	})

	var placed []allocItem
	offsets := make(map[handle.Handle]placement, len(items))
	var peak uint64

	for _, it := range ordered {
		candidates := []uint64{0}
		for _, p := range placed {
			if p.overlaps(it) {
				end := offsets[p.id].offset + offsets[p.id].size
				candidates = append(candidates, end)
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

		chosen := uint64(0)
		found := false
		for _, c := range candidates {
			aligned := alignUp(c, it.align)
			if fits(aligned, it, placed, offsets) {
				chosen = aligned
				found = true
				break
			}
		}
		if !found {
			// Every candidate originated from an end-offset or 0; if none fit
			// (can only happen via alignment padding pushing past an
			// overlapping neighbor) probe forward from the largest candidate.
			chosen = alignUp(candidates[len(candidates)-1], it.align)
			for !fits(chosen, it, placed, offsets) {
				chosen += it.align
			}
		}

		offsets[it.id] = placement{offset: chosen, size: it.size}
		placed = append(placed, it)
		if end := chosen + it.size; end > peak {
			peak = end
		}
	}

	return allocationResult{offsets: offsets, peak: peak}
}

func fits(offset uint64, candidate allocItem, placed []allocItem, offsets map[handle.Handle]placement) bool {
	candEnd := offset + candidate.size
	for _, p := range placed {
		if !p.overlaps(candidate) {
			continue
		}
		pp := offsets[p.id]
		if offset < pp.offset+pp.size && pp.offset < candEnd {
			return false
		}
	}
	return true
}

func alignUp(v, align uint64) uint64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// estimateImageSize approximates an image's device-memory footprint: one full
// mip chain (geometric series ≈ ×4/3 of the base level) times layer count. The
// aliasing algorithm's correctness does not depend on this being the backend's
// exact footprint — only on using the same estimate consistently between sizing
// and binding.
func estimateImageSize(desc rhi.ImageDescription) uint64 {
	bpp := bytesPerTexel(desc.Format)
	base := uint64(desc.Width) * uint64(max64(desc.Height, 1)) * uint64(max64(desc.Depth, 1)) * bpp
	layers := uint64(max64(desc.LayerCount, 1))
	total := base * layers
	if desc.MipCount > 1 {
		total = total * 4 / 3
	}
	return total
}

func max64(v uint32, floor uint32) uint32 {
	if v < floor {
		return floor
	}
	return v
}

func bytesPerTexel(f rhi.Format) uint64 {
	switch f {
	case rhi.FormatRGBA32Float:
		return 16
	case rhi.FormatRGBA16Float:
		return 8
	case rhi.FormatRGBA8Unorm, rhi.FormatBGRA8Unorm, rhi.FormatD24UnormS8Uint:
		return 4
	case rhi.FormatD32Float:
		return 4
	case rhi.FormatD16Unorm:
		return 2
	case rhi.FormatR8Unorm:
		return 1
	default:
		return 4
	}
}

// imageAlignment and bufferAlignment are fixed, conservative device-memory
// alignments; a real backend would query these (rhi.Device.FindMemoryType's
// companion requirements query), but the core's contract with C7 only needs a
// stable value to align_i.
const (
	imageAlignment  = 256
	bufferAlignment = 256
)
