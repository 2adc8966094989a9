package graph

import (
	"fmt"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// access is one (pass-index, required-state) tuple produced by the lifetime
// analyzer for a single resource (spec §4.2).
type access struct {
	passIndex int
	state     rhi.State
	// synthetic marks the implicit TransferDst access injected ahead of a
	// resource's first real use when it carries initial bytes (spec §4.2).
	synthetic bool
	// viewRange scopes the access to a subresource range, used by the planner to
	// transition only the touched mips/layers (spec §4.4 "Range granularity").
	viewRange rhi.SubresourceRange
}

// resourceLifetime is the lifetime analyzer's output for one transient resource:
// its ordered access list and the [first, last] pass-index interval derived from
// it (spec §4.2).
type resourceLifetime struct {
	accesses []access
}

func (l *resourceLifetime) first() int { return l.accesses[0].passIndex }
func (l *resourceLifetime) last() int  { return l.accesses[len(l.accesses)-1].passIndex }

// lifetimeResult is the full output of analyzeLifetimes: per-resource access
// lists for images and buffers, keyed by handle, containing only resources that
// were actually touched by at least one pass (spec §4.2 edge case: an untouched
// resource is silently excluded, not an error).
type lifetimeResult struct {
	images  map[handle.Handle]*resourceLifetime
	buffers map[handle.Handle]*resourceLifetime
}

// analyzeLifetimes walks the accumulated passes and derives, for every
// transient resource, the ordered list of (pass, access-kind) tuples — C6 of the
// specification (spec §4.2).
func analyzeLifetimes(b *Builder) (*lifetimeResult, error) {
	res := &lifetimeResult{
		images:  make(map[handle.Handle]*resourceLifetime),
		buffers: make(map[handle.Handle]*resourceLifetime),
	}

	record := func(m map[handle.Handle]*resourceLifetime, h handle.Handle, a access) {
		l, ok := m[h]
		if !ok {
			l = &resourceLifetime{}
			m[h] = l
		}
		l.accesses = append(l.accesses, a)
	}

	for _, p := range b.passes {
		if p.params == nil {
			continue
		}
		// hazardStates tracks, per image/buffer touched by *this* pass, which
		// state categories were requested, to catch the read+readwrite-in-one-
		// pass hazard (spec §7 analysis error).
		hazardStates := map[handle.Handle]map[rhi.State]bool{}
		markHazard := func(h handle.Handle, s rhi.State) {
			m, ok := hazardStates[h]
			if !ok {
				m = map[rhi.State]bool{}
				hazardStates[h] = m
			}
			m[s] = true
		}

		for _, attachment := range framebufferAttachmentRefs(b, p) {
			img, ok := b.imgViews[attachment]
			if !ok {
				continue
			}
			entry := b.images[img.image]
			state := rhi.StateColorAttachment
			if entry.desc.Format.IsDepthStencil() {
				state = rhi.StateDepthStencilAttachment
			}
			record(res.images, img.image, access{passIndex: p.index, state: state, viewRange: img.viewRange})
			markHazard(img.image, state)
		}

		for _, m := range p.params.Members() {
			switch m.Kind {
			case MemberTextureSRV:
				v := b.imgViews[m.Handle]
				record(res.images, v.image, access{passIndex: p.index, state: rhi.StateShaderReadOnly, viewRange: v.viewRange})
				markHazard(v.image, rhi.StateShaderReadOnly)
			case MemberTextureUAV:
				v := b.imgViews[m.Handle]
				record(res.images, v.image, access{passIndex: p.index, state: rhi.StateGeneral, viewRange: v.viewRange})
				markHazard(v.image, rhi.StateGeneral)
			case MemberTextureRTV:
				v := b.imgViews[m.Handle]
				entry := b.images[v.image]
				state := rhi.StateColorAttachment
				if entry.desc.Format.IsDepthStencil() {
					state = rhi.StateDepthStencilAttachment
				}
				record(res.images, v.image, access{passIndex: p.index, state: state, viewRange: v.viewRange})
				markHazard(v.image, state)
			case MemberBufferSRV:
				v := b.bufViews[m.Handle]
				record(res.buffers, v.buffer, access{passIndex: p.index, state: rhi.StateShaderReadOnly})
				markHazard(v.buffer, rhi.StateShaderReadOnly)
			case MemberBufferUAV:
				v := b.bufViews[m.Handle]
				record(res.buffers, v.buffer, access{passIndex: p.index, state: rhi.StateGeneral})
				markHazard(v.buffer, rhi.StateGeneral)
			case MemberBufferCBV:
				v := b.bufViews[m.Handle]
				record(res.buffers, v.buffer, access{passIndex: p.index, state: rhi.StateConstantBuffer})
				markHazard(v.buffer, rhi.StateConstantBuffer)
			}
		}

		for h, states := range hazardStates {
			if states[rhi.StateGeneral] && (states[rhi.StateShaderReadOnly] || states[rhi.StateConstantBuffer]) {
				return nil, rgerr.New(rgerr.KindAnalysis,
					fmt.Sprintf("pass %q: resource %s used as both read-only and read-write without an explicit UAV barrier declaration", p.name, h))
			}
		}
	}

	if err := injectSyntheticUploads(b, res); err != nil {
		return nil, err
	}
	if err := rejectUAVAttachmentConflicts(res); err != nil {
		return nil, err
	}

	return res, nil
}

// framebufferAttachmentRefs resolves a pass's singleton framebuffer-attachments
// member (if any) to its constituent image-view handles.
func framebufferAttachmentRefs(b *Builder, p *passDecl) []handle.Handle {
	var out []handle.Handle
	if p.framebuffer == handle.Invalid {
		return out
	}
	fb, ok := b.framebufs[p.framebuffer]
	if !ok {
		return out
	}
	for _, c := range fb.color {
		out = append(out, c.view)
	}
	if fb.depthStencil != nil {
		out = append(out, fb.depthStencil.view)
	}
	return out
}

// injectSyntheticUploads prepends a TransferDst access at the pass index of a
// resource's first real use, for every transient resource created with initial
// bytes (spec §4.2, §4.4).
func injectSyntheticUploads(b *Builder, res *lifetimeResult) error {
	for h, entry := range b.images {
		if entry.external || entry.initialBytes == nil {
			continue
		}
		l, ok := res.images[h]
		if !ok || len(l.accesses) == 0 {
			continue // never accessed; excluded from allocation per spec §4.2 edge case
		}
		first := l.accesses[0]
		synth := access{passIndex: first.passIndex, state: rhi.StateTransferDst, synthetic: true, viewRange: rhi.FullRange}
		l.accesses = append([]access{synth}, l.accesses...)
	}
	for h, entry := range b.buffers {
		if entry.external || entry.initialBytes == nil {
			continue
		}
		l, ok := res.buffers[h]
		if !ok || len(l.accesses) == 0 {
			continue
		}
		first := l.accesses[0]
		synth := access{passIndex: first.passIndex, state: rhi.StateTransferDst, synthetic: true}
		l.accesses = append([]access{synth}, l.accesses...)
	}
	return nil
}

// rejectUAVAttachmentConflicts enforces spec §9's open-question resolution: a
// transient image declared as both UAV and attachment anywhere in the graph is
// rejected at compile time rather than given defined semantics.
func rejectUAVAttachmentConflicts(res *lifetimeResult) error {
	for h, l := range res.images {
		sawUAV, sawAttachment := false, false
		for _, a := range l.accesses {
			if a.state == rhi.StateGeneral {
				sawUAV = true
			}
			if a.state == rhi.StateColorAttachment || a.state == rhi.StateDepthStencilAttachment {
				sawAttachment = true
			}
		}
		if sawUAV && sawAttachment {
			return rgerr.New(rgerr.KindAnalysis,
				fmt.Sprintf("image %s used as both UAV and attachment across the graph; this is undefined and rejected at compile time", h))
		}
	}
	return nil
}
