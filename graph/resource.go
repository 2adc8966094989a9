// Package graph implements the render graph's resource model, builder, lifetime
// analyzer, aliasing allocator, transition planner, descriptor-set builder, and
// executor — C5 through C10 of the specification, the hard part of the system
// (spec §1).
package graph

import (
	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/reflection"
	"github.com/lumenforge/rendergraph/rhi"
)

// imageEntry is the builder-local record for one image handle, transient or
// external (spec §3).
type imageEntry struct {
	desc     rhi.ImageDescription
	external bool
	seq      int // builder-local creation order, used as the allocator's determinism tie-break

	// Transient-only fields.
	initialBytes []byte

	// External-only fields.
	resource    rhi.Image
	inputState  rhi.State
	outputState rhi.State
}

// bufferEntry is the builder-local record for one buffer handle.
type bufferEntry struct {
	desc     rhi.BufferDescription
	external bool
	seq      int

	initialBytes []byte

	resource    rhi.Buffer
	inputState  rhi.State
	outputState rhi.State
}

// viewKind records the access kind a view was created for. The lifetime
// analyzer derives access kinds from the parameter block's MemberKind, not
// from this field.
type viewKind int

const (
	viewSRV viewKind = iota
	viewUAV
	viewCBV
	viewRTV
)

// imageViewEntry is the builder-local record for a typed projection over an
// image resource (spec §3).
type imageViewEntry struct {
	image          handle.Handle
	kind           viewKind
	viewRange      rhi.SubresourceRange
	formatOverride rhi.Format
	hasFormat      bool
}

// bufferViewEntry is the builder-local record for a typed projection over a
// buffer resource.
type bufferViewEntry struct {
	buffer handle.Handle
	kind   viewKind
	offset uint64
	size   uint64
}

// samplerEntry is a builder-local sampler description; samplers have no
// lifetime (they own no device memory allocated by C7) and transition planning
// never touches them.
type samplerEntry struct {
	desc rhi.SamplerDescription
}

// GroupBindingDecl is one binding within a resource-group declaration: a
// (binding-point, kind, view-or-sampler, shader-stage-mask) tuple (spec §3).
type GroupBindingDecl struct {
	Binding   uint32
	Kind      reflection.BindingKind
	StageMask reflection.Stage
	Ref       handle.Handle // image view, buffer view, sampler, or acceleration-structure handle
}

// groupEntry is a resource group (descriptor set) declaration: an ordered list
// of binding tuples built against a declared layout (spec §3).
type groupEntry struct {
	entries []GroupBindingDecl
}

// accelStructureEntry wraps an externally owned acceleration structure; the
// render graph never creates one (spec §3).
type accelStructureEntry struct {
	resource rhi.AccelerationStructure
}

// framebufferEntry is a fixed-capacity ordered attachment list plus dimensions
// (spec §3, §4.7).
type framebufferEntry struct {
	color        []attachmentDecl
	depthStencil *attachmentDecl
	width        uint32
	height       uint32
}

// attachmentDecl is one color or depth-stencil attachment slot.
type attachmentDecl struct {
	view        handle.Handle
	loadClear   bool
	storeResult bool
	clearColor  [4]float32
	clearDepth  float32
}
