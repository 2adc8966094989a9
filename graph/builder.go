package graph

import (
	"fmt"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// ExternalParams carries the input/output state contract for an externally
// owned resource (spec §3, §4.1's register_external_* operations).
type ExternalParams struct {
	InputState  rhi.State
	OutputState rhi.State
}

// Builder accumulates pass declarations: resource creations, external
// registrations, views, resource groups, framebuffer attachments, and the pass
// closures plus their parameter blocks. No GPU or CPU graph work is executed
// here (spec §4.1) — the only state Builder holds is declarative.
//
// A Builder is single-threaded by contract (spec §5): one caller owns it until
// Compile returns, and no handle may be used after Compile is called.
type Builder struct {
	images    map[handle.Handle]*imageEntry
	buffers   map[handle.Handle]*bufferEntry
	imgViews  map[handle.Handle]*imageViewEntry
	bufViews  map[handle.Handle]*bufferViewEntry
	samplers  map[handle.Handle]*samplerEntry
	groups    map[handle.Handle]*groupEntry
	groupHash map[uint64]handle.Handle // structural-hash -> existing group handle, for dedup
	accels    map[handle.Handle]*accelStructureEntry
	framebufs map[handle.Handle]*framebufferEntry

	externalImageKeys  map[rhi.Image]handle.Handle  // idempotent re-registration (spec §4.1)
	externalBufferKeys map[rhi.Buffer]handle.Handle

	passes []*passDecl

	nextSeq int // monotonic, builder-local resource creation counter (determinism tie-break for C7)

	err error // sticky first error; once set, further mutating calls are no-ops
}

// NewBuilder returns an empty Builder ready for resource and pass declarations.
func NewBuilder() *Builder {
	return &Builder{
		images:             make(map[handle.Handle]*imageEntry),
		buffers:            make(map[handle.Handle]*bufferEntry),
		imgViews:           make(map[handle.Handle]*imageViewEntry),
		bufViews:           make(map[handle.Handle]*bufferViewEntry),
		samplers:           make(map[handle.Handle]*samplerEntry),
		groups:             make(map[handle.Handle]*groupEntry),
		groupHash:          make(map[uint64]handle.Handle),
		accels:             make(map[handle.Handle]*accelStructureEntry),
		framebufs:          make(map[handle.Handle]*framebufferEntry),
		externalImageKeys:  make(map[rhi.Image]handle.Handle),
		externalBufferKeys: make(map[rhi.Buffer]handle.Handle),
	}
}

// Err returns the first declaration-time error recorded by the builder, or nil.
// Compile also returns this error; Err lets callers fail fast before reaching
// Compile if they prefer.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(kind rgerr.Kind, context string) handle.Handle {
	if b.err == nil {
		b.err = rgerr.New(kind, context)
	}
	return handle.Invalid
}

func (b *Builder) failed() bool { return b.err != nil }

// CreateImage declares a transient image resource (spec §4.1).
func (b *Builder) CreateImage(desc rhi.ImageDescription) handle.Handle {
	return b.createImage(desc, nil)
}

// CreateImageWithData declares a transient image resource carrying initial
// bytes; the compiler interposes an upload step before its first read (spec §3,
// §4.2).
func (b *Builder) CreateImageWithData(desc rhi.ImageDescription, initial []byte) handle.Handle {
	return b.createImage(desc, initial)
}

func (b *Builder) createImage(desc rhi.ImageDescription, initial []byte) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	if err := validateImageDescription(desc); err != nil {
		return b.fail(rgerr.KindDeclaration, err.Error())
	}
	h := handle.New(handle.KindImage)
	b.images[h] = &imageEntry{desc: desc, initialBytes: initial, seq: b.nextSeq}
	b.nextSeq++
	return h
}

func validateImageDescription(desc rhi.ImageDescription) error {
	maxDim := desc.Width
	if desc.Height > maxDim {
		maxDim = desc.Height
	}
	if desc.Depth > maxDim {
		maxDim = desc.Depth
	}
	maxMips := log2Floor(maxDim) + 1
	if desc.MipCount < 1 || desc.MipCount > maxMips {
		return fmt.Errorf("image %q: mip count %d out of range [1, %d]", desc.Name, desc.MipCount, maxMips)
	}
	if desc.LayerCount < 1 {
		return fmt.Errorf("image %q: layer count must be >= 1", desc.Name)
	}
	if desc.Kind == rhi.ImageKindCube && desc.LayerCount%6 != 0 {
		return fmt.Errorf("image %q: cubemap layer count must be a multiple of 6, got %d", desc.Name, desc.LayerCount)
	}
	return nil
}

func log2Floor(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	var n uint32
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// RegisterExternalImage registers a caller-owned image resource. The graph must
// leave it in params.OutputState on exit (spec §3, §4.4 "Terminal
// reconciliation"). Registering the same resource twice within one build is
// idempotent provided the states agree (spec §4.1); conflicting re-registration
// is a declaration error.
func (b *Builder) RegisterExternalImage(resource rhi.Image, params ExternalParams) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	if existing, ok := b.externalImageKeys[resource]; ok {
		entry := b.images[existing]
		if entry.inputState != params.InputState || entry.outputState != params.OutputState {
			return b.fail(rgerr.KindDeclaration, "external image registered twice with conflicting states")
		}
		return existing
	}
	h := handle.New(handle.KindImage)
	b.images[h] = &imageEntry{
		desc:        resource.Description(),
		external:    true,
		resource:    resource,
		inputState:  params.InputState,
		outputState: params.OutputState,
	}
	b.externalImageKeys[resource] = h
	return h
}

// CreateBuffer declares a transient buffer resource.
func (b *Builder) CreateBuffer(desc rhi.BufferDescription) handle.Handle {
	return b.createBuffer(desc, nil)
}

// CreateBufferWithData declares a transient buffer carrying initial bytes.
func (b *Builder) CreateBufferWithData(desc rhi.BufferDescription, initial []byte) handle.Handle {
	return b.createBuffer(desc, initial)
}

func (b *Builder) createBuffer(desc rhi.BufferDescription, initial []byte) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	if desc.Size == 0 {
		return b.fail(rgerr.KindDeclaration, fmt.Sprintf("buffer %q: size must be > 0", desc.Name))
	}
	h := handle.New(handle.KindBuffer)
	b.buffers[h] = &bufferEntry{desc: desc, initialBytes: initial, seq: b.nextSeq}
	b.nextSeq++
	return h
}

// CreateConstantBuffer is sugar over CreateBuffer for a small uniform-read
// buffer (spec §4.1).
func (b *Builder) CreateConstantBuffer(size uint64, name string) handle.Handle {
	return b.CreateBuffer(rhi.BufferDescription{Size: size, Usage: rhi.UsageConstantBuffer, Name: name})
}

// CreateStructuredBuffer is sugar over CreateBuffer for a read-write storage
// buffer with a known element stride.
func (b *Builder) CreateStructuredBuffer(size uint64, stride uint32, name string) handle.Handle {
	return b.CreateBuffer(rhi.BufferDescription{Size: size, Stride: stride, Usage: rhi.UsageStorage, Name: name})
}

// RegisterExternalBuffer registers a caller-owned buffer resource, mirroring
// RegisterExternalImage's idempotence rule.
func (b *Builder) RegisterExternalBuffer(resource rhi.Buffer, params ExternalParams) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	if existing, ok := b.externalBufferKeys[resource]; ok {
		entry := b.buffers[existing]
		if entry.inputState != params.InputState || entry.outputState != params.OutputState {
			return b.fail(rgerr.KindDeclaration, "external buffer registered twice with conflicting states")
		}
		return existing
	}
	h := handle.New(handle.KindBuffer)
	b.buffers[h] = &bufferEntry{
		desc:        resource.Description(),
		external:    true,
		resource:    resource,
		inputState:  params.InputState,
		outputState: params.OutputState,
	}
	b.externalBufferKeys[resource] = h
	return h
}

func (b *Builder) requireImage(img handle.Handle) (*imageEntry, bool) {
	e, ok := b.images[img]
	return e, ok
}

func (b *Builder) requireBuffer(buf handle.Handle) (*bufferEntry, bool) {
	e, ok := b.buffers[buf]
	return e, ok
}

// createTextureView is shared by the three texture-view constructors below.
func (b *Builder) createTextureView(image handle.Handle, kind viewKind, format *rhi.Format, viewRange *rhi.SubresourceRange) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	if _, ok := b.requireImage(image); !ok {
		return b.fail(rgerr.KindDeclaration, fmt.Sprintf("create view: unknown image handle %s", image))
	}
	entry := imageViewEntry{image: image, kind: kind, viewRange: rhi.FullRange}
	if viewRange != nil {
		entry.viewRange = *viewRange
	}
	if format != nil {
		entry.formatOverride = *format
		entry.hasFormat = true
	}
	h := handle.New(handle.KindImageView)
	b.imgViews[h] = &entry
	return h
}

// CreateTextureSRV creates a read-only shader-resource view over an image.
func (b *Builder) CreateTextureSRV(image handle.Handle, format *rhi.Format, viewRange *rhi.SubresourceRange) handle.Handle {
	return b.createTextureView(image, viewSRV, format, viewRange)
}

// CreateTextureUAV creates a read-write unordered-access view over an image.
func (b *Builder) CreateTextureUAV(image handle.Handle, format *rhi.Format, viewRange *rhi.SubresourceRange) handle.Handle {
	return b.createTextureView(image, viewUAV, format, viewRange)
}

// CreateTextureRTV creates a render-target view over an image.
func (b *Builder) CreateTextureRTV(image handle.Handle, format *rhi.Format, viewRange *rhi.SubresourceRange) handle.Handle {
	return b.createTextureView(image, viewRTV, format, viewRange)
}

func (b *Builder) createBufferView(buf handle.Handle, kind viewKind) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	entry, ok := b.requireBuffer(buf)
	if !ok {
		return b.fail(rgerr.KindDeclaration, fmt.Sprintf("create view: unknown buffer handle %s", buf))
	}
	h := handle.New(handle.KindBufferView)
	b.bufViews[h] = &bufferViewEntry{buffer: buf, kind: kind, offset: 0, size: entry.desc.Size}
	return h
}

// CreateBufferSRV creates a read-only view over a buffer.
func (b *Builder) CreateBufferSRV(buf handle.Handle) handle.Handle { return b.createBufferView(buf, viewSRV) }

// CreateBufferUAV creates a read-write view over a buffer.
func (b *Builder) CreateBufferUAV(buf handle.Handle) handle.Handle { return b.createBufferView(buf, viewUAV) }

// CreateBufferCBV creates a constant-buffer view over a buffer.
func (b *Builder) CreateBufferCBV(buf handle.Handle) handle.Handle { return b.createBufferView(buf, viewCBV) }

// CreateSampler declares a sampler resource.
func (b *Builder) CreateSampler(desc rhi.SamplerDescription) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	h := handle.New(handle.KindSampler)
	b.samplers[h] = &samplerEntry{desc: desc}
	return h
}

// CreateResourceGroup declares a resource group (descriptor set) from an ordered
// list of binding declarations. If a structurally identical group has already
// been declared in this build, the existing handle is returned instead of a new
// one (spec §4.1: "may return a cached handle if a structurally identical
// layout exists").
func (b *Builder) CreateResourceGroup(entries []GroupBindingDecl) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	for _, e := range entries {
		if !b.refKnown(e.Ref) {
			return b.fail(rgerr.KindDeclaration, fmt.Sprintf("resource group: unknown binding reference %s", e.Ref))
		}
	}
	key := hashGroupEntries(entries)
	if existing, ok := b.groupHash[key]; ok {
		return existing
	}
	h := handle.New(handle.KindResourceGroup)
	cp := make([]GroupBindingDecl, len(entries))
	copy(cp, entries)
	b.groups[h] = &groupEntry{entries: cp}
	b.groupHash[key] = h
	return h
}

// hashGroupEntries computes the multiset-hash spec §3 specifies for resource-
// group identity: "the multiset-hash of its entries" — fold_xor makes the result
// independent of declaration order, matching "multiset" rather than "sequence".
func hashGroupEntries(entries []GroupBindingDecl) uint64 {
	var h uint64
	for _, e := range entries {
		eh := uint64(14695981039346656037)
		mix := func(v uint64) { eh ^= v; eh *= 1099511628211 }
		mix(uint64(e.Binding))
		mix(uint64(e.Kind))
		mix(uint64(e.StageMask))
		mix(uint64(e.Ref.Kind()))
		mix(refIdentity(e.Ref))
		h ^= eh
	}
	return h
}

// refIdentity extracts a stable numeric identity from a handle for hashing
// purposes; Handle itself has no exported numeric accessor, so this re-derives
// one from its String form. Handles are process-unique, so this is sufficient
// for build-local structural comparison.
func refIdentity(h handle.Handle) uint64 {
	s := h.String()
	var v uint64
	for i := 0; i < len(s); i++ {
		v = v*131 + uint64(s[i])
	}
	return v
}

// RegisterExternalAccelerationStructure registers a caller-owned acceleration
// structure (spec §3: "Opaque, external only").
func (b *Builder) RegisterExternalAccelerationStructure(as rhi.AccelerationStructure) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	h := handle.New(handle.KindAccelerationStructure)
	b.accels[h] = &accelStructureEntry{resource: as}
	return h
}

// FramebufferAttachment describes one color or depth-stencil slot passed to
// CreateFramebuffer.
type FramebufferAttachment struct {
	View        handle.Handle
	LoadClear   bool
	StoreResult bool
	ClearColor  [4]float32
	ClearDepth  float32
}

// CreateFramebuffer declares a framebuffer: a fixed-capacity ordered color list
// plus an optional depth-stencil attachment, and the render-target width/height
// (spec §3). Exceeding rhi.MaxColorAttachments fails the build (spec §4.1).
func (b *Builder) CreateFramebuffer(width, height uint32, color []FramebufferAttachment, depthStencil *FramebufferAttachment) handle.Handle {
	if b.failed() {
		return handle.Invalid
	}
	if len(color) > rhi.MaxColorAttachments {
		return b.fail(rgerr.KindDeclaration,
			fmt.Sprintf("framebuffer: %d color attachments exceeds cap of %d", len(color), rhi.MaxColorAttachments))
	}
	entry := framebufferEntry{width: width, height: height}
	for _, c := range color {
		if _, ok := b.imgViews[c.View]; !ok {
			return b.fail(rgerr.KindDeclaration, fmt.Sprintf("framebuffer: unknown view handle %s", c.View))
		}
		entry.color = append(entry.color, attachmentDecl{
			view: c.View, loadClear: c.LoadClear, storeResult: c.StoreResult, clearColor: c.ClearColor,
		})
	}
	if depthStencil != nil {
		if _, ok := b.imgViews[depthStencil.View]; !ok {
			return b.fail(rgerr.KindDeclaration, fmt.Sprintf("framebuffer: unknown view handle %s", depthStencil.View))
		}
		entry.depthStencil = &attachmentDecl{
			view: depthStencil.View, loadClear: depthStencil.LoadClear, storeResult: depthStencil.StoreResult,
			clearDepth: depthStencil.ClearDepth,
		}
	}
	h := handle.New(handle.KindFramebuffer)
	b.framebufs[h] = &entry
	return h
}

// BeginGPUMarker enqueues a debug-label push pass (spec §4.1). The pass carries
// no resource dependencies and is excluded from lifetime analysis.
func (b *Builder) BeginGPUMarker(name string) {
	if b.failed() {
		return
	}
	b.appendPass(&passDecl{
		name: "begin_marker:" + name,
		hint: Immediate,
		closure: func(rec rhi.CommandRecorder, _ *PassResources) error {
			rec.PushDebugLabel(name)
			return nil
		},
	})
}

// EndGPUMarker enqueues the matching debug-label pop pass.
func (b *Builder) EndGPUMarker() {
	if b.failed() {
		return
	}
	b.appendPass(&passDecl{
		name: "end_marker",
		hint: Immediate,
		closure: func(rec rhi.CommandRecorder, _ *PassResources) error {
			rec.PopDebugLabel()
			return nil
		},
	})
}

func (b *Builder) appendPass(p *passDecl) {
	p.index = len(b.passes)
	b.passes = append(b.passes, p)
}

// AddPass appends a pass declaration. params may be nil for passes with no
// resource inputs. framebuffer is handle.Invalid for non-raster passes.
// pipelineDesc is nil for Immediate passes that record no pipeline-bound work.
func (b *Builder) AddPass(name string, params *ParameterBlock, hint Hint, framebuffer handle.Handle, pipelineDesc *PipelineDesc, closure PassFunc) {
	if b.failed() {
		return
	}
	if params == nil {
		params = NewParameterBlock()
	}
	for _, m := range params.Members() {
		if !b.memberHandleKnown(m) {
			b.err = rgerr.New(rgerr.KindDeclaration,
				fmt.Sprintf("pass %q: parameter %q references unknown handle %s", name, m.Name, m.Handle))
			return
		}
	}
	if hint == Raster && framebuffer == handle.Invalid {
		b.err = rgerr.New(rgerr.KindDeclaration, fmt.Sprintf("pass %q: Raster hint requires a framebuffer", name))
		return
	}
	b.appendPass(&passDecl{
		name:        name,
		hint:        hint,
		params:      params,
		framebuffer: framebuffer,
		pipeline:    pipelineDesc,
		closure:     closure,
	})
}

func (b *Builder) refKnown(h handle.Handle) bool {
	switch h.Kind() {
	case handle.KindImageView:
		_, ok := b.imgViews[h]
		return ok
	case handle.KindBufferView:
		_, ok := b.bufViews[h]
		return ok
	case handle.KindSampler:
		_, ok := b.samplers[h]
		return ok
	case handle.KindAccelerationStructure:
		_, ok := b.accels[h]
		return ok
	default:
		return false
	}
}

func (b *Builder) memberHandleKnown(m ParamMember) bool {
	switch m.Kind {
	case MemberTextureSRV, MemberTextureUAV, MemberTextureRTV:
		_, ok := b.imgViews[m.Handle]
		return ok
	case MemberBufferSRV, MemberBufferUAV, MemberBufferCBV:
		_, ok := b.bufViews[m.Handle]
		return ok
	case MemberSampler:
		_, ok := b.samplers[m.Handle]
		return ok
	case MemberAccelerationStructure:
		_, ok := b.accels[m.Handle]
		return ok
	default:
		return false
	}
}
