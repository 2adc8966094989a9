package rhi

// Image is a backend-erased handle to a device image resource.
type Image interface {
	Description() ImageDescription
}

// ImageView is a typed projection over an Image: a mip/layer range and an
// optional format override, materialized only after C7 has bound memory
// (spec §3).
type ImageView interface {
	Image() Image
	Range() SubresourceRange
	FormatOverride() (Format, bool)
}

// Buffer is a backend-erased handle to a device buffer resource.
type Buffer interface {
	Description() BufferDescription
}

// BufferView is a typed projection over a Buffer (SRV/UAV/CBV).
type BufferView interface {
	Buffer() Buffer
	Offset() uint64
	Size() uint64
}

// Sampler is a backend-erased handle to a texture sampler object.
type Sampler interface {
	Description() SamplerDescription
}

// DescriptorSet is a backend-erased handle to a materialized set of resource
// bindings (spec's "resource group").
type DescriptorSet interface {
	Layout() DescriptorSetLayout
}

// Framebuffer is a backend-erased handle to a bundle of attachment views plus a
// width and height, constructed on demand by C9/C10 (spec §3, §4.7).
type Framebuffer interface {
	Description() FramebufferDescription
}

// Pipeline is a backend-erased compiled GPU program plus its fixed-function
// state, memoized by C4.
type Pipeline interface {
	Layout() PipelineLayout
}

// Fence is a GPU-to-CPU signal the caller can poll or wait on once a submission
// completes (spec §6).
type Fence interface {
	Reset() error
	Signaled() (bool, error)
}

// AccelerationStructure is an opaque, external-only handle (spec §3: "Acceleration
// structure: Opaque, external only in the spec."). The render graph never creates
// one; pass closures receive caller-owned instances through
// PassResources.AccelerationStructure, and no descriptor write carries one.
type AccelerationStructure interface {
	Name() string
}

// Semaphore is a GPU-to-GPU binary semaphore used to order submissions across
// queues without CPU involvement (spec §6).
type Semaphore interface {
	Name() string
}

// CommandRecorder is the RHI's command-recording capability set (spec §6). The
// executor (C10) drives it; user pass closures receive the same recorder so they
// can issue draw/dispatch calls directly.
type CommandRecorder interface {
	Begin() error
	// End finishes and submits the recorded command buffer. If fence is non-nil,
	// the backend registers it to flip to signaled once the submission actually
	// completes on the GPU, so the caller can pipeline submit/wait across frames
	// (spec §5, §6: fences are exposed at the executor boundary). A nil fence
	// means the caller does not need completion tracking for this submission.
	End(fence Fence) error

	BeginRenderPass(fb Framebuffer) error
	EndRenderPass() error
	SetViewport(x, y, w, h float32, minDepth, maxDepth float32)
	SetScissor(x, y, w, h uint32)

	BindPipeline(p Pipeline)
	BindDescriptorSet(setIndex uint32, set DescriptorSet)
	PushConstants(stageMask uint32, offset, size uint32, data []byte)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	Dispatch(groupCountX, groupCountY, groupCountZ uint32)

	CopyBufferToImage(src Buffer, dst Image, range_ SubresourceRange)
	CopyBuffer(src, dst Buffer, size uint64)

	PipelineBarrier(barriers []Barrier)

	PushDebugLabel(name string)
	PopDebugLabel()
}
