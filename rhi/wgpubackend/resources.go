package wgpubackend

import (
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/lumenforge/rendergraph/rhi"
)

// Image, Buffer, and the rest of this file are thin value wrappers pairing a wgpu
// object with the rhi.*Description it was created from, so Description() can be
// answered without a round trip to the driver — the same shape as the teacher's
// BindGroupProvider fields, just one object per wrapper instead of one provider
// holding many.

type Image struct {
	desc rhi.ImageDescription
	tex  *wgpu.Texture
}

func (i *Image) Description() rhi.ImageDescription { return i.desc }

// Raw exposes the underlying *wgpu.Texture for a caller that needs to work with
// the texture directly, for example to wrap a swapchain texture as an external rhi.Image (spec §1's external-collaborator
// boundary) without this package needing to know about wgpu.Surface at all.
func (i *Image) Raw() *wgpu.Texture { return i.tex }

// WrapExternalImage lets a caller register a texture it acquired itself, such as
// a swapchain texture, as an rhi.Image, the same shape CreateImage produces, without routing
// through Device.CreateImage (the swapchain owns that texture's lifetime, not this
// backend).
func WrapExternalImage(desc rhi.ImageDescription, tex *wgpu.Texture) *Image {
	return &Image{desc: desc, tex: tex}
}

type Buffer struct {
	desc rhi.BufferDescription
	buf  *wgpu.Buffer
}

func (b *Buffer) Description() rhi.BufferDescription { return b.desc }
func (b *Buffer) Raw() *wgpu.Buffer                  { return b.buf }

type ImageView struct {
	image       *Image
	rng         rhi.SubresourceRange
	format      rhi.Format
	hasOverride bool
	view        *wgpu.TextureView
}

func (v *ImageView) Image() rhi.Image                 { return v.image }
func (v *ImageView) Range() rhi.SubresourceRange       { return v.rng }
func (v *ImageView) FormatOverride() (rhi.Format, bool) { return v.format, v.hasOverride }
func (v *ImageView) Raw() *wgpu.TextureView           { return v.view }

type BufferView struct {
	buffer *Buffer
	offset uint64
	size   uint64
}

func (v *BufferView) Buffer() rhi.Buffer { return v.buffer }
func (v *BufferView) Offset() uint64     { return v.offset }
func (v *BufferView) Size() uint64       { return v.size }

type Sampler struct {
	desc rhi.SamplerDescription
	samp *wgpu.Sampler
}

func (s *Sampler) Description() rhi.SamplerDescription { return s.desc }
func (s *Sampler) Raw() *wgpu.Sampler                  { return s.samp }

type DescriptorSet struct {
	layout rhi.DescriptorSetLayout
	bg     *wgpu.BindGroup
}

func (s *DescriptorSet) Layout() rhi.DescriptorSetLayout { return s.layout }
func (s *DescriptorSet) Raw() *wgpu.BindGroup            { return s.bg }

type Framebuffer struct {
	desc rhi.FramebufferDescription
}

func (f *Framebuffer) Description() rhi.FramebufferDescription { return f.desc }

type Pipeline struct {
	layout  rhi.PipelineLayout
	render  *wgpu.RenderPipeline
	compute *wgpu.ComputePipeline
}

func (p *Pipeline) Layout() rhi.PipelineLayout { return p.layout }

// Fence wraps a wgpu.Queue.OnSubmittedWorkDone registration: CommandRecorder.End
// registers a callback against the submission it just made, and the callback
// flips signaled under mu once the GPU actually finishes that work (spec §5,
// §6). Reset only clears the local flag; it does not cancel or rearm the
// underlying wgpu callback, matching CreateFence's contract that a fresh Fence
// is only ever armed by the End call it is passed to.
type Fence struct {
	mu       sync.Mutex
	signaled bool
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signaled = false
	return nil
}

func (f *Fence) Signaled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled, nil
}

type Semaphore struct {
	name string
}

func (s *Semaphore) Name() string { return s.name }
