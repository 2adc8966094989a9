// Package rhi expresses the render-hardware-interface as a capability set (spec §9:
// "expressed as a capability set, not a class hierarchy"): a collection of small
// interfaces the render graph core calls against, backend-erased. Two concrete
// implementations are expected to exist (Vulkan, DirectX-12); this module ships one
// reference implementation, rhi/wgpubackend, built on cogentcore/webgpu.
package rhi

import (
	"context"

	"github.com/lumenforge/rendergraph/reflection"
)

// Format names a pixel or vertex-attribute format. The core treats it as opaque and
// forwards it to the backend; the core inspects it only through the depth/stencil
// predicate below and the aliasing allocator's per-texel size estimate.
type Format string

// IsDepthStencil reports whether f names a depth and/or stencil format, which the
// lifetime analyzer uses to pick ColorAttachment vs DepthStencilAttachment access
// kind for an RTV (spec §4.2).
func (f Format) IsDepthStencil() bool {
	switch f {
	case FormatD32Float, FormatD24UnormS8Uint, FormatD16Unorm:
		return true
	default:
		return false
	}
}

const (
	FormatRGBA8Unorm     Format = "rgba8unorm"
	FormatRGBA16Float    Format = "rgba16float"
	FormatRGBA32Float    Format = "rgba32float"
	FormatBGRA8Unorm     Format = "bgra8unorm"
	FormatR8Unorm        Format = "r8unorm"
	FormatD32Float       Format = "d32float"
	FormatD24UnormS8Uint Format = "d24unorm_s8uint"
	FormatD16Unorm       Format = "d16unorm"
)

// ImageKind names the dimensionality of an image resource.
type ImageKind int

const (
	ImageKind1D ImageKind = iota
	ImageKind2D
	ImageKind3D
	ImageKindCube
)

// UsageMask is a bitset of the ways an image or buffer may be used by a pass.
type UsageMask uint32

const (
	UsageSampled UsageMask = 1 << iota
	UsageStorage
	UsageColorAttachment
	UsageDepthStencilAttachment
	UsageTransferSrc
	UsageTransferDst
	UsageAccelerationStructureInput
	UsageVertexBuffer
	UsageIndexBuffer
	UsageConstantBuffer
	UsageHostVisible
)

func (m UsageMask) Has(bit UsageMask) bool { return m&bit != 0 }

// State is a resource's synchronization state, as tracked by the transition
// planner (C8, spec §4.4). The state space is intentionally small and closed so
// that the planner's (old, new) lookup table can be exhaustive.
type State int

const (
	StateUndefined State = iota
	StateGeneral
	StateColorAttachment
	StateDepthStencilAttachment
	StateShaderReadOnly
	StateTransferSrc
	StateTransferDst
	StateConstantBuffer
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "Undefined"
	case StateGeneral:
		return "General"
	case StateColorAttachment:
		return "ColorAttachment"
	case StateDepthStencilAttachment:
		return "DepthStencilAttachment"
	case StateShaderReadOnly:
		return "ShaderReadOnly"
	case StateTransferSrc:
		return "TransferSrc"
	case StateTransferDst:
		return "TransferDst"
	case StateConstantBuffer:
		return "ConstantBuffer"
	case StatePresent:
		return "Present"
	default:
		return "Unknown"
	}
}

// SubresourceRange narrows a transition or view to a mip/layer range, so cubemap
// face generation and mip pyramids can transition subresources independently
// (spec §4.4 "Range granularity").
type SubresourceRange struct {
	MipBase    uint32
	MipCount   uint32
	LayerBase  uint32
	LayerCount uint32
}

// FullRange is the sentinel meaning "the whole resource": its all-ones mip and
// layer counts are passed through unchanged, and a backend reads an all-ones
// count as "every remaining mip/layer".
var FullRange = SubresourceRange{MipCount: ^uint32(0), LayerCount: ^uint32(0)}

// ImageDescription is the attribute set of an image resource (spec §3).
type ImageDescription struct {
	Width, Height, Depth uint32
	Kind                 ImageKind
	Format               Format
	MipCount             uint32
	LayerCount           uint32
	Usage                UsageMask
	Name                 string
}

// BufferDescription is the attribute set of a buffer resource (spec §3).
type BufferDescription struct {
	Size   uint64
	Stride uint32
	Usage  UsageMask
	Name   string
}

// SamplerDescription configures a texture sampler.
type SamplerDescription struct {
	MinFilter, MagFilter string
	AddressModeU         string
	AddressModeV         string
	AddressModeW         string
	MaxAnisotropy        uint32
	Name                 string
}

// Barrier is one synchronization request: a resource transitioning from Before to
// After, optionally scoped to a subresource range (images only; Range is ignored
// for buffers).
type Barrier struct {
	Image  Image  // nil for a buffer barrier
	Buffer Buffer // nil for an image barrier
	Before State
	After  State
	Range  SubresourceRange
}

// AttachmentDescription configures one framebuffer color or depth-stencil slot.
type AttachmentDescription struct {
	View        ImageView
	LoadClear   bool
	StoreResult bool
	ClearColor  [4]float32
	ClearDepth  float32
}

// FramebufferDescription is the fixed-capacity attachment list plus dimensions
// (spec §3, §4.7). MaxColorAttachments bounds Color's length at build time.
type FramebufferDescription struct {
	Color        []AttachmentDescription
	DepthStencil *AttachmentDescription
	Width        uint32
	Height       uint32
}

// MaxColorAttachments is the design-time cap on color attachments per framebuffer
// (spec §4.1: "design-time constant, ≥ 8").
const MaxColorAttachments = 8

// FixedFunctionState is the bit-exact rasterization/depth-stencil/blend state
// folded into the pipeline cache key (spec §4.6).
type FixedFunctionState struct {
	CullMode         string
	FrontFaceCW      bool
	Topology         string
	DepthTestEnable  bool
	DepthWriteEnable bool
	DepthCompare     string
	BlendEnable      bool
	BlendSrcFactor   string
	BlendDstFactor   string
	WriteMask        uint32
}

// MemoryPropertyFlags names the device-memory property requirements for an
// allocation request (spec §6: device.allocate_device_memory).
type MemoryPropertyFlags uint32

const (
	MemoryDeviceLocal MemoryPropertyFlags = 1 << iota
	MemoryHostVisible
	MemoryHostCoherent
)

// Device is the RHI's device-level capability set (spec §6).
type Device interface {
	CreateImage(ctx context.Context, desc ImageDescription) (Image, error)
	CreateBuffer(ctx context.Context, desc BufferDescription) (Buffer, error)
	// CreateStagingBuffer returns a host-visible buffer pre-populated with data,
	// ready to serve as the source of a CopyBufferToImage/CopyBuffer upload
	// (spec §4.2's synthetic upload step).
	CreateStagingBuffer(data []byte) (Buffer, error)
	CreateSampler(ctx context.Context, desc SamplerDescription) (Sampler, error)
	CreatePipeline(ctx context.Context, layout PipelineLayout, stages []ShaderStage, state FixedFunctionState, fb FramebufferSignature) (Pipeline, error)

	FindMemoryType(filter uint32, props MemoryPropertyFlags) (int, error)
	AllocateDeviceMemory(size uint64, typeIndex int) (DeviceMemory, error)
	BindImageMemory(img Image, mem DeviceMemory, offset uint64) error
	BindBufferMemory(buf Buffer, mem DeviceMemory, offset uint64) error

	CreateImageView(img Image, viewRange SubresourceRange, format Format, hasFormatOverride bool) (ImageView, error)
	CreateBufferView(buf Buffer, offset, size uint64) (BufferView, error)

	CreateDescriptorSet(layout DescriptorSetLayout, writes []DescriptorWrite) (DescriptorSet, error)
	CreateFramebuffer(desc FramebufferDescription) (Framebuffer, error)

	CreateCommandRecorder() (CommandRecorder, error)
	CreateFence() (Fence, error)
	CreateSemaphore() (Semaphore, error)
}

// DeviceMemory is an opaque device-memory allocation handle, bound to one or more
// resources at caller-chosen offsets (C7).
type DeviceMemory interface {
	Size() uint64
}

// ShaderStage pairs a reflection record with the compiled module the backend
// needs to build a pipeline stage.
type ShaderStage struct {
	Record reflection.Record
	Module any // backend-specific compiled shader module handle
}

// FramebufferSignature is the part of a framebuffer's shape that participates in
// the pipeline cache key (spec §4.6): the color attachment formats, the
// depth-stencil format and whether one is present, a signature of the
// attachments' load/store ops, and the sample count. Attachment initial/final
// states are not part of it.
type FramebufferSignature struct {
	ColorFormats      []Format
	DepthStencilFmt   Format
	HasDepthStencil   bool
	LoadStoreSig      uint64
	SampleCount       uint32
}

// PipelineLayout is the merged descriptor-set-layout and push-constant-range set
// derived from every shader stage in a pass (spec §4.6).
type PipelineLayout struct {
	Sets          []DescriptorSetLayout
	PushConstants []reflection.PushConstant
}

// DescriptorSetLayout names the binding shape of one descriptor set, derived by
// C4 from the union of reflected bindings across stages.
type DescriptorSetLayout struct {
	Set      uint32
	Bindings []DescriptorLayoutBinding
}

// DescriptorLayoutBinding is one slot in a DescriptorSetLayout.
type DescriptorLayoutBinding struct {
	Slot      uint32
	Kind      reflection.BindingKind
	Count     uint32
	StageMask reflection.Stage
}

// DescriptorWrite binds one physical view/sampler/buffer to a descriptor set slot
// at set-creation time.
type DescriptorWrite struct {
	Slot    uint32
	Image   ImageView
	Buffer  Buffer
	Sampler Sampler
}
