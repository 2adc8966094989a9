package graph

import (
	"context"
	"fmt"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/pipeline"
	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// uploadJob is one pending initial-bytes upload the executor's prologue must
// issue before the first pass records anything (spec §4.2, §4.4).
type uploadJob struct {
	isImage bool
	image   rhi.Image
	buffer  rhi.Buffer
	bytes   []byte
	fullRng rhi.SubresourceRange
}

// compiledStep is one entry in the Graph's execution order: a pass plus the
// barriers to issue ahead of it and the physical resources it was compiled
// against (spec §4.7 "Step list").
type compiledStep struct {
	pass        *passDecl
	barriers    []rhi.Barrier
	resources   *PassResources
	pipeline    rhi.Pipeline
	framebuffer rhi.Framebuffer
}

// Compile runs C6 through C9 over the builder's accumulated declarations and
// returns an executable Graph. Declaration and analysis errors (spec §7) abort
// with no partial graph; the builder remains valid to inspect via Err but must
// not be reused for a new Compile call. Device- and pipeline-level errors
// (allocation, pipeline creation) also abort, but do not corrupt builder state.
func (b *Builder) Compile(ctx context.Context, device rhi.Device, pipelineCache *pipeline.Cache, layoutCache *pipeline.LayoutCache) (*Graph, error) {
	if b.failed() {
		return nil, b.err
	}

	lr, err := analyzeLifetimes(b)
	if err != nil {
		return nil, err
	}

	items := buildAllocItems(b, lr)
	alloc := aliasAllocate(items)

	var mem rhi.DeviceMemory
	if alloc.peak > 0 {
		typeIndex, err := device.FindMemoryType(0xFFFFFFFF, rhi.MemoryDeviceLocal)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindAllocation, "no suitable device-local memory type", err)
		}
		mem, err = device.AllocateDeviceMemory(alloc.peak, typeIndex)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindAllocation, fmt.Sprintf("device memory allocation of %d bytes", alloc.peak), err)
		}
	}

	imageRes := make(map[handle.Handle]rhi.Image, len(b.images))
	bufferRes := make(map[handle.Handle]rhi.Buffer, len(b.buffers))
	var uploads []uploadJob

	for h, entry := range b.images {
		if entry.external {
			imageRes[h] = entry.resource
			continue
		}
		if _, touched := lr.images[h]; !touched {
			continue // declared but never accessed; excluded per spec §4.2 edge case
		}
		img, err := device.CreateImage(ctx, entry.desc)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindAllocation, fmt.Sprintf("image %q", entry.desc.Name), err)
		}
		if placement, ok := alloc.offsets[h]; ok {
			if err := device.BindImageMemory(img, mem, placement.offset); err != nil {
				return nil, rgerr.Wrap(rgerr.KindAllocation, fmt.Sprintf("image %q memory bind", entry.desc.Name), err)
			}
		}
		imageRes[h] = img
		if entry.initialBytes != nil {
			uploads = append(uploads, uploadJob{isImage: true, image: img, bytes: entry.initialBytes, fullRng: rhi.FullRange})
		}
	}

	for h, entry := range b.buffers {
		if entry.external {
			bufferRes[h] = entry.resource
			continue
		}
		if _, touched := lr.buffers[h]; !touched {
			continue
		}
		buf, err := device.CreateBuffer(ctx, entry.desc)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindAllocation, fmt.Sprintf("buffer %q", entry.desc.Name), err)
		}
		if placement, ok := alloc.offsets[h]; ok {
			if err := device.BindBufferMemory(buf, mem, placement.offset); err != nil {
				return nil, rgerr.Wrap(rgerr.KindAllocation, fmt.Sprintf("buffer %q memory bind", entry.desc.Name), err)
			}
		}
		bufferRes[h] = buf
		if entry.initialBytes != nil {
			uploads = append(uploads, uploadJob{isImage: false, buffer: buf, bytes: entry.initialBytes})
		}
	}

	imageViewRes := make(map[handle.Handle]rhi.ImageView, len(b.imgViews))
	for h, entry := range b.imgViews {
		img, ok := imageRes[entry.image]
		if !ok {
			continue // view over an untouched image; never bound by any pass
		}
		var format rhi.Format
		if entry.hasFormat {
			format = entry.formatOverride
		}
		v, err := device.CreateImageView(img, entry.viewRange, format, entry.hasFormat)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("image view %s", h), err)
		}
		imageViewRes[h] = v
	}

	bufferViewRes := make(map[handle.Handle]rhi.BufferView, len(b.bufViews))
	for h, entry := range b.bufViews {
		buf, ok := bufferRes[entry.buffer]
		if !ok {
			continue
		}
		v, err := device.CreateBufferView(buf, entry.offset, entry.size)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("buffer view %s", h), err)
		}
		bufferViewRes[h] = v
	}

	samplerRes := make(map[handle.Handle]rhi.Sampler, len(b.samplers))
	for h, entry := range b.samplers {
		s, err := device.CreateSampler(ctx, entry.desc)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("sampler %s", h), err)
		}
		samplerRes[h] = s
	}

	accelRes := make(map[handle.Handle]rhi.AccelerationStructure, len(b.accels))
	for h, entry := range b.accels {
		accelRes[h] = entry.resource
	}

	framebufferRes := make(map[handle.Handle]rhi.Framebuffer, len(b.framebufs))
	for h, entry := range b.framebufs {
		desc := rhi.FramebufferDescription{Width: entry.width, Height: entry.height}
		for _, c := range entry.color {
			desc.Color = append(desc.Color, rhi.AttachmentDescription{
				View: imageViewRes[c.view], LoadClear: c.loadClear, StoreResult: c.storeResult, ClearColor: c.clearColor,
			})
		}
		if entry.depthStencil != nil {
			desc.DepthStencil = &rhi.AttachmentDescription{
				View: imageViewRes[entry.depthStencil.view], LoadClear: entry.depthStencil.loadClear,
				StoreResult: entry.depthStencil.storeResult, ClearDepth: entry.depthStencil.clearDepth,
			}
		}
		fb, err := device.CreateFramebuffer(desc)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindDeclaration, fmt.Sprintf("framebuffer %s", h), err)
		}
		framebufferRes[h] = fb
	}

	plan, err := planTransitions(b, lr, imageRes, bufferRes)
	if err != nil {
		return nil, err
	}

	descriptorBuildCache := make(map[uint64]rhi.DescriptorSet)
	steps := make([]compiledStep, 0, len(b.passes))

	for _, p := range b.passes {
		step := compiledStep{
			pass:     p,
			barriers: plan.prePass[p.index],
		}

		pr := &PassResources{
			images: imageRes, imageViews: imageViewRes, buffers: bufferRes, bufferViews: bufferViewRes,
			samplers: samplerRes, accels: accelRes, framebuffers: framebufferRes,
		}

		if p.framebuffer != handle.Invalid {
			step.framebuffer = framebufferRes[p.framebuffer]
		}

		if p.pipeline != nil {
			layout, err := pipeline.DeriveLayout(p.pipeline.Stages)
			if err != nil {
				return nil, err
			}
			for i, s := range layout.Sets {
				layout.Sets[i] = layoutCache.Intern(s)
			}
			pr.layout = layout

			fbSig := rhi.FramebufferSignature{}
			if step.framebuffer != nil {
				fbDesc := step.framebuffer.Description()
				for _, c := range fbDesc.Color {
					if c.View != nil {
						if f, ok := c.View.FormatOverride(); ok {
							fbSig.ColorFormats = append(fbSig.ColorFormats, f)
						} else {
							fbSig.ColorFormats = append(fbSig.ColorFormats, c.View.Image().Description().Format)
						}
					}
					fbSig.LoadStoreSig = mixLoadStoreBit(fbSig.LoadStoreSig, c.LoadClear, c.StoreResult)
				}
				if fbDesc.DepthStencil != nil {
					fbSig.HasDepthStencil = true
					fbSig.DepthStencilFmt = fbDesc.DepthStencil.View.Image().Description().Format
					fbSig.LoadStoreSig = mixLoadStoreBit(fbSig.LoadStoreSig, fbDesc.DepthStencil.LoadClear, fbDesc.DepthStencil.StoreResult)
				}
			}

			key := pipeline.Fingerprint(pipeline.Description{
				Stages: p.pipeline.Stages, FixedFunction: p.pipeline.FixedFunction,
				Framebuffer: fbSig, MaxRayRecursionDepth: p.pipeline.MaxRayRecursionDepth,
			})
			pl, err := pipelineCache.GetOrCreate(key, func() (rhi.Pipeline, error) {
				return device.CreatePipeline(ctx, layout, p.pipeline.Stages, p.pipeline.FixedFunction, fbSig)
			})
			if err != nil {
				return nil, err
			}
			step.pipeline = pl

			sets, err := buildPassDescriptorSets(device, p.pipeline.Stages, layout, p, imageViewRes, bufferViewRes, samplerRes, layoutCache, descriptorBuildCache)
			if err != nil {
				return nil, err
			}
			pr.sets = sets
		}

		step.resources = pr
		steps = append(steps, step)
	}

	return &Graph{
		steps:    steps,
		terminal: plan.terminal,
		uploads:  uploads,
		memory:   mem,
		device:   device,
	}, nil
}

// mixLoadStoreBit folds one attachment's (load, store) op pair into a running
// framebuffer-signature hash, in attachment order, so two passes that otherwise
// share formats and sample count but clear/load or store/discard differently
// never collide onto the same cached pipeline (spec §4.6).
func mixLoadStoreBit(h uint64, loadClear, storeResult bool) uint64 {
	var bits uint64
	if loadClear {
		bits |= 1
	}
	if storeResult {
		bits |= 2
	}
	h ^= bits
	h *= 1099511628211
	return h
}
