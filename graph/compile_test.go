package graph

import (
	"context"
	"testing"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/pipeline"
	"github.com/lumenforge/rendergraph/rhi"
)

// fakeImage/fakeBuffer/... are the minimal rhi capability-set implementations
// needed to drive Builder.Compile and Graph.Execute end to end without a real
// GPU backend, mirroring the role rhi/wgpubackend plays for the real device.

type fakeImage struct{ desc rhi.ImageDescription }

func (f *fakeImage) Description() rhi.ImageDescription { return f.desc }

type fakeBuffer struct{ desc rhi.BufferDescription }

func (f *fakeBuffer) Description() rhi.BufferDescription { return f.desc }

type fakeImageView struct {
	img   *fakeImage
	rng   rhi.SubresourceRange
	fmt_  rhi.Format
	hasFmt bool
}

func (f *fakeImageView) Image() rhi.Image                    { return f.img }
func (f *fakeImageView) Range() rhi.SubresourceRange          { return f.rng }
func (f *fakeImageView) FormatOverride() (rhi.Format, bool)   { return f.fmt_, f.hasFmt }

type fakeBufferView struct {
	buf    *fakeBuffer
	offset uint64
	size   uint64
}

func (f *fakeBufferView) Buffer() rhi.Buffer { return f.buf }
func (f *fakeBufferView) Offset() uint64     { return f.offset }
func (f *fakeBufferView) Size() uint64       { return f.size }

type fakeSampler struct{ desc rhi.SamplerDescription }

func (f *fakeSampler) Description() rhi.SamplerDescription { return f.desc }

type fakeDescriptorSet struct{ layout rhi.DescriptorSetLayout }

func (f *fakeDescriptorSet) Layout() rhi.DescriptorSetLayout { return f.layout }

type fakeFramebuffer struct{ desc rhi.FramebufferDescription }

func (f *fakeFramebuffer) Description() rhi.FramebufferDescription { return f.desc }

type fakePipeline struct{ layout rhi.PipelineLayout }

func (f *fakePipeline) Layout() rhi.PipelineLayout { return f.layout }

type fakeDeviceMemory struct{ size uint64 }

func (f *fakeDeviceMemory) Size() uint64 { return f.size }

type fakeDevice struct {
	createdImages  int
	createdBuffers int
	stagingBuffers int
}

func (d *fakeDevice) CreateImage(ctx context.Context, desc rhi.ImageDescription) (rhi.Image, error) {
	d.createdImages++
	return &fakeImage{desc: desc}, nil
}

func (d *fakeDevice) CreateBuffer(ctx context.Context, desc rhi.BufferDescription) (rhi.Buffer, error) {
	d.createdBuffers++
	return &fakeBuffer{desc: desc}, nil
}

func (d *fakeDevice) CreateStagingBuffer(data []byte) (rhi.Buffer, error) {
	d.stagingBuffers++
	return &fakeBuffer{desc: rhi.BufferDescription{Size: uint64(len(data)), Name: "staging"}}, nil
}

func (d *fakeDevice) CreateSampler(ctx context.Context, desc rhi.SamplerDescription) (rhi.Sampler, error) {
	return &fakeSampler{desc: desc}, nil
}

func (d *fakeDevice) CreatePipeline(ctx context.Context, layout rhi.PipelineLayout, stages []rhi.ShaderStage, state rhi.FixedFunctionState, fb rhi.FramebufferSignature) (rhi.Pipeline, error) {
	return &fakePipeline{layout: layout}, nil
}

func (d *fakeDevice) FindMemoryType(filter uint32, props rhi.MemoryPropertyFlags) (int, error) {
	return 0, nil
}

func (d *fakeDevice) AllocateDeviceMemory(size uint64, typeIndex int) (rhi.DeviceMemory, error) {
	return &fakeDeviceMemory{size: size}, nil
}

func (d *fakeDevice) BindImageMemory(img rhi.Image, mem rhi.DeviceMemory, offset uint64) error {
	return nil
}

func (d *fakeDevice) BindBufferMemory(buf rhi.Buffer, mem rhi.DeviceMemory, offset uint64) error {
	return nil
}

func (d *fakeDevice) CreateImageView(img rhi.Image, viewRange rhi.SubresourceRange, format rhi.Format, hasFormatOverride bool) (rhi.ImageView, error) {
	return &fakeImageView{img: img.(*fakeImage), rng: viewRange, fmt_: format, hasFmt: hasFormatOverride}, nil
}

func (d *fakeDevice) CreateBufferView(buf rhi.Buffer, offset, size uint64) (rhi.BufferView, error) {
	return &fakeBufferView{buf: buf.(*fakeBuffer), offset: offset, size: size}, nil
}

func (d *fakeDevice) CreateDescriptorSet(layout rhi.DescriptorSetLayout, writes []rhi.DescriptorWrite) (rhi.DescriptorSet, error) {
	return &fakeDescriptorSet{layout: layout}, nil
}

func (d *fakeDevice) CreateFramebuffer(desc rhi.FramebufferDescription) (rhi.Framebuffer, error) {
	return &fakeFramebuffer{desc: desc}, nil
}

func (d *fakeDevice) CreateCommandRecorder() (rhi.CommandRecorder, error) {
	return &fakeRecorder{}, nil
}

func (d *fakeDevice) CreateFence() (rhi.Fence, error) { return &fakeFence{}, nil }

func (d *fakeDevice) CreateSemaphore() (rhi.Semaphore, error) { return &fakeSemaphore{}, nil }

type fakeFence struct{ signaled bool }

func (f *fakeFence) Reset() error          { f.signaled = false; return nil }
func (f *fakeFence) Signaled() (bool, error) { return f.signaled, nil }

type fakeSemaphore struct{}

func (f *fakeSemaphore) Name() string { return "fake-semaphore" }

// fakeRecorder is a no-op rhi.CommandRecorder that just logs call order, enough
// to prove Execute drives the expected sequence without needing a real GPU.
type fakeRecorder struct {
	calls        []string
	barrierBatches [][]rhi.Barrier
}

func (r *fakeRecorder) Begin() error { r.calls = append(r.calls, "Begin"); return nil }
func (r *fakeRecorder) End(fence rhi.Fence) error {
	r.calls = append(r.calls, "End")
	if f, ok := fence.(*fakeFence); ok {
		f.signaled = true
	}
	return nil
}

func (r *fakeRecorder) BeginRenderPass(fb rhi.Framebuffer) error {
	r.calls = append(r.calls, "BeginRenderPass")
	return nil
}
func (r *fakeRecorder) EndRenderPass() error {
	r.calls = append(r.calls, "EndRenderPass")
	return nil
}
func (r *fakeRecorder) SetViewport(x, y, w, h float32, minDepth, maxDepth float32) {
	r.calls = append(r.calls, "SetViewport")
}
func (r *fakeRecorder) SetScissor(x, y, w, h uint32) {
	r.calls = append(r.calls, "SetScissor")
}
func (r *fakeRecorder) BindPipeline(p rhi.Pipeline)                                { r.calls = append(r.calls, "BindPipeline") }
func (r *fakeRecorder) BindDescriptorSet(setIndex uint32, set rhi.DescriptorSet) {
	r.calls = append(r.calls, "BindDescriptorSet")
}
func (r *fakeRecorder) PushConstants(stageMask uint32, offset, size uint32, data []byte) {}
func (r *fakeRecorder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	r.calls = append(r.calls, "Draw")
}
func (r *fakeRecorder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
}
func (r *fakeRecorder) Dispatch(x, y, z uint32) { r.calls = append(r.calls, "Dispatch") }
func (r *fakeRecorder) CopyBufferToImage(src rhi.Buffer, dst rhi.Image, rng rhi.SubresourceRange) {
	r.calls = append(r.calls, "CopyBufferToImage")
}
func (r *fakeRecorder) CopyBuffer(src, dst rhi.Buffer, size uint64) {
	r.calls = append(r.calls, "CopyBuffer")
}
func (r *fakeRecorder) PipelineBarrier(barriers []rhi.Barrier) {
	r.calls = append(r.calls, "PipelineBarrier")
	r.barrierBatches = append(r.barrierBatches, barriers)
}
func (r *fakeRecorder) PushDebugLabel(name string) { r.calls = append(r.calls, "PushDebugLabel:"+name) }
func (r *fakeRecorder) PopDebugLabel()              { r.calls = append(r.calls, "PopDebugLabel") }

func TestCompileEmptyGraphSucceeds(t *testing.T) {
	b := NewBuilder()
	dev := &fakeDevice{}

	g, err := b.Compile(context.Background(), dev, pipeline.NewCache(), pipeline.NewLayoutCache())
	if err != nil {
		t.Fatalf("Compile on an empty builder returned error: %v", err)
	}

	rec := &fakeRecorder{}
	if _, err := g.Execute(rec); err != nil {
		t.Fatalf("Execute on an empty graph returned error: %v", err)
	}
	if rec.calls[0] != "Begin" || rec.calls[len(rec.calls)-1] != "End" {
		t.Fatalf("Execute call sequence missing Begin/End bookends: %v", rec.calls)
	}
}

func TestCompileUntouchedResourceIsNeverMaterialized(t *testing.T) {
	b := NewBuilder()
	b.CreateImage(validImageDesc()) // declared, never used by any pass
	dev := &fakeDevice{}

	_, err := b.Compile(context.Background(), dev, pipeline.NewCache(), pipeline.NewLayoutCache())
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if dev.createdImages != 0 {
		t.Fatalf("createdImages = %d, want 0 for an untouched declared image", dev.createdImages)
	}
}

func TestCompileAndExecuteSimpleRasterPass(t *testing.T) {
	b := NewBuilder()
	color := b.CreateImage(validImageDesc())
	view := b.CreateTextureRTV(color, nil, nil)
	fb := b.CreateFramebuffer(256, 256, []FramebufferAttachment{
		{View: view, LoadClear: true, StoreResult: true},
	}, nil)

	drew := false
	b.AddPass("draw", nil, Raster, fb, &PipelineDesc{}, func(rec rhi.CommandRecorder, pr *PassResources) error {
		drew = true
		rec.Draw(3, 1, 0, 0)
		return nil
	})

	dev := &fakeDevice{}
	g, err := b.Compile(context.Background(), dev, pipeline.NewCache(), pipeline.NewLayoutCache())
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if dev.createdImages != 1 {
		t.Fatalf("createdImages = %d, want 1", dev.createdImages)
	}

	rec := &fakeRecorder{}
	fence, err := g.Execute(rec)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if fence == nil {
		t.Fatal("Execute returned a nil fence")
	}
	if signaled, err := fence.Signaled(); err != nil || !signaled {
		t.Fatalf("fence.Signaled() = (%v, %v), want (true, nil) after End ran", signaled, err)
	}
	if !drew {
		t.Fatal("pass closure never ran")
	}

	wantSeq := []string{"Begin", "PipelineBarrier", "BeginRenderPass", "SetViewport", "SetScissor", "BindPipeline", "Draw", "EndRenderPass", "End"}
	if len(rec.calls) != len(wantSeq) {
		t.Fatalf("call sequence = %v, want %v", rec.calls, wantSeq)
	}
	for i, c := range wantSeq {
		if rec.calls[i] != c {
			t.Fatalf("call[%d] = %q, want %q (full: %v)", i, rec.calls[i], c, rec.calls)
		}
	}
}

func TestCompileReconcilesExternalResourceToOutputState(t *testing.T) {
	b := NewBuilder()
	ext := &fakeImage{desc: validImageDesc()}
	colorHandle := b.RegisterExternalImage(ext, ExternalParams{
		InputState: rhi.StateUndefined, OutputState: rhi.StatePresent,
	})
	view := b.CreateTextureRTV(colorHandle, nil, nil)
	fb := b.CreateFramebuffer(256, 256, []FramebufferAttachment{
		{View: view, LoadClear: true, StoreResult: true},
	}, nil)
	b.AddPass("draw", nil, Raster, fb, &PipelineDesc{}, func(rec rhi.CommandRecorder, pr *PassResources) error {
		return nil
	})

	dev := &fakeDevice{}
	g, err := b.Compile(context.Background(), dev, pipeline.NewCache(), pipeline.NewLayoutCache())
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	rec := &fakeRecorder{}
	if _, err := g.Execute(rec); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(g.terminal) == 0 {
		t.Fatal("expected a terminal barrier reconciling the external image to Present")
	}
	last := g.terminal[len(g.terminal)-1]
	if last.After != rhi.StatePresent {
		t.Fatalf("terminal barrier After = %v, want StatePresent", last.After)
	}
}

func TestCompileIsDeterministicAcrossRebuilds(t *testing.T) {
	build := func() (*Graph, *fakeDevice) {
		b := NewBuilder()
		color := b.CreateImage(validImageDesc())
		view := b.CreateTextureRTV(color, nil, nil)
		fb := b.CreateFramebuffer(256, 256, []FramebufferAttachment{
			{View: view, LoadClear: true, StoreResult: true},
		}, nil)
		b.AddPass("draw", nil, Raster, fb, &PipelineDesc{}, func(rhi.CommandRecorder, *PassResources) error {
			return nil
		})
		dev := &fakeDevice{}
		g, err := b.Compile(context.Background(), dev, pipeline.NewCache(), pipeline.NewLayoutCache())
		if err != nil {
			t.Fatalf("Compile returned error: %v", err)
		}
		return g, dev
	}

	g1, dev1 := build()
	g2, dev2 := build()

	if dev1.createdImages != dev2.createdImages {
		t.Fatalf("createdImages differ across identical rebuilds: %d vs %d", dev1.createdImages, dev2.createdImages)
	}
	if len(g1.steps) != len(g2.steps) {
		t.Fatalf("step count differs across identical rebuilds: %d vs %d", len(g1.steps), len(g2.steps))
	}
}

func TestCompileUploadsInitialBytesViaPrologueOnce(t *testing.T) {
	b := NewBuilder()
	desc := rhi.BufferDescription{Size: 4, Usage: rhi.UsageConstantBuffer, Name: "params"}
	buf := b.CreateBufferWithData(desc, []byte{1, 2, 3, 4})
	view := b.CreateBufferCBV(buf)
	params := NewParameterBlock().AddBufferCBV("params", view)

	b.AddPass("use", params, Immediate, handle.Invalid, nil, func(rhi.CommandRecorder, *PassResources) error {
		return nil
	})

	dev := &fakeDevice{}
	g, err := b.Compile(context.Background(), dev, pipeline.NewCache(), pipeline.NewLayoutCache())
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}

	rec := &fakeRecorder{}
	if _, err := g.Execute(rec); err != nil {
		t.Fatalf("first Execute returned error: %v", err)
	}
	if dev.stagingBuffers != 1 {
		t.Fatalf("stagingBuffers = %d after first Execute, want 1", dev.stagingBuffers)
	}

	rec2 := &fakeRecorder{}
	if _, err := g.Execute(rec2); err != nil {
		t.Fatalf("second Execute returned error: %v", err)
	}
	if dev.stagingBuffers != 1 {
		t.Fatalf("stagingBuffers = %d after second Execute, want still 1 (prologue runs once)", dev.stagingBuffers)
	}
}
