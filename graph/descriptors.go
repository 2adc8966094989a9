package graph

import (
	"fmt"
	"sort"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/pipeline"
	"github.com/lumenforge/rendergraph/reflection"
	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// PassResources is the read-only, per-pass view a PassFunc closure receives: the
// materialized physical resource behind every handle the pass declared, plus the
// descriptor sets C9 built for its pipeline's reflected binding sets (spec §3,
// §4.5). It is assembled for each pass by Builder.Compile and is not safe to
// retain past the closure call.
type PassResources struct {
	images       map[handle.Handle]rhi.Image
	imageViews   map[handle.Handle]rhi.ImageView
	buffers      map[handle.Handle]rhi.Buffer
	bufferViews  map[handle.Handle]rhi.BufferView
	samplers     map[handle.Handle]rhi.Sampler
	accels       map[handle.Handle]rhi.AccelerationStructure
	framebuffers map[handle.Handle]rhi.Framebuffer
	sets         map[uint32]rhi.DescriptorSet
	layout       rhi.PipelineLayout
}

func (pr *PassResources) Image(h handle.Handle) (rhi.Image, bool) {
	v, ok := pr.images[h]
	return v, ok
}

func (pr *PassResources) ImageView(h handle.Handle) (rhi.ImageView, bool) {
	v, ok := pr.imageViews[h]
	return v, ok
}

func (pr *PassResources) Buffer(h handle.Handle) (rhi.Buffer, bool) {
	v, ok := pr.buffers[h]
	return v, ok
}

func (pr *PassResources) BufferView(h handle.Handle) (rhi.BufferView, bool) {
	v, ok := pr.bufferViews[h]
	return v, ok
}

func (pr *PassResources) Sampler(h handle.Handle) (rhi.Sampler, bool) {
	v, ok := pr.samplers[h]
	return v, ok
}

func (pr *PassResources) AccelerationStructure(h handle.Handle) (rhi.AccelerationStructure, bool) {
	v, ok := pr.accels[h]
	return v, ok
}

func (pr *PassResources) Framebuffer(h handle.Handle) (rhi.Framebuffer, bool) {
	v, ok := pr.framebuffers[h]
	return v, ok
}

// DescriptorSet returns the descriptor set C9 bound at setIndex for this pass, if
// the closure needs to issue a manual BindDescriptorSet call (the executor has
// already bound every set before invoking the closure; this exists for closures
// that rebind mid-pass, e.g. multi-material draw loops).
func (pr *PassResources) DescriptorSet(setIndex uint32) (rhi.DescriptorSet, bool) {
	v, ok := pr.sets[setIndex]
	return v, ok
}

// PushConstants validates data against the named push-constant range in the
// pass's bound pipeline layout — size must match exactly — then records the push
// (spec §4.5: "push-constant validation against the currently bound pipeline").
func (pr *PassResources) PushConstants(rec rhi.CommandRecorder, name string, data []byte) error {
	for _, pc := range pr.layout.PushConstants {
		if pc.Name != name {
			continue
		}
		if uint32(len(data)) != pc.Size {
			return rgerr.New(rgerr.KindDeclaration,
				fmt.Sprintf("push constant %q: got %d bytes, pipeline layout declares %d", name, len(data), pc.Size))
		}
		rec.PushConstants(uint32(pc.StageMask), 0, pc.Size, data)
		return nil
	}
	return rgerr.New(rgerr.KindDeclaration, fmt.Sprintf("push constant %q not found in this pass's pipeline layout", name))
}

// descriptorBindingKind maps a parameter-block member kind to the reflection
// binding kind it must match by name in the pass's shader bindings. Render-target
// members (MemberTextureRTV) and the framebuffer-attachments singleton are never
// descriptor-set bindings — they reach the GPU through BeginRenderPass instead —
// so they report ok=false.
func descriptorBindingKind(k MemberKind) (reflection.BindingKind, bool) {
	switch k {
	case MemberTextureSRV:
		return reflection.BindingTextureSRV, true
	case MemberTextureUAV:
		return reflection.BindingTextureUAV, true
	case MemberBufferSRV:
		return reflection.BindingBufferSRV, true
	case MemberBufferUAV:
		return reflection.BindingBufferUAV, true
	case MemberBufferCBV:
		return reflection.BindingConstantBuffer, true
	case MemberSampler:
		return reflection.BindingSampler, true
	default:
		// Acceleration structures are bound directly by the closure (the RHI's
		// DescriptorWrite has no acceleration-structure slot — ray-tracing
		// backends typically bind the top-level structure as a dedicated root
		// argument rather than a descriptor write), so they are resolved via
		// PassResources.AccelerationStructure instead of a descriptor set.
		return 0, false
	}
}

// buildPassDescriptorSets groups a pass's parameter-block members by the
// descriptor-set index their shader reflection binding declares, and returns one
// materialized rhi.DescriptorSet per touched set index. This is C9.
//
// Identical binding sets — by structural multiset hash, same rule as
// Builder.CreateResourceGroup (spec §3, §4.5) — are created on the device at
// most once per compile; buildCache is the build-local cache the spec calls for,
// shared across every pass compiled in one Builder.Compile call.
func buildPassDescriptorSets(
	device rhi.Device,
	stages []rhi.ShaderStage,
	pipelineLayout rhi.PipelineLayout,
	p *passDecl,
	imageViewRes map[handle.Handle]rhi.ImageView,
	bufferViewRes map[handle.Handle]rhi.BufferView,
	samplerRes map[handle.Handle]rhi.Sampler,
	layoutCache *pipeline.LayoutCache,
	buildCache map[uint64]rhi.DescriptorSet,
) (map[uint32]rhi.DescriptorSet, error) {
	bindingByName := map[string]reflection.Binding{}
	for _, st := range stages {
		for _, b := range st.Record.Bindings {
			bindingByName[b.Name] = b
		}
	}

	grouped := map[uint32][]GroupBindingDecl{}
	for _, m := range p.params.Members() {
		bk, ok := descriptorBindingKind(m.Kind)
		if !ok {
			continue
		}
		rb, ok := bindingByName[m.Name]
		if !ok {
			return nil, rgerr.New(rgerr.KindDeclaration,
				fmt.Sprintf("pass %q: parameter %q has no matching binding in its pipeline's shader reflection", p.name, m.Name))
		}
		grouped[rb.Set] = append(grouped[rb.Set], GroupBindingDecl{
			Binding: rb.Slot, Kind: bk, StageMask: rb.Stage, Ref: m.Handle,
		})
	}

	setIndices := make([]uint32, 0, len(grouped))
	for s := range grouped {
		setIndices = append(setIndices, s)
	}
	sort.Slice(setIndices, func(i, j int) bool { return setIndices[i] < setIndices[j] })

	result := make(map[uint32]rhi.DescriptorSet, len(setIndices))
	for _, setIndex := range setIndices {
		entries := grouped[setIndex]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })

		key := hashGroupEntries(entries)
		if existing, ok := buildCache[key]; ok {
			result[setIndex] = existing
			continue
		}

		layout := findSetLayout(pipelineLayout, setIndex, entries)
		layout = layoutCache.Intern(layout)

		writes, err := buildDescriptorWrites(entries, imageViewRes, bufferViewRes, samplerRes)
		if err != nil {
			return nil, err
		}

		set, err := device.CreateDescriptorSet(layout, writes)
		if err != nil {
			return nil, rgerr.Wrap(rgerr.KindPipeline, fmt.Sprintf("pass %q: descriptor set %d", p.name, setIndex), err)
		}
		buildCache[key] = set
		result[setIndex] = set
	}

	return result, nil
}

// findSetLayout returns the DescriptorSetLayout the pipeline layout declares for
// setIndex, falling back to one derived directly from entries if the pipeline
// layout has no bindings at that index (a pass whose shaders declare no bindings
// in a set that the group declaration still names explicitly).
func findSetLayout(pipelineLayout rhi.PipelineLayout, setIndex uint32, entries []GroupBindingDecl) rhi.DescriptorSetLayout {
	for _, s := range pipelineLayout.Sets {
		if s.Set == setIndex {
			return s
		}
	}
	bindings := make([]rhi.DescriptorLayoutBinding, 0, len(entries))
	for _, e := range entries {
		bindings = append(bindings, rhi.DescriptorLayoutBinding{Slot: e.Binding, Kind: e.Kind, Count: 1, StageMask: e.StageMask})
	}
	return rhi.DescriptorSetLayout{Set: setIndex, Bindings: bindings}
}

// buildDescriptorWrites resolves each binding's referenced image view, buffer
// view, or sampler handle to the physical object the device call needs.
func buildDescriptorWrites(
	entries []GroupBindingDecl,
	imageViewRes map[handle.Handle]rhi.ImageView,
	bufferViewRes map[handle.Handle]rhi.BufferView,
	samplerRes map[handle.Handle]rhi.Sampler,
) ([]rhi.DescriptorWrite, error) {
	writes := make([]rhi.DescriptorWrite, 0, len(entries))
	for _, e := range entries {
		w := rhi.DescriptorWrite{Slot: e.Binding}
		switch e.Kind {
		case reflection.BindingTextureSRV, reflection.BindingTextureUAV:
			v, ok := imageViewRes[e.Ref]
			if !ok {
				return nil, rgerr.New(rgerr.KindDeclaration, fmt.Sprintf("descriptor write: unresolved image view %s", e.Ref))
			}
			w.Image = v
		case reflection.BindingBufferSRV, reflection.BindingBufferUAV, reflection.BindingConstantBuffer:
			v, ok := bufferViewRes[e.Ref]
			if !ok {
				return nil, rgerr.New(rgerr.KindDeclaration, fmt.Sprintf("descriptor write: unresolved buffer view %s", e.Ref))
			}
			w.Buffer = v.Buffer()
		case reflection.BindingSampler:
			v, ok := samplerRes[e.Ref]
			if !ok {
				return nil, rgerr.New(rgerr.KindDeclaration, fmt.Sprintf("descriptor write: unresolved sampler %s", e.Ref))
			}
			w.Sampler = v
		}
		writes = append(writes, w)
	}
	return writes, nil
}
