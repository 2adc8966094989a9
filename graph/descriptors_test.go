package graph

import (
	"testing"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/reflection"
	"github.com/lumenforge/rendergraph/rhi"
)

func TestDescriptorBindingKindMapsResourceBearingKinds(t *testing.T) {
	tests := []struct {
		kind   MemberKind
		want   reflection.BindingKind
		wantOK bool
	}{
		{MemberTextureSRV, reflection.BindingTextureSRV, true},
		{MemberTextureUAV, reflection.BindingTextureUAV, true},
		{MemberBufferSRV, reflection.BindingBufferSRV, true},
		{MemberBufferUAV, reflection.BindingBufferUAV, true},
		{MemberBufferCBV, reflection.BindingConstantBuffer, true},
		{MemberSampler, reflection.BindingSampler, true},
		{MemberTextureRTV, 0, false},
		{MemberAccelerationStructure, 0, false},
	}
	for _, tt := range tests {
		got, ok := descriptorBindingKind(tt.kind)
		if ok != tt.wantOK {
			t.Errorf("descriptorBindingKind(%v) ok = %v, want %v", tt.kind, ok, tt.wantOK)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("descriptorBindingKind(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestHashGroupEntriesIsOrderIndependent(t *testing.T) {
	ref1 := handle.New(handle.KindImageView)
	ref2 := handle.New(handle.KindBufferView)

	a := []GroupBindingDecl{
		{Binding: 0, Kind: reflection.BindingTextureSRV, StageMask: reflection.StageFragment, Ref: ref1},
		{Binding: 1, Kind: reflection.BindingConstantBuffer, StageMask: reflection.StageVertex, Ref: ref2},
	}
	b := []GroupBindingDecl{a[1], a[0]}

	if hashGroupEntries(a) != hashGroupEntries(b) {
		t.Fatal("hashGroupEntries is not order-independent for the same multiset of entries")
	}
}

func TestHashGroupEntriesDiffersOnDifferentRef(t *testing.T) {
	ref1 := handle.New(handle.KindImageView)
	ref2 := handle.New(handle.KindImageView)

	a := []GroupBindingDecl{{Binding: 0, Kind: reflection.BindingTextureSRV, Ref: ref1}}
	b := []GroupBindingDecl{{Binding: 0, Kind: reflection.BindingTextureSRV, Ref: ref2}}

	if hashGroupEntries(a) == hashGroupEntries(b) {
		t.Fatal("hashGroupEntries collided for entries referencing distinct handles")
	}
}

func TestFindSetLayoutUsesPipelineLayoutWhenPresent(t *testing.T) {
	want := rhi.DescriptorSetLayout{
		Set:      2,
		Bindings: []rhi.DescriptorLayoutBinding{{Slot: 0, Kind: reflection.BindingTextureSRV, Count: 1}},
	}
	pl := rhi.PipelineLayout{Sets: []rhi.DescriptorSetLayout{want}}

	got := findSetLayout(pl, 2, nil)
	if got.Set != want.Set || len(got.Bindings) != len(want.Bindings) {
		t.Fatalf("findSetLayout returned %+v, want the pipeline-declared layout %+v", got, want)
	}
}

func TestFindSetLayoutDerivesFallbackFromEntries(t *testing.T) {
	ref := handle.New(handle.KindImageView)
	entries := []GroupBindingDecl{
		{Binding: 3, Kind: reflection.BindingTextureUAV, StageMask: reflection.StageCompute, Ref: ref},
	}

	got := findSetLayout(rhi.PipelineLayout{}, 5, entries)

	if got.Set != 5 {
		t.Fatalf("derived layout Set = %d, want 5", got.Set)
	}
	if len(got.Bindings) != 1 || got.Bindings[0].Slot != 3 {
		t.Fatalf("derived layout Bindings = %+v, want a single binding at slot 3", got.Bindings)
	}
}

type fakeView struct{ img rhi.Image }

func (v *fakeView) Image() rhi.Image                       { return v.img }
func (v *fakeView) Range() rhi.SubresourceRange             { return rhi.FullRange }
func (v *fakeView) FormatOverride() (rhi.Format, bool)      { return "", false }

type fakeBufView struct{ buf rhi.Buffer }

func (v *fakeBufView) Buffer() rhi.Buffer { return v.buf }
func (v *fakeBufView) Offset() uint64     { return 0 }
func (v *fakeBufView) Size() uint64       { return 0 }

type fakeSamplerRes struct{}

func (fakeSamplerRes) Description() rhi.SamplerDescription { return rhi.SamplerDescription{} }

func TestBuildDescriptorWritesResolvesEachResourceKind(t *testing.T) {
	imgRef := handle.New(handle.KindImageView)
	bufRef := handle.New(handle.KindBufferView)
	samplerRef := handle.New(handle.KindSampler)

	imageViews := map[handle.Handle]rhi.ImageView{imgRef: &fakeView{}}
	bufferViews := map[handle.Handle]rhi.BufferView{bufRef: &fakeBufView{}}
	samplers := map[handle.Handle]rhi.Sampler{samplerRef: fakeSamplerRes{}}

	entries := []GroupBindingDecl{
		{Binding: 0, Kind: reflection.BindingTextureSRV, Ref: imgRef},
		{Binding: 1, Kind: reflection.BindingConstantBuffer, Ref: bufRef},
		{Binding: 2, Kind: reflection.BindingSampler, Ref: samplerRef},
	}

	writes, err := buildDescriptorWrites(entries, imageViews, bufferViews, samplers)
	if err != nil {
		t.Fatalf("buildDescriptorWrites returned an error: %v", err)
	}
	if len(writes) != 3 {
		t.Fatalf("len(writes) = %d, want 3", len(writes))
	}
	if writes[0].Image == nil {
		t.Error("texture SRV write did not resolve an Image")
	}
	if writes[1].Buffer == nil {
		t.Error("constant buffer write did not resolve a Buffer")
	}
	if writes[2].Sampler == nil {
		t.Error("sampler write did not resolve a Sampler")
	}
}

func TestBuildDescriptorWritesErrorsOnUnresolvedReference(t *testing.T) {
	entries := []GroupBindingDecl{
		{Binding: 0, Kind: reflection.BindingTextureSRV, Ref: handle.New(handle.KindImageView)},
	}
	_, err := buildDescriptorWrites(entries, nil, nil, nil)
	if err == nil {
		t.Fatal("expected an error for a binding whose referenced view is not in the resolved-resource map")
	}
}
