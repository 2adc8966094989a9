package graph

import (
	"testing"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/reflection"
	"github.com/lumenforge/rendergraph/rhi"
)

func validImageDesc() rhi.ImageDescription {
	return rhi.ImageDescription{
		Width: 256, Height: 256, Kind: rhi.ImageKind2D,
		Format: rhi.FormatRGBA8Unorm, MipCount: 1, LayerCount: 1,
		Usage: rhi.UsageSampled, Name: "test",
	}
}

func TestCreateImageRejectsExcessiveMipCount(t *testing.T) {
	b := NewBuilder()
	desc := validImageDesc()
	desc.MipCount = 99
	h := b.CreateImage(desc)

	if h.Valid() {
		t.Fatal("CreateImage accepted an out-of-range mip count")
	}
	if b.Err() == nil {
		t.Fatal("Builder.Err() is nil after an invalid CreateImage call")
	}
}

func TestCreateImageRejectsNonMultipleOfSixCubeLayers(t *testing.T) {
	b := NewBuilder()
	desc := validImageDesc()
	desc.Kind = rhi.ImageKindCube
	desc.LayerCount = 4
	h := b.CreateImage(desc)

	if h.Valid() {
		t.Fatal("CreateImage accepted a cubemap with a non-multiple-of-6 layer count")
	}
}

func TestCreateImageAcceptsValidDescription(t *testing.T) {
	b := NewBuilder()
	h := b.CreateImage(validImageDesc())

	if !h.Valid() {
		t.Fatalf("CreateImage rejected a valid description: %v", b.Err())
	}
	if b.Err() != nil {
		t.Fatalf("Builder.Err() = %v after a valid CreateImage call", b.Err())
	}
}

func TestBuilderStickyErrorShortCircuitsFurtherCalls(t *testing.T) {
	b := NewBuilder()
	bad := validImageDesc()
	bad.MipCount = 0
	b.CreateImage(bad) // records the first error

	firstErr := b.Err()
	h2 := b.CreateImage(validImageDesc()) // should now be a no-op

	if h2.Valid() {
		t.Fatal("a call after the sticky error was recorded still returned a valid handle")
	}
	if b.Err() != firstErr {
		t.Fatal("Builder.Err() changed after the first sticky error was recorded")
	}
}

func TestCreateBufferRejectsZeroSize(t *testing.T) {
	b := NewBuilder()
	h := b.CreateBuffer(rhi.BufferDescription{Size: 0, Name: "empty"})
	if h.Valid() {
		t.Fatal("CreateBuffer accepted a zero-size buffer")
	}
}

type fakeExternalImage struct {
	desc rhi.ImageDescription
}

func (f *fakeExternalImage) Description() rhi.ImageDescription { return f.desc }

func TestRegisterExternalImageIsIdempotentWithAgreeingStates(t *testing.T) {
	b := NewBuilder()
	img := &fakeExternalImage{desc: validImageDesc()}
	params := ExternalParams{InputState: rhi.StateUndefined, OutputState: rhi.StatePresent}

	h1 := b.RegisterExternalImage(img, params)
	h2 := b.RegisterExternalImage(img, params)

	if h1 != h2 {
		t.Fatal("registering the same external image twice with agreeing states returned different handles")
	}
	if b.Err() != nil {
		t.Fatalf("Builder.Err() = %v, want nil", b.Err())
	}
}

func TestRegisterExternalImageRejectsConflictingStates(t *testing.T) {
	b := NewBuilder()
	img := &fakeExternalImage{desc: validImageDesc()}

	b.RegisterExternalImage(img, ExternalParams{InputState: rhi.StateUndefined, OutputState: rhi.StatePresent})
	h2 := b.RegisterExternalImage(img, ExternalParams{InputState: rhi.StateGeneral, OutputState: rhi.StatePresent})

	if h2.Valid() {
		t.Fatal("conflicting re-registration of the same external image should fail")
	}
	if b.Err() == nil {
		t.Fatal("Builder.Err() is nil after a conflicting external re-registration")
	}
}

func TestCreateResourceGroupDedupesStructurallyIdenticalGroups(t *testing.T) {
	b := NewBuilder()
	img := b.CreateImage(validImageDesc())
	view := b.CreateTextureSRV(img, nil, nil)

	entries := []GroupBindingDecl{
		{Binding: 0, Kind: reflection.BindingTextureSRV, StageMask: reflection.StageFragment, Ref: view},
	}

	g1 := b.CreateResourceGroup(entries)
	g2 := b.CreateResourceGroup(entries)

	if g1 != g2 {
		t.Fatal("two structurally identical resource groups were not deduplicated")
	}
}

func TestCreateResourceGroupRejectsUnknownRef(t *testing.T) {
	b := NewBuilder()
	bogus := handle.New(handle.KindImageView) // never registered with this builder
	h := b.CreateResourceGroup([]GroupBindingDecl{
		{Binding: 0, Kind: reflection.BindingTextureSRV, Ref: bogus},
	})
	if h.Valid() {
		t.Fatal("CreateResourceGroup accepted an unknown binding reference")
	}
}

func TestCreateFramebufferRejectsTooManyColorAttachments(t *testing.T) {
	b := NewBuilder()
	img := b.CreateImage(validImageDesc())
	view := b.CreateTextureRTV(img, nil, nil)

	attachments := make([]FramebufferAttachment, rhi.MaxColorAttachments+1)
	for i := range attachments {
		attachments[i] = FramebufferAttachment{View: view}
	}

	h := b.CreateFramebuffer(256, 256, attachments, nil)
	if h.Valid() {
		t.Fatal("CreateFramebuffer accepted more color attachments than the cap")
	}
}

func TestCreateFramebufferRejectsUnknownViewHandle(t *testing.T) {
	b := NewBuilder()
	bogus := handle.New(handle.KindImageView)
	h := b.CreateFramebuffer(256, 256, []FramebufferAttachment{{View: bogus}}, nil)
	if h.Valid() {
		t.Fatal("CreateFramebuffer accepted an unknown view handle")
	}
}

func TestAddPassRasterRequiresFramebuffer(t *testing.T) {
	b := NewBuilder()
	b.AddPass("bad raster", nil, Raster, handle.Invalid, &PipelineDesc{}, func(rhi.CommandRecorder, *PassResources) error {
		return nil
	})
	if b.Err() == nil {
		t.Fatal("AddPass accepted a Raster pass with no framebuffer")
	}
}

func TestAddPassRejectsUnknownParameterHandle(t *testing.T) {
	b := NewBuilder()
	bogus := handle.New(handle.KindImageView)
	params := NewParameterBlock().AddTextureSRV("albedo", bogus)

	b.AddPass("bad params", params, Immediate, handle.Invalid, nil, func(rhi.CommandRecorder, *PassResources) error {
		return nil
	})
	if b.Err() == nil {
		t.Fatal("AddPass accepted a parameter block referencing an unknown handle")
	}
}

func TestAddPassAcceptsValidImmediatePass(t *testing.T) {
	b := NewBuilder()
	called := false
	b.AddPass("marker", nil, Immediate, handle.Invalid, nil, func(rhi.CommandRecorder, *PassResources) error {
		called = true
		return nil
	})
	if b.Err() != nil {
		t.Fatalf("Builder.Err() = %v after a valid AddPass call", b.Err())
	}
	if len(b.passes) != 1 {
		t.Fatalf("len(passes) = %d, want 1", len(b.passes))
	}
	_ = called // exercised only once the pass closure actually runs via Execute
}

func TestBeginEndGPUMarkerAppendImmediatePasses(t *testing.T) {
	b := NewBuilder()
	b.BeginGPUMarker("scope")
	b.EndGPUMarker()

	if len(b.passes) != 2 {
		t.Fatalf("len(passes) = %d, want 2", len(b.passes))
	}
	for _, p := range b.passes {
		if p.hint != Immediate {
			t.Errorf("marker pass hint = %v, want Immediate", p.hint)
		}
	}
}

func TestHintString(t *testing.T) {
	tests := []struct {
		hint Hint
		want string
	}{
		{Immediate, "Immediate"},
		{Raster, "Raster"},
		{Compute, "Compute"},
		{RayTracing, "RayTracing"},
	}
	for _, tt := range tests {
		if got := tt.hint.String(); got != tt.want {
			t.Errorf("Hint(%d).String() = %q, want %q", tt.hint, got, tt.want)
		}
	}
}
