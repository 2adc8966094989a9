package graph

import (
	"testing"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/rhi"
)

func TestAnalyzeLifetimesRejectsReadAndReadWriteInSamePass(t *testing.T) {
	b := NewBuilder()
	img := b.CreateImage(validImageDesc())
	srv := b.CreateTextureSRV(img, nil, nil)
	uav := b.CreateTextureUAV(img, nil, nil)

	params := NewParameterBlock().AddTextureSRV("src", srv).AddTextureUAV("dst", uav)
	b.AddPass("conflict", params, Compute, handle.Invalid, nil, func(rhi.CommandRecorder, *PassResources) error {
		return nil
	})
	if b.Err() != nil {
		t.Fatalf("Builder.Err() = %v after declaring the pass", b.Err())
	}

	if _, err := analyzeLifetimes(b); err == nil {
		t.Fatal("expected an analysis error for a resource used as both SRV and UAV in the same pass")
	}
}

func TestAnalyzeLifetimesAllowsReadAndReadWriteAcrossDifferentPasses(t *testing.T) {
	b := NewBuilder()
	img := b.CreateImage(validImageDesc())
	srv := b.CreateTextureSRV(img, nil, nil)
	uav := b.CreateTextureUAV(img, nil, nil)

	b.AddPass("write", NewParameterBlock().AddTextureUAV("dst", uav), Compute, handle.Invalid, nil,
		func(rhi.CommandRecorder, *PassResources) error { return nil })
	b.AddPass("read", NewParameterBlock().AddTextureSRV("src", srv), Compute, handle.Invalid, nil,
		func(rhi.CommandRecorder, *PassResources) error { return nil })

	if _, err := analyzeLifetimes(b); err != nil {
		t.Fatalf("analyzeLifetimes rejected a read/read-write split across two passes: %v", err)
	}
}

func TestAnalyzeLifetimesRejectsUAVAttachmentConflictAcrossGraph(t *testing.T) {
	b := NewBuilder()
	img := b.CreateImage(validImageDesc())
	uav := b.CreateTextureUAV(img, nil, nil)
	rtv := b.CreateTextureRTV(img, nil, nil)
	fb := b.CreateFramebuffer(256, 256, []FramebufferAttachment{{View: rtv}}, nil)

	b.AddPass("compute", NewParameterBlock().AddTextureUAV("dst", uav), Compute, handle.Invalid, nil,
		func(rhi.CommandRecorder, *PassResources) error { return nil })
	b.AddPass("raster", nil, Raster, fb, &PipelineDesc{}, func(rhi.CommandRecorder, *PassResources) error {
		return nil
	})

	if b.Err() != nil {
		t.Fatalf("Builder.Err() = %v while declaring the conflicting graph", b.Err())
	}
	if _, err := analyzeLifetimes(b); err == nil {
		t.Fatal("expected an analysis error for an image used as both UAV and attachment across the graph")
	}
}

func TestAnalyzeLifetimesExcludesUntouchedResources(t *testing.T) {
	b := NewBuilder()
	b.CreateImage(validImageDesc()) // never referenced by any pass

	res, err := analyzeLifetimes(b)
	if err != nil {
		t.Fatalf("analyzeLifetimes returned an error for a graph with only an untouched resource: %v", err)
	}
	if len(res.images) != 0 {
		t.Fatalf("len(res.images) = %d, want 0 (untouched resource must be excluded)", len(res.images))
	}
}

func TestInjectSyntheticUploadsPrependsTransferDstOnce(t *testing.T) {
	b := NewBuilder()
	img := b.CreateImageWithData(validImageDesc(), []byte{1, 2, 3, 4})
	srv := b.CreateTextureSRV(img, nil, nil)
	b.AddPass("use", NewParameterBlock().AddTextureSRV("src", srv), Compute, handle.Invalid, nil,
		func(rhi.CommandRecorder, *PassResources) error { return nil })

	res, err := analyzeLifetimes(b)
	if err != nil {
		t.Fatalf("analyzeLifetimes returned an error: %v", err)
	}
	l := res.images[img]
	if l == nil || len(l.accesses) == 0 {
		t.Fatal("expected at least one recorded access for the uploaded image")
	}
	if !l.accesses[0].synthetic || l.accesses[0].state != rhi.StateTransferDst {
		t.Fatalf("first access = %+v, want a synthetic TransferDst prologue", l.accesses[0])
	}
}
