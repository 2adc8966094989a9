package graph

import (
	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/rhi"
)

// Hint tells the executor (C10) how to drive a pass: whether to wrap it in a
// render pass, bind a compute/ray-tracing pipeline, or hand the recorder to the
// closure untouched (spec §3, §4.7).
type Hint int

const (
	// Immediate passes invoke their closure directly; the closure records its own
	// commands. Debug-label and other bookkeeping passes use this hint.
	Immediate Hint = iota
	Raster
	Compute
	RayTracing
)

func (h Hint) String() string {
	switch h {
	case Raster:
		return "Raster"
	case Compute:
		return "Compute"
	case RayTracing:
		return "RayTracing"
	default:
		return "Immediate"
	}
}

// PassFunc is a pass's recording closure: given the command recorder and the
// materialized PassResources for this pass, it issues GPU commands (spec §3).
type PassFunc func(rec rhi.CommandRecorder, pr *PassResources) error

// passDecl is the immutable record the builder accumulates per add_pass call
// (spec §3 "Pass declaration"). index is this pass's position in declaration
// order, fixed once appended — the lifetime analyzer and transition planner both
// key off it.
type passDecl struct {
	index       int
	name        string
	hint        Hint
	params      *ParameterBlock
	framebuffer handle.Handle // Invalid if this pass declares no framebuffer
	pipeline    *PipelineDesc // nil for Immediate passes with no GPU pipeline
	closure     PassFunc
}

// PipelineDesc is the shader-stage and fixed-function-state input a Raster,
// Compute, or RayTracing pass supplies so C4 can derive its layout and look up
// (or create) its pipeline object.
type PipelineDesc struct {
	Stages               []rhi.ShaderStage
	FixedFunction        rhi.FixedFunctionState
	MaxRayRecursionDepth uint32
}
