package graph

import "github.com/lumenforge/rendergraph/handle"

// MemberKind identifies the shape of one entry in a ParameterBlock — the set of
// kinds a pass's parameter block can reflect, per spec §4.1.
type MemberKind int

const (
	MemberTextureSRV MemberKind = iota
	MemberTextureUAV
	MemberTextureRTV
	MemberBufferSRV
	MemberBufferUAV
	MemberBufferCBV
	MemberSampler
	MemberAccelerationStructure
)

// ParamMember is one flattened (name, kind, handle) entry of a ParameterBlock, in
// deterministic declaration order (spec §9: "a parameter block is convertible to
// a flat Vec<(name, kind, handle)> with deterministic order").
type ParamMember struct {
	Name   string
	Kind   MemberKind
	Handle handle.Handle
}

// ParameterBlock accumulates a pass's resource inputs. The source engine this
// spec was distilled from builds parameter blocks via a preprocessor macro that
// expands to a compile-time-iterable member list; spec §9 names the
// builder-pattern alternative explicitly ("each add_* call appends an entry") and
// that is what this type implements.
type ParameterBlock struct {
	members []ParamMember
}

// NewParameterBlock returns an empty ParameterBlock ready for Add* calls.
func NewParameterBlock() *ParameterBlock {
	return &ParameterBlock{}
}

func (p *ParameterBlock) add(name string, kind MemberKind, h handle.Handle) *ParameterBlock {
	p.members = append(p.members, ParamMember{Name: name, Kind: kind, Handle: h})
	return p
}

// AddTextureSRV declares a read-only texture binding.
func (p *ParameterBlock) AddTextureSRV(name string, view handle.Handle) *ParameterBlock {
	return p.add(name, MemberTextureSRV, view)
}

// AddTextureUAV declares a read-write texture binding.
func (p *ParameterBlock) AddTextureUAV(name string, view handle.Handle) *ParameterBlock {
	return p.add(name, MemberTextureUAV, view)
}

// AddTextureRTV declares a render-target binding; the lifetime analyzer treats it
// as an attachment access. It does not add the view to any framebuffer's
// attachment list, which CreateFramebuffer alone defines.
func (p *ParameterBlock) AddTextureRTV(name string, view handle.Handle) *ParameterBlock {
	return p.add(name, MemberTextureRTV, view)
}

// AddBufferSRV declares a read-only buffer binding.
func (p *ParameterBlock) AddBufferSRV(name string, view handle.Handle) *ParameterBlock {
	return p.add(name, MemberBufferSRV, view)
}

// AddBufferUAV declares a read-write buffer binding.
func (p *ParameterBlock) AddBufferUAV(name string, view handle.Handle) *ParameterBlock {
	return p.add(name, MemberBufferUAV, view)
}

// AddBufferCBV declares a small uniform-read buffer binding.
func (p *ParameterBlock) AddBufferCBV(name string, view handle.Handle) *ParameterBlock {
	return p.add(name, MemberBufferCBV, view)
}

// AddSampler declares a sampler binding. Samplers never participate in lifetime
// analysis or barrier planning (spec §4.2: "CBV → ConstantBuffer" enumerates the
// resource-bearing kinds; samplers carry no resource state).
func (p *ParameterBlock) AddSampler(name string, sampler handle.Handle) *ParameterBlock {
	return p.add(name, MemberSampler, sampler)
}

// AddAccelerationStructure declares an acceleration-structure binding.
func (p *ParameterBlock) AddAccelerationStructure(name string, as handle.Handle) *ParameterBlock {
	return p.add(name, MemberAccelerationStructure, as)
}

// Members returns the flattened, ordered member list (spec §9's required
// "Vec<(name, kind, handle)> with deterministic order").
func (p *ParameterBlock) Members() []ParamMember {
	return p.members
}
