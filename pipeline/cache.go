// Package pipeline combines the reflection records of a pass's shaders into a
// pipeline layout and memoizes the compiled pipeline object against a structural
// fingerprint of (shaders, fixed-function state, framebuffer signature) — C4 of
// the render graph (spec §4.6). The cache is process-wide shared state, mirroring
// the teacher's renderer.pipelineCache guarded by a single mutex
// (engine/renderer/renderer.go), but keyed by the spec's 64-bit fingerprint
// instead of a caller-supplied string so that two structurally identical pipeline
// descriptions always collide onto one GPU object.
package pipeline

import (
	"sync"

	"github.com/lumenforge/rendergraph/reflection"
	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// Key is the 64-bit structural fingerprint described in spec §4.6.
type Key uint64

// Description is the description-time input to DeriveLayout/Fingerprint: the
// shader stages in a pass, the fixed-function state, the framebuffer signature,
// and (ray tracing only) the maximum recursion depth.
type Description struct {
	Stages              []rhi.ShaderStage
	FixedFunction       rhi.FixedFunctionState
	Framebuffer         rhi.FramebufferSignature
	MaxRayRecursionDepth uint32
}

// Fingerprint computes the Key for a Description per spec §4.6: shader
// entry-point hashes, fixed-function state bit-exact, framebuffer attachment
// signature, and ray-recursion depth.
func Fingerprint(d Description) Key {
	h := uint64(14695981039346656037)
	mix := func(v uint64) { h ^= v; h *= 1099511628211 }
	mixStr := func(s string) {
		for i := 0; i < len(s); i++ {
			mix(uint64(s[i]))
		}
	}

	for _, st := range d.Stages {
		mix(st.Record.Fingerprint())
	}
	mixStr(d.FixedFunction.CullMode)
	mix(boolBit(d.FixedFunction.FrontFaceCW))
	mixStr(d.FixedFunction.Topology)
	mix(boolBit(d.FixedFunction.DepthTestEnable))
	mix(boolBit(d.FixedFunction.DepthWriteEnable))
	mixStr(d.FixedFunction.DepthCompare)
	mix(boolBit(d.FixedFunction.BlendEnable))
	mixStr(d.FixedFunction.BlendSrcFactor)
	mixStr(d.FixedFunction.BlendDstFactor)
	mix(uint64(d.FixedFunction.WriteMask))

	for _, f := range d.Framebuffer.ColorFormats {
		mixStr(string(f))
	}
	mixStr(string(d.Framebuffer.DepthStencilFmt))
	mix(boolBit(d.Framebuffer.HasDepthStencil))
	mix(d.Framebuffer.LoadStoreSig)
	mix(uint64(d.Framebuffer.SampleCount))
	mix(uint64(d.MaxRayRecursionDepth))

	return Key(h)
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// DeriveLayout merges the reflection records of every stage in a pass into one
// PipelineLayout: for a binding present in multiple stages the stage masks are
// unioned, and push constants of the same name must agree on size across stages
// (spec §4.6).
func DeriveLayout(stages []rhi.ShaderStage) (rhi.PipelineLayout, error) {
	type slot struct {
		set, binding uint32
	}
	bySet := map[uint32]map[uint32]rhi.DescriptorLayoutBinding{}
	setOrder := []uint32{}

	for _, st := range stages {
		for _, b := range st.Record.Bindings {
			m, ok := bySet[b.Set]
			if !ok {
				m = map[uint32]rhi.DescriptorLayoutBinding{}
				bySet[b.Set] = m
				setOrder = append(setOrder, b.Set)
			}
			if existing, ok := m[b.Slot]; ok {
				existing.StageMask |= b.Stage
				m[b.Slot] = existing
				continue
			}
			m[b.Slot] = rhi.DescriptorLayoutBinding{
				Slot:      b.Slot,
				Kind:      b.Kind,
				Count:     max1(b.ElementCount),
				StageMask: b.Stage,
			}
		}
	}

	layout := rhi.PipelineLayout{}
	for _, set := range setOrder {
		bindings := bySet[set]
		ordered := make([]rhi.DescriptorLayoutBinding, 0, len(bindings))
		for slotIdx := range bindings {
			ordered = append(ordered, bindings[slotIdx])
		}
		sortBindings(ordered)
		layout.Sets = append(layout.Sets, rhi.DescriptorSetLayout{Set: set, Bindings: ordered})
	}

	pcByName := map[string]*reflection.PushConstant{}
	pcOrder := []string{}
	for _, st := range stages {
		for _, pc := range st.Record.PushConstants {
			if existing, ok := pcByName[pc.Name]; ok {
				if existing.Size != pc.Size {
					return rhi.PipelineLayout{}, rgerr.New(rgerr.KindPipeline,
						"push constant \""+pc.Name+"\" has mismatched size across stages")
				}
				existing.StageMask |= pc.StageMask
				continue
			}
			cp := pc
			pcByName[pc.Name] = &cp
			pcOrder = append(pcOrder, pc.Name)
		}
	}
	for _, name := range pcOrder {
		layout.PushConstants = append(layout.PushConstants, *pcByName[name])
	}

	return layout, nil
}

func max1(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

// sortBindings orders a descriptor-set-layout's bindings by slot for determinism;
// a tiny insertion sort avoids pulling in sort for what is always a short slice.
func sortBindings(b []rhi.DescriptorLayoutBinding) {
	for i := 1; i < len(b); i++ {
		for j := i; j > 0 && b[j].Slot < b[j-1].Slot; j-- {
			b[j], b[j-1] = b[j-1], b[j]
		}
	}
}

// Cache is the process-wide pipeline object cache (spec §5: "process-wide shared
// state; mutation paths... must be serialized under a lock. Their lookups are
// read-mostly."). It is created once at renderer initialize time and torn down
// at shutdown; the render graph holds a reference to it across frames.
type Cache struct {
	mu    sync.RWMutex
	byKey map[Key]rhi.Pipeline
}

// NewCache returns an empty, ready-to-use Cache.
func NewCache() *Cache {
	return &Cache{byKey: make(map[Key]rhi.Pipeline)}
}

// GetOrCreate returns the cached pipeline for key, creating it via create on a
// cache miss. The read path takes the cache's read lock; only a miss escalates
// to the write lock, keeping the common case lock-cheap.
func (c *Cache) GetOrCreate(key Key, create func() (rhi.Pipeline, error)) (rhi.Pipeline, error) {
	c.mu.RLock()
	if p, ok := c.byKey[key]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byKey[key]; ok {
		return p, nil
	}
	p, err := create()
	if err != nil {
		return nil, rgerr.Wrap(rgerr.KindPipeline, "pipeline creation failed", err)
	}
	c.byKey[key] = p
	return p, nil
}

// Len reports the number of distinct pipelines currently cached, for tests and
// diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}
