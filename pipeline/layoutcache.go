package pipeline

import (
	"sync"

	"github.com/lumenforge/rendergraph/rhi"
)

// layoutFingerprint structurally hashes a DescriptorSetLayout so that two passes
// which derive the same binding shape share one backend descriptor-set-layout
// object, per spec §9 ("All three caches are keyed by structural hashes").
func layoutFingerprint(l rhi.DescriptorSetLayout) uint64 {
	h := uint64(14695981039346656037)
	mix := func(v uint64) { h ^= v; h *= 1099511628211 }
	mix(uint64(l.Set))
	for _, b := range l.Bindings {
		mix(uint64(b.Slot))
		mix(uint64(b.Kind))
		mix(uint64(b.Count))
		mix(uint64(b.StageMask))
	}
	return h
}

// LayoutCache is the process-wide descriptor-set-layout cache (spec §9): layout
// objects are expensive to create on some backends and are reused across every
// graph compiled during the renderer's lifetime, not just within one frame.
type LayoutCache struct {
	mu    sync.Mutex
	byKey map[uint64]rhi.DescriptorSetLayout
}

// NewLayoutCache returns an empty, ready-to-use LayoutCache.
func NewLayoutCache() *LayoutCache {
	return &LayoutCache{byKey: make(map[uint64]rhi.DescriptorSetLayout)}
}

// Intern returns the canonical LayoutCache-owned copy of a structurally
// identical layout, registering l if this is the first time its shape has been
// seen.
func (c *LayoutCache) Intern(l rhi.DescriptorSetLayout) rhi.DescriptorSetLayout {
	key := layoutFingerprint(l)
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byKey[key]; ok {
		return existing
	}
	c.byKey[key] = l
	return l
}
