package graph

import (
	"fmt"
	"sort"

	"github.com/lumenforge/rendergraph/handle"
	"github.com/lumenforge/rendergraph/rgerr"
	"github.com/lumenforge/rendergraph/rhi"
)

// isHubState reports whether s is one of the three states every other state can
// transition to/from directly: Undefined (the initial state), ShaderReadOnly
// (the common post-use state for sampled resources), and Present (the terminal
// state for swapchain-style externals). Spec §4.4 enumerates the matrix as pairs
// between a "usage" state and one of these three; encoding the rule as a
// predicate rather than writing out every pair keeps the switch exhaustive
// without duplicating the same row six times.
func isHubState(s rhi.State) bool {
	switch s {
	case rhi.StateUndefined, rhi.StateShaderReadOnly, rhi.StatePresent:
		return true
	default:
		return false
	}
}

// validateTransition implements the (old, new) lookup table of spec §4.4 as a
// compile-time-exhaustive match (spec §9's recommended encoding), rather than a
// dynamic map. Every pair where either side is a hub state is defined, as is
// TransferDst→ConstantBuffer (the first read of an uploaded constant buffer);
// the one same-state pair the spec calls out explicitly, General→General, is the
// mandated UAV-hazard barrier (spec §9 open question); every other identity
// pair is elided before reaching this function. Anything else is the fatal
// "unknown pair" error spec §4.4 requires.
func validateTransition(old, new_ rhi.State) error {
	switch {
	case old == new_ && old == rhi.StateGeneral:
		return nil // explicit General→General hazard barrier
	case old == new_:
		return fmt.Errorf("elided transitions must not reach the planner's matrix (got %s→%s)", old, new_)
	case isHubState(old) || isHubState(new_):
		return nil
	case old == rhi.StateTransferDst && new_ == rhi.StateConstantBuffer:
		return nil
	default:
		return fmt.Errorf("undefined transition pair %s→%s", old, new_)
	}
}

// transitionPlan is C8's output: a barrier batch to emit ahead of each pass, and
// the terminal barriers to reconcile external resources back to their declared
// output state on graph exit (spec §4.4).
type transitionPlan struct {
	prePass  map[int][]rhi.Barrier // passIndex -> barriers to issue before it
	terminal []rhi.Barrier
}

// planTransitions derives, for every access in every pass, the (source, dest)
// state pair and inserts the minimal barrier ahead of the pass, then closes out
// every external resource still not in its declared output state (spec §4.4).
// This is C8.
func planTransitions(b *Builder, lr *lifetimeResult, imageRes map[handle.Handle]rhi.Image, bufferRes map[handle.Handle]rhi.Buffer) (*transitionPlan, error) {
	plan := &transitionPlan{prePass: make(map[int][]rhi.Barrier)}

	// Resources carrying initial bytes are seeded at StateTransferDst: the
	// executor's upload prologue (C10) issues their Undefined→TransferDst
	// barrier and copy command once, up front, before any pass runs — so the
	// per-access loop below never sees their synthetic access and only has to
	// plan the transition away from TransferDst at first real use.
	imageState := make(map[handle.Handle]rhi.State)
	for h, entry := range b.images {
		switch {
		case entry.external:
			imageState[h] = entry.inputState
		case entry.initialBytes != nil:
			imageState[h] = rhi.StateTransferDst
		default:
			imageState[h] = rhi.StateUndefined
		}
	}
	bufferState := make(map[handle.Handle]rhi.State)
	for h, entry := range b.buffers {
		switch {
		case entry.external:
			bufferState[h] = entry.inputState
		case entry.initialBytes != nil:
			bufferState[h] = rhi.StateTransferDst
		default:
			bufferState[h] = rhi.StateUndefined
		}
	}

	type touch struct {
		isImage bool
		h       handle.Handle
		a       access
	}
	var touches []touch
	for h, l := range lr.images {
		for _, a := range l.accesses {
			if a.synthetic {
				continue // handled by the executor's upload prologue, not the per-pass planner
			}
			touches = append(touches, touch{isImage: true, h: h, a: a})
		}
	}
	for h, l := range lr.buffers {
		for _, a := range l.accesses {
			if a.synthetic {
				continue
			}
			touches = append(touches, touch{isImage: false, h: h, a: a})
		}
	}
	// Stable sort by pass index; within one pass, resource iteration order does
	// not affect correctness (each resource's transitions are independent), so a
	// secondary key is unnecessary for behavior but pins output ordering for
	// reproducible tests.
	sort.SliceStable(touches, func(i, j int) bool {
		if touches[i].a.passIndex != touches[j].a.passIndex {
			return touches[i].a.passIndex < touches[j].a.passIndex
		}
		return touches[i].h.String() < touches[j].h.String()
	})

	lastWasGeneral := map[handle.Handle]bool{}

	for _, t := range touches {
		stateMap := bufferState
		if t.isImage {
			stateMap = imageState
		}
		current := stateMap[t.h]
		target := t.a.state

		elide := current == target && !(target == rhi.StateGeneral && lastWasGeneral[t.h])
		lastWasGeneral[t.h] = target == rhi.StateGeneral

		if elide {
			continue
		}
		if err := validateTransition(current, target); err != nil {
			return nil, rgerr.Wrap(rgerr.KindTransition, fmt.Sprintf("resource %s at pass %d", t.h, t.a.passIndex), err)
		}
		barrier := rhi.Barrier{Before: current, After: target, Range: t.a.viewRange}
		if t.isImage {
			barrier.Image = imageRes[t.h]
		} else {
			barrier.Buffer = bufferRes[t.h]
		}
		plan.prePass[t.a.passIndex] = append(plan.prePass[t.a.passIndex], barrier)
		stateMap[t.h] = target
	}

	for h, entry := range b.images {
		if !entry.external {
			continue
		}
		if imageState[h] != entry.outputState {
			if err := validateTransition(imageState[h], entry.outputState); err != nil {
				return nil, rgerr.Wrap(rgerr.KindTransition, fmt.Sprintf("external image %s terminal reconciliation", h), err)
			}
			plan.terminal = append(plan.terminal, rhi.Barrier{
				Image: imageRes[h], Before: imageState[h], After: entry.outputState, Range: rhi.FullRange,
			})
		}
	}
	for h, entry := range b.buffers {
		if !entry.external {
			continue
		}
		if bufferState[h] != entry.outputState {
			if err := validateTransition(bufferState[h], entry.outputState); err != nil {
				return nil, rgerr.Wrap(rgerr.KindTransition, fmt.Sprintf("external buffer %s terminal reconciliation", h), err)
			}
			plan.terminal = append(plan.terminal, rhi.Barrier{
				Buffer: bufferRes[h], Before: bufferState[h], After: entry.outputState,
			})
		}
	}

	return plan, nil
}
