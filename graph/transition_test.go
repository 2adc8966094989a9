package graph

import (
	"testing"

	"github.com/lumenforge/rendergraph/rhi"
)

func TestIsHubState(t *testing.T) {
	tests := []struct {
		state rhi.State
		want  bool
	}{
		{rhi.StateUndefined, true},
		{rhi.StateShaderReadOnly, true},
		{rhi.StatePresent, true},
		{rhi.StateGeneral, false},
		{rhi.StateColorAttachment, false},
		{rhi.StateTransferDst, false},
	}

	for _, tt := range tests {
		if got := isHubState(tt.state); got != tt.want {
			t.Errorf("isHubState(%s) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestValidateTransitionGeneralToGeneralRequiresBarrier(t *testing.T) {
	if err := validateTransition(rhi.StateGeneral, rhi.StateGeneral); err != nil {
		t.Fatalf("General->General should be a valid (mandated) transition, got error: %v", err)
	}
}

func TestValidateTransitionRejectsOtherIdentityPairs(t *testing.T) {
	// Every other same-state pair must never reach the planner (it should have
	// been elided upstream); validateTransition treats it as a bug if it does.
	if err := validateTransition(rhi.StateColorAttachment, rhi.StateColorAttachment); err == nil {
		t.Fatal("non-General identity transition should be rejected")
	}
}

func TestValidateTransitionAllowsHubPairs(t *testing.T) {
	tests := []struct {
		old, new_ rhi.State
	}{
		{rhi.StateUndefined, rhi.StateColorAttachment},
		{rhi.StateColorAttachment, rhi.StateShaderReadOnly},
		{rhi.StateShaderReadOnly, rhi.StatePresent},
		{rhi.StateTransferDst, rhi.StateShaderReadOnly},
	}
	for _, tt := range tests {
		if err := validateTransition(tt.old, tt.new_); err != nil {
			t.Errorf("validateTransition(%s, %s) = %v, want nil", tt.old, tt.new_, err)
		}
	}
}

func TestValidateTransitionRejectsNonHubPair(t *testing.T) {
	// Neither ColorAttachment nor DepthStencilAttachment is a hub state, and
	// they are not the same state, so this pair is undefined by the matrix.
	if err := validateTransition(rhi.StateColorAttachment, rhi.StateDepthStencilAttachment); err == nil {
		t.Fatal("expected an error for an undefined non-hub transition pair")
	}
}
