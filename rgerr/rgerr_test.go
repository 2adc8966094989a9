package rgerr

import (
	"errors"
	"strings"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindDeclaration, "declaration"},
		{KindAnalysis, "analysis"},
		{KindAllocation, "allocation"},
		{KindPipeline, "pipeline"},
		{KindTransition, "transition"},
		{Kind(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(KindDeclaration, "unknown handle")
	if err.Cause != nil {
		t.Fatalf("New(...).Cause = %v, want nil", err.Cause)
	}
	if err.Kind != KindDeclaration {
		t.Fatalf("Kind = %v, want KindDeclaration", err.Kind)
	}
	if !strings.Contains(err.Error(), "declaration") || !strings.Contains(err.Error(), "unknown handle") {
		t.Fatalf("Error() = %q, missing kind or context", err.Error())
	}
	if strings.Contains(err.Error(), "<nil>") {
		t.Fatalf("Error() = %q, should not render a nil cause", err.Error())
	}
}

func TestWrapCarriesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindAllocation, "device memory exhausted", cause)

	if !errors.Is(err, cause) {
		t.Fatal("errors.Is(err, cause) = false, want true via Unwrap")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("Error() = %q, missing wrapped cause text", err.Error())
	}
	if !strings.Contains(err.Error(), "allocation") {
		t.Fatalf("Error() = %q, missing kind text", err.Error())
	}
}

func TestUnwrapNilWhenNoCause(t *testing.T) {
	err := New(KindPipeline, "missing fragment stage")
	if err.Unwrap() != nil {
		t.Fatal("Unwrap() on a causeless Error should return nil")
	}
}

func TestErrorSatisfiesStdlibErrorInterface(t *testing.T) {
	var _ error = New(KindTransition, "unreachable state pair")
}
