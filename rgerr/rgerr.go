// Package rgerr defines the typed error kinds the render graph compiler can return,
// per spec §7: every user-visible failure carries an enum tag plus a human-readable
// context string, rather than an opaque error string alone.
package rgerr

import "fmt"

// Kind tags an Error with the phase of compilation (or execution) that produced it.
type Kind int

const (
	// KindDeclaration covers unknown handles, over-capacity framebuffers, duplicate
	// external registrations with conflicting states, and mismatched attachment sizes.
	KindDeclaration Kind = iota

	// KindAnalysis covers hazards detected by the lifetime analyzer, such as a
	// resource used as both read-only and read-write in the same pass without an
	// explicit UAV-to-UAV barrier declaration.
	KindAnalysis

	// KindAllocation covers device-memory exhaustion and missing memory types.
	KindAllocation

	// KindPipeline covers incomplete shader-stage sets, reflection mismatches across
	// stages, and state combinations the target RHI does not support.
	KindPipeline

	// KindTransition covers a planner lookup that falls outside the enumerated
	// (old, new) state matrix — always a bug in the lifetime analyzer or the
	// matrix itself, never a caller mistake, but still surfaced as an Error
	// rather than a panic so Compile's contract stays uniform (spec §7).
	KindTransition
)

func (k Kind) String() string {
	switch k {
	case KindDeclaration:
		return "declaration"
	case KindAnalysis:
		return "analysis"
	case KindAllocation:
		return "allocation"
	case KindPipeline:
		return "pipeline"
	case KindTransition:
		return "transition"
	default:
		return "unknown"
	}
}

// Error is the error type returned by Builder.Compile and its collaborators.
// It wraps an optional cause and always carries a Kind and a Context string.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rendergraph: %s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("rendergraph: %s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap builds an Error that wraps an underlying cause.
func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Cause: cause}
}
