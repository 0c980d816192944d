package belief

import (
	"fmt"

	"episteme/internal/term"
)

// AxiomSet decides which modal applications reduce deterministically under
// a given epistemic logic. The exact axiom set of the logic is a pluggable
// parameter of the context: the evaluator asks Resolve first, and only if
// the axiom set cannot settle the modality does the reduction become a
// search problem.
type AxiomSet interface {
	Name() string

	// Resolve reports whether op applied by agent to body settles
	// deterministically against ctx. ok=false means the modality needs
	// search; otherwise value is the settled truth value.
	Resolve(ctx *Context, op term.ModalOp, agent term.Agent, body term.Term) (value bool, ok bool)
}

// basicK is the minimal system: a modality settles only when the context
// directly records the body proposition for the agent.
type basicK struct{}

func (basicK) Name() string { return "K" }

func (basicK) Resolve(ctx *Context, op term.ModalOp, agent term.Agent, body term.Term) (bool, bool) {
	if ctx.Holds(agent, op, body) {
		return true, true
	}
	return false, false
}

// kd45 adds positive introspection: an agent that believes p also believes
// that it believes p, so nested same-agent modalities unfold without
// search. Negative introspection is deliberately not modeled; absence of a
// recorded belief is an open question, not a settled negative.
type kd45 struct{}

func (kd45) Name() string { return "KD45" }

func (kd45) Resolve(ctx *Context, op term.ModalOp, agent term.Agent, body term.Term) (bool, bool) {
	if ctx.Holds(agent, op, body) {
		return true, true
	}
	// Introspection: Op(a, Op(a, p)) settles whenever Op(a, p) does.
	if inner, isModal := body.(term.Modal); isModal && inner.Agent == agent && inner.Op == op {
		return kd45{}.Resolve(ctx, op, agent, inner.Body)
	}
	return false, false
}

// Axioms returns the named axiom set. Recognized names: "K", "KD45".
func Axioms(name string) (AxiomSet, error) {
	switch name {
	case "", "K":
		return basicK{}, nil
	case "KD45":
		return kd45{}, nil
	default:
		return nil, fmt.Errorf("unknown axiom set %q (want K or KD45)", name)
	}
}

// AllAxiomSets lists the shipped axiom sets, for tests that parametrize
// over the axiom choice.
func AllAxiomSets() []AxiomSet {
	return []AxiomSet{basicK{}, kd45{}}
}
