// Package eval performs deterministic reduction on core terms: call-by-value
// beta reduction, modal unfolding against the belief context, and quantifier
// unfolding over enumerable domains. Whenever more than one next step is
// valid — a Choice node is the next redex, or an existential needs a
// witness — the evaluator yields a ChoicePoint and leaves the decision to
// the search controller.
package eval

import (
	"context"

	"go.uber.org/zap"

	"episteme/internal/belief"
	"episteme/internal/term"
)

// StepKind discriminates ReduceStep outcomes.
type StepKind int

const (
	// Progress carries the term after one deterministic step.
	Progress StepKind = iota
	// Final carries a terminal value.
	Final
	// ChoicePoint carries whole-term alternatives for the controller.
	ChoicePoint
	// Stuck carries a fatal evaluation error.
	Stuck
)

// ReduceStep is the outcome of one reduction step.
type ReduceStep struct {
	Kind StepKind

	// Term is the resulting term for Progress, or the value for Final.
	Term term.Term

	// Alternatives holds, for ChoicePoint, the whole-program terms that
	// result from committing to each alternative, in declared order.
	Alternatives []term.Term

	// Belief is the belief snapshot at the choice point. It is the live
	// context, not a copy; the controller forks it per branch.
	Belief *belief.Context

	// Err is set for Stuck.
	Err *Error
}

// Evaluator reduces terms under a fixed environment and step budget. One
// Evaluator serves one run; it is not safe for concurrent use.
type Evaluator struct {
	env    *Env
	budget int
	steps  int
	logger *zap.Logger
}

// New creates an evaluator with the given root environment and step
// budget. A zero or negative budget means no work at all is allowed.
func New(env *Env, budget int, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if env == nil {
		env = NewEnv(nil)
	}
	return &Evaluator{env: env, budget: budget, logger: logger}
}

// Steps reports how many reduction steps have been consumed.
func (e *Evaluator) Steps() int { return e.steps }

// Reduce performs one reduction step on t under bel. A cancelled context
// is surfaced as the budget error so the run aborts at a step boundary
// with its journal intact.
func (e *Evaluator) Reduce(ctx context.Context, t term.Term, bel *belief.Context) ReduceStep {
	if err := ctx.Err(); err != nil {
		return ReduceStep{Kind: Stuck, Err: evalErrf(ReductionBudgetExceeded, "run cancelled: %v", err)}
	}
	if e.steps >= e.budget {
		return ReduceStep{Kind: Stuck, Err: evalErrf(ReductionBudgetExceeded, "budget of %d steps exhausted", e.budget)}
	}
	e.steps++

	out := e.step(ctx, t, bel)
	switch out.kind {
	case outValue:
		return ReduceStep{Kind: Final, Term: t}
	case outProgress:
		if term.Equal(out.t, t) {
			return ReduceStep{Kind: Stuck, Err: evalErrf(Divergence, "reduction step did not change %s", term.Canonical(t))}
		}
		return ReduceStep{Kind: Progress, Term: out.t}
	case outChoice:
		return ReduceStep{Kind: ChoicePoint, Alternatives: out.alts, Belief: bel}
	default:
		return ReduceStep{Kind: Stuck, Err: out.err}
	}
}

// ReduceFully drives Reduce until a terminal outcome. It never resolves a
// choice point; callers running the full search pipeline use the
// controller instead. Exposed for the deterministic fragment (and its
// soundness tests).
func (e *Evaluator) ReduceFully(ctx context.Context, t term.Term, bel *belief.Context) ReduceStep {
	for {
		step := e.Reduce(ctx, t, bel)
		if step.Kind != Progress {
			return step
		}
		t = step.Term
	}
}

// IsValue reports whether t is a terminal value form.
func IsValue(t term.Term) bool {
	switch t.(type) {
	case term.Lit, term.Prop, term.Abs:
		return true
	default:
		return false
	}
}

type outKind int

const (
	outValue outKind = iota
	outProgress
	outChoice
	outStuck
)

type outcome struct {
	kind outKind
	t    term.Term
	alts []term.Term
	err  *Error
}

func progressed(t term.Term) outcome  { return outcome{kind: outProgress, t: t} }
func stuck(err *Error) outcome        { return outcome{kind: outStuck, err: err} }
func chosen(alts []term.Term) outcome { return outcome{kind: outChoice, alts: alts} }

// into recurses into a child position and rebuilds the parent around the
// child's outcome. Choice alternatives propagate upward as whole-term
// variants so that committing to one alternative replaces the entire
// program term.
func (e *Evaluator) into(ctx context.Context, child term.Term, bel *belief.Context, rebuild func(term.Term) term.Term) outcome {
	out := e.step(ctx, child, bel)
	switch out.kind {
	case outProgress:
		return progressed(rebuild(out.t))
	case outChoice:
		alts := make([]term.Term, len(out.alts))
		for i, alt := range out.alts {
			alts[i] = rebuild(alt)
		}
		return chosen(alts)
	default:
		return out
	}
}

func (e *Evaluator) step(ctx context.Context, t term.Term, bel *belief.Context) outcome {
	switch n := t.(type) {
	case term.Lit, term.Prop, term.Abs:
		return outcome{kind: outValue, t: t}

	case term.Var:
		v, ok := e.env.Get(n.Name)
		if !ok {
			return stuck(evalErrf(UnboundVariable, "%s has no binding", n.Name))
		}
		return progressed(v)

	case term.App:
		if !IsValue(n.Fn) {
			return e.into(ctx, n.Fn, bel, func(fn term.Term) term.Term {
				return term.App{Fn: fn, Arg: n.Arg}
			})
		}
		if !IsValue(n.Arg) {
			return e.into(ctx, n.Arg, bel, func(arg term.Term) term.Term {
				return term.App{Fn: n.Fn, Arg: arg}
			})
		}
		abs, ok := n.Fn.(term.Abs)
		if !ok {
			return stuck(evalErrf(StuckTerm, "applying non-function %s", term.Canonical(n.Fn)))
		}
		return progressed(subst(abs.Body, abs.Param, n.Arg))

	case term.Modal:
		return e.stepModal(ctx, n, bel)

	case term.Quant:
		return e.stepQuant(ctx, n, bel)

	case term.Choice:
		if len(n.Alternatives) == 0 {
			return stuck(evalErrf(StuckTerm, "choice with no alternatives"))
		}
		return chosen(n.Alternatives)

	default:
		return stuck(evalErrf(StuckTerm, "unknown term form %T", t))
	}
}

// stepModal resolves a modality. The axiom set is consulted on the intact
// body first, so introspective axioms see nested modal structure before
// the inner modality collapses to a truth value.
func (e *Evaluator) stepModal(ctx context.Context, n term.Modal, bel *belief.Context) outcome {
	if value, ok := bel.Axioms().Resolve(bel, n.Op, n.Agent, n.Body); ok {
		if value {
			// Memoize the derived proposition. Growth is monotonic within
			// a branch; siblings are protected by copy-on-branch.
			bel.Assert(n.Agent, n.Op, n.Body)
		}
		e.logger.Debug("modal settled by axioms",
			zap.String("op", n.Op.String()),
			zap.String("agent", string(n.Agent)),
			zap.Bool("value", value))
		return progressed(term.Bool(value))
	}
	if !IsValue(n.Body) {
		return e.into(ctx, n.Body, bel, func(body term.Term) term.Term {
			return term.Modal{Op: n.Op, Agent: n.Agent, Body: body}
		})
	}
	// The body is normal and the axioms cannot settle it. Within one
	// branch the belief context is the complete description of the
	// agent's accessible worlds, so an underivable modality is false.
	return progressed(term.Bool(false))
}

func (e *Evaluator) stepQuant(ctx context.Context, n term.Quant, bel *belief.Context) outcome {
	candidates, err := e.enumerate(n.Domain, bel)
	if err != nil {
		return stuck(err)
	}

	switch n.Kind {
	case term.Exists:
		if len(candidates) == 0 {
			return progressed(term.Bool(false))
		}
		alts := make([]term.Term, len(candidates))
		for i, c := range candidates {
			alts[i] = subst(n.Body, n.Var, c)
		}
		return chosen(alts)

	case term.Forall:
		// Universals unfold deterministically: every instantiation must
		// reduce to true within the deterministic fragment. A body that
		// itself needs search is outside that fragment.
		for _, c := range candidates {
			inst := subst(n.Body, n.Var, c)
			res := e.ReduceFully(ctx, inst, bel)
			switch res.Kind {
			case Stuck:
				return stuck(res.Err)
			case ChoicePoint:
				return stuck(evalErrf(StuckTerm,
					"universal body requires search: %s", term.Canonical(inst)))
			}
			if !isTrue(res.Term) {
				return progressed(term.Bool(false))
			}
		}
		return progressed(term.Bool(true))

	default:
		return stuck(evalErrf(StuckTerm, "unknown quantifier kind %d", int(n.Kind)))
	}
}

// enumerate lists the candidate instantiations of a quantifier domain.
// Only domains with a finite description at this evaluation point are
// enumerable: booleans, and propositions drawn from the belief context.
func (e *Evaluator) enumerate(domain term.Type, bel *belief.Context) ([]term.Term, *Error) {
	switch domain.(type) {
	case term.BoolType:
		return []term.Term{term.Bool(true), term.Bool(false)}, nil
	case term.PropType:
		return bel.Propositions(), nil
	default:
		return nil, evalErrf(StuckTerm, "cannot enumerate quantifier domain %s", term.TypeKey(domain))
	}
}

func isTrue(t term.Term) bool {
	lit, ok := t.(term.Lit)
	return ok && lit.Value.Kind == term.LitBool && lit.Value.Bool
}

// IsFalse reports whether t is the boolean literal false. The search
// controller treats a branch ending in false as a failed derivation.
func IsFalse(t term.Term) bool {
	lit, ok := t.(term.Lit)
	return ok && lit.Value.Kind == term.LitBool && !lit.Value.Bool
}
