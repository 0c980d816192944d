package search

import (
	"context"
	"errors"
	"testing"

	"episteme/internal/belief"
	"episteme/internal/eval"
	"episteme/internal/journal"
	"episteme/internal/oracle"
	"episteme/internal/term"
)

func newBelief(t *testing.T, axioms string) *belief.Context {
	t.Helper()
	ax, err := belief.Axioms(axioms)
	if err != nil {
		t.Fatalf("Axioms(%q): %v", axioms, err)
	}
	return belief.NewContext(ax)
}

func newEvaluator() *eval.Evaluator {
	return eval.New(nil, 10000, nil)
}

// reducesToStuck is an alternative that dead-ends: applying a
// non-function.
func reducesToStuck() term.Term {
	return term.App{Fn: term.Int(1), Arg: term.Int(2)}
}

// reducesToProp is an alternative that reduces to (prop "q") in one beta
// step, so it is not a value at choice time.
func reducesToProp() term.Term {
	return term.App{
		Fn:  term.Abs{Param: "x", ParamType: term.PropType{}, Body: term.Var{Name: "x"}},
		Arg: term.Prop{Formula: "q"},
	}
}

func wantEntry(t *testing.T, e journal.Entry, idx int, src journal.Source) {
	t.Helper()
	if e.ChosenIndex != idx || e.Source != src {
		t.Fatalf("entry %d = (index %d, %s), want (index %d, %s)",
			e.StepID, e.ChosenIndex, e.Source, idx, src)
	}
}

func TestHeuristicResolvesUniqueValue(t *testing.T) {
	h, err := NewMangleHeuristic(DefaultRules)
	if err != nil {
		t.Fatal(err)
	}
	jnl := journal.New(nil)
	ctrl := New(jnl, nil, WithHeuristic(h))
	bel := newBelief(t, "K")

	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), term.Prop{Formula: "q"}}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s, want (prop \"q\")", term.Canonical(value))
	}

	// The confident pick resolves the node in one entry; the dead first
	// alternative is never explored.
	if jnl.Len() != 1 {
		t.Fatalf("journal has %d entries, want 1", jnl.Len())
	}
	wantEntry(t, jnl.Entries()[0], 1, journal.SourceLocalHeuristic)
	if ctrl.OracleCalls() != 0 {
		t.Errorf("OracleCalls = %d, want 0", ctrl.OracleCalls())
	}
}

func TestDeclaredOrderBacktracking(t *testing.T) {
	jnl := journal.New(nil)
	ctrl := New(jnl, nil)
	bel := newBelief(t, "K")

	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), term.Prop{Formula: "q"}}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s, want (prop \"q\")", term.Canonical(value))
	}

	// Exhaustive order tries alternative 0, fails, recovers with 1.
	if jnl.Len() != 2 {
		t.Fatalf("journal has %d entries, want 2", jnl.Len())
	}
	wantEntry(t, jnl.Entries()[0], 0, journal.SourceLocalHeuristic)
	wantEntry(t, jnl.Entries()[1], 1, journal.SourceLocalHeuristic)
}

func TestOracleGuidanceAndRecovery(t *testing.T) {
	client := oracle.NewScripted(oracle.ScriptedAnswer{Index: 0})
	jnl := journal.New(nil)
	ctrl := New(jnl, nil, WithOracle(client))
	bel := newBelief(t, "K")

	// The oracle picks the dead alternative; search recovers without
	// consulting it again.
	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), reducesToProp()}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s, want (prop \"q\")", term.Canonical(value))
	}

	if jnl.Len() != 2 {
		t.Fatalf("journal has %d entries, want 2", jnl.Len())
	}
	wantEntry(t, jnl.Entries()[0], 0, journal.SourceOracle)
	wantEntry(t, jnl.Entries()[1], 1, journal.SourceLocalHeuristic)
	if client.Calls() != 1 {
		t.Errorf("oracle consulted %d times, want 1", client.Calls())
	}
}

func TestUnconfidentHeuristicFallsThroughToOracle(t *testing.T) {
	h, err := NewMangleHeuristic(DefaultRules)
	if err != nil {
		t.Fatal(err)
	}
	client := oracle.NewScripted(oracle.ScriptedAnswer{Index: 1})
	jnl := journal.New(nil)
	ctrl := New(jnl, nil, WithHeuristic(h), WithOracle(client))
	bel := newBelief(t, "K")

	// Neither alternative is a value, so the heuristic stays silent and
	// the oracle decides.
	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), reducesToProp()}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s", term.Canonical(value))
	}
	if jnl.Len() != 1 {
		t.Fatalf("journal has %d entries, want 1", jnl.Len())
	}
	wantEntry(t, jnl.Entries()[0], 1, journal.SourceOracle)
}

func TestOracleRejectBacktracks(t *testing.T) {
	client := oracle.NewScripted(oracle.ScriptedAnswer{Err: oracle.ErrRejected})
	ctrl := New(journal.New(nil), nil, WithOracle(client))
	bel := newBelief(t, "K")

	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), reducesToProp()}}
	_, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)

	// Rejection abandons the node; with nothing left to try, the search
	// reports no witness rather than a fatal oracle error.
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != NoWitnessFound {
		t.Fatalf("error %v, want NoWitnessFound", err)
	}
}

func TestOracleTransportErrorFallsThrough(t *testing.T) {
	client := oracle.NewScripted(oracle.ScriptedAnswer{Err: errors.New("connection refused")})
	jnl := journal.New(nil)
	ctrl := New(jnl, nil, WithOracle(client))
	bel := newBelief(t, "K")

	goal := term.Choice{Alternatives: []term.Term{reducesToProp(), reducesToStuck()}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s", term.Canonical(value))
	}
	// Declared order took over at index 0.
	wantEntry(t, jnl.Entries()[0], 0, journal.SourceLocalHeuristic)
}

func TestFalseBranchFails(t *testing.T) {
	jnl := journal.New(nil)
	ctrl := New(jnl, nil)
	bel := newBelief(t, "K")
	bel.Introduce("a")

	// Alternative 0 reduces to false (nothing is known); the search
	// treats it as a failed derivation, not a witness.
	goal := term.Choice{Alternatives: []term.Term{
		term.Modal{Op: term.Know, Agent: "a", Body: term.Prop{Formula: "p"}},
		term.Prop{Formula: "p"},
	}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "p"}) {
		t.Errorf("value = %s, want (prop \"p\")", term.Canonical(value))
	}
	if jnl.Len() != 2 {
		t.Errorf("journal has %d entries, want 2", jnl.Len())
	}
}

func TestFalseAtRootIsAValue(t *testing.T) {
	ctrl := New(journal.New(nil), nil)
	bel := newBelief(t, "K")
	bel.Introduce("a")

	goal := term.Modal{Op: term.Know, Agent: "a", Body: term.Prop{Formula: "p"}}
	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Bool(false)) {
		t.Errorf("value = %s, want (lit false)", term.Canonical(value))
	}
}

func TestSingleAlternativeIsDeterministic(t *testing.T) {
	jnl := journal.New(nil)
	ctrl := New(jnl, nil)
	bel := newBelief(t, "K")

	goal := term.Choice{Alternatives: []term.Term{term.Prop{Formula: "p"}}}
	if _, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jnl.Len() != 1 {
		t.Fatalf("journal has %d entries, want 1", jnl.Len())
	}
	wantEntry(t, jnl.Entries()[0], 0, journal.SourceDeterministic)
}

func TestNoWitnessFound(t *testing.T) {
	ctrl := New(journal.New(nil), nil)
	bel := newBelief(t, "K")

	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), reducesToStuck()}}
	_, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	var serr *Error
	if !errors.As(err, &serr) || serr.Kind != NoWitnessFound {
		t.Fatalf("error %v, want NoWitnessFound", err)
	}
}

func TestBudgetAbortsSearch(t *testing.T) {
	ctrl := New(journal.New(nil), nil)
	bel := newBelief(t, "K")

	// Plenty of alternatives remain, but the budget is global: no
	// backtracking once it is exhausted.
	ev := eval.New(nil, 2, nil)
	goal := term.Choice{Alternatives: []term.Term{reducesToProp(), term.Prop{Formula: "p"}}}
	_, _, err := ctrl.Run(context.Background(), ev, goal, bel)
	var eerr *eval.Error
	if !errors.As(err, &eerr) || eerr.Kind != eval.ReductionBudgetExceeded {
		t.Fatalf("error %v, want ReductionBudgetExceeded", err)
	}
}

func TestBranchBeliefIsolation(t *testing.T) {
	jnl := journal.New(nil)
	ctrl := New(jnl, nil)
	bel := newBelief(t, "KD45")
	p := term.Prop{Formula: "p"}
	bel.Assert("a", term.Believe, p)

	nested := term.Modal{Op: term.Believe, Agent: "a", Body: p}

	// Alternative 0 memoizes believe(a, believe(a, p)) into its branch
	// fork, then dead-ends. The winning branch must not see it.
	memoizingDeadEnd := term.App{
		Fn:  term.Int(1),
		Arg: term.Modal{Op: term.Believe, Agent: "a", Body: nested},
	}
	goal := term.Choice{Alternatives: []term.Term{memoizingDeadEnd, term.Prop{Formula: "q"}}}

	value, finalBel, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s", term.Canonical(value))
	}
	if finalBel.Holds("a", term.Believe, nested) {
		t.Error("memoized belief leaked from an abandoned branch")
	}
	if !finalBel.Holds("a", term.Believe, p) {
		t.Error("winning branch lost the seeded belief")
	}
	if bel.Holds("a", term.Believe, nested) {
		t.Error("memoized belief leaked into the choice-point snapshot")
	}
}

func TestReplayReproducesRun(t *testing.T) {
	goal := func() term.Term {
		return term.Choice{Alternatives: []term.Term{reducesToStuck(), reducesToProp()}}
	}

	// Live run, guided (badly) by the oracle.
	client := oracle.NewScripted(oracle.ScriptedAnswer{Index: 0})
	recorded := journal.New(nil)
	live := New(recorded, nil, WithOracle(client))
	liveValue, _, err := live.Run(context.Background(), newEvaluator(), goal(), newBelief(t, "K"))
	if err != nil {
		t.Fatalf("live Run: %v", err)
	}

	// Replay from the journal alone: no heuristic, no oracle.
	replayJnl := journal.New(nil)
	replay := New(replayJnl, nil, WithReplay(recorded.Replay()))
	replayValue, _, err := replay.Run(context.Background(), newEvaluator(), goal(), newBelief(t, "K"))
	if err != nil {
		t.Fatalf("replay Run: %v", err)
	}

	if !term.Equal(liveValue, replayValue) {
		t.Errorf("replay value %s, live value %s", term.Canonical(replayValue), term.Canonical(liveValue))
	}
	if replay.OracleCalls() != 0 {
		t.Errorf("replay consulted the oracle %d times", replay.OracleCalls())
	}
	if replayJnl.Len() != recorded.Len() {
		t.Fatalf("replay journal has %d entries, recorded %d", replayJnl.Len(), recorded.Len())
	}
	for i, e := range replayJnl.Entries() {
		rec := recorded.Entries()[i]
		if e.NodeHash != rec.NodeHash || e.ChosenIndex != rec.ChosenIndex {
			t.Errorf("entry %d = (%s, %d), recorded (%s, %d)", i, e.NodeHash, e.ChosenIndex, rec.NodeHash, rec.ChosenIndex)
		}
		// Provenance survives replay.
		if e.Source != rec.Source {
			t.Errorf("entry %d source %s, recorded %s", i, e.Source, rec.Source)
		}
	}
}

func TestReplayAfterOracleRejection(t *testing.T) {
	goal := func() term.Term {
		inner := term.Choice{Alternatives: []term.Term{term.Prop{Formula: "p"}, term.Prop{Formula: "r"}}}
		return term.Choice{Alternatives: []term.Term{inner, reducesToProp()}}
	}

	// The oracle steers into the nested choice, then rejects it. The
	// abandoned node leaves no journal entry; the recovery choice at the
	// outer node does.
	client := oracle.NewScripted(
		oracle.ScriptedAnswer{Index: 0},
		oracle.ScriptedAnswer{Err: oracle.ErrRejected},
	)
	recorded := journal.New(nil)
	live := New(recorded, nil, WithOracle(client))
	liveValue, _, err := live.Run(context.Background(), newEvaluator(), goal(), newBelief(t, "K"))
	if err != nil {
		t.Fatalf("live Run: %v", err)
	}
	if !term.Equal(liveValue, term.Prop{Formula: "q"}) {
		t.Fatalf("live value = %s, want (prop \"q\")", term.Canonical(liveValue))
	}
	if recorded.Len() != 2 {
		t.Fatalf("recorded journal has %d entries, want 2", recorded.Len())
	}
	wantEntry(t, recorded.Entries()[0], 0, journal.SourceOracle)
	wantEntry(t, recorded.Entries()[1], 1, journal.SourceLocalHeuristic)

	// Replay reaches the rejected node afresh, sees the next recorded
	// entry belongs to the outer node, and abandons it the same way.
	replayJnl := journal.New(nil)
	replay := New(replayJnl, nil, WithReplay(recorded.Replay()))
	replayValue, _, err := replay.Run(context.Background(), newEvaluator(), goal(), newBelief(t, "K"))
	if err != nil {
		t.Fatalf("replay Run: %v", err)
	}
	if !term.Equal(liveValue, replayValue) {
		t.Errorf("replay value %s, live value %s", term.Canonical(replayValue), term.Canonical(liveValue))
	}
	if replay.OracleCalls() != 0 {
		t.Errorf("replay consulted the oracle %d times", replay.OracleCalls())
	}
	if replayJnl.Len() != recorded.Len() {
		t.Fatalf("replay journal has %d entries, recorded %d", replayJnl.Len(), recorded.Len())
	}
	for i, e := range replayJnl.Entries() {
		rec := recorded.Entries()[i]
		if e.NodeHash != rec.NodeHash || e.ChosenIndex != rec.ChosenIndex || e.Source != rec.Source {
			t.Errorf("entry %d = (%s, %d, %s), recorded (%s, %d, %s)",
				i, e.NodeHash, e.ChosenIndex, e.Source, rec.NodeHash, rec.ChosenIndex, rec.Source)
		}
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	// Record a run of one goal, replay a different one.
	recorded := journal.New(nil)
	live := New(recorded, nil)
	goalA := term.Choice{Alternatives: []term.Term{term.Prop{Formula: "p"}}}
	if _, _, err := live.Run(context.Background(), newEvaluator(), goalA, newBelief(t, "K")); err != nil {
		t.Fatalf("live Run: %v", err)
	}

	replay := New(journal.New(nil), nil, WithReplay(recorded.Replay()))
	goalB := term.Choice{Alternatives: []term.Term{term.Prop{Formula: "different"}}}
	_, _, err := replay.Run(context.Background(), newEvaluator(), goalB, newBelief(t, "K"))
	var jerr *journal.Error
	if !errors.As(err, &jerr) || jerr.Kind != journal.ReplayMismatch {
		t.Fatalf("error %v, want ReplayMismatch", err)
	}
}

func TestReplayExhaustedJournalIsMismatch(t *testing.T) {
	empty := journal.New(nil)
	replay := New(journal.New(nil), nil, WithReplay(empty.Replay()))

	goal := term.Choice{Alternatives: []term.Term{term.Prop{Formula: "p"}}}
	_, _, err := replay.Run(context.Background(), newEvaluator(), goal, newBelief(t, "K"))
	var jerr *journal.Error
	if !errors.As(err, &jerr) || jerr.Kind != journal.ReplayMismatch {
		t.Fatalf("error %v, want ReplayMismatch", err)
	}
}

func TestNodeHash(t *testing.T) {
	belA := newBelief(t, "K")
	belB := newBelief(t, "K")
	goal := term.Prop{Formula: "p"}

	if NodeHash(goal, belA) != NodeHash(goal, belB) {
		t.Error("equal term and context hash differently")
	}
	belB.Assert("a", term.Know, term.Prop{Formula: "q"})
	if NodeHash(goal, belA) == NodeHash(goal, belB) {
		t.Error("different contexts share a node hash")
	}
	if NodeHash(term.Prop{Formula: "q"}, belA) == NodeHash(goal, belA) {
		t.Error("different terms share a node hash")
	}
}

func TestNestedChoicePoints(t *testing.T) {
	jnl := journal.New(nil)
	ctrl := New(jnl, nil)
	bel := newBelief(t, "K")

	// Committing to alternative 1 exposes a second choice point.
	inner := term.Choice{Alternatives: []term.Term{reducesToStuck(), term.Prop{Formula: "q"}}}
	goal := term.Choice{Alternatives: []term.Term{reducesToStuck(), inner}}

	value, _, err := ctrl.Run(context.Background(), newEvaluator(), goal, bel)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !term.Equal(value, term.Prop{Formula: "q"}) {
		t.Errorf("value = %s", term.Canonical(value))
	}
	// outer 0 (dead), outer 1, inner 0 (dead), inner 1.
	if jnl.Len() != 4 {
		t.Fatalf("journal has %d entries, want 4", jnl.Len())
	}
	if ctrl.Depth() == 0 {
		t.Error("stack should retain the winning path's nodes")
	}
}
