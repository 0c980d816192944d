package search

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"episteme/internal/eval"
	"episteme/internal/term"
)

// Heuristic proposes an alternative at a choice point. ok is true only for
// a unique confident choice; anything ambiguous falls through to the next
// policy stage.
type Heuristic interface {
	Choose(alts []term.Term) (index int, ok bool, err error)
}

// DefaultRules is the built-in heuristic ruleset: prefer the alternative
// that is already a terminal value, when exactly one is.
const DefaultRules = `
Decl alternative(Index, Kind, Size).
Decl value_kind(Kind).
Decl prefer(Index).

value_kind(/lit).
value_kind(/prop).
value_kind(/abs).

prefer(Index) :- alternative(Index, Kind, Size), value_kind(Kind).
`

// MangleHeuristic evaluates Datalog rules over choice-point features. Each
// alternative is asserted as alternative(Index, Kind, Size); the rules
// derive prefer(Index), and a single derived preference counts as
// confident.
type MangleHeuristic struct {
	mu          sync.Mutex
	programInfo *analysis.ProgramInfo
	altSym      ast.PredicateSym
	preferSym   ast.PredicateSym
}

// NewMangleHeuristic compiles a ruleset. The source must declare
// alternative/3 and prefer/1.
func NewMangleHeuristic(rules string) (*MangleHeuristic, error) {
	unit, err := parse.Unit(bytes.NewReader([]byte(rules)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse heuristic rules: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze heuristic rules: %w", err)
	}

	h := &MangleHeuristic{programInfo: programInfo}
	for sym := range programInfo.Decls {
		switch sym.Symbol {
		case "alternative":
			h.altSym = sym
		case "prefer":
			h.preferSym = sym
		}
	}
	if h.altSym.Symbol == "" || h.preferSym.Symbol == "" {
		return nil, fmt.Errorf("heuristic rules must declare alternative/3 and prefer/1")
	}
	return h, nil
}

// NewMangleHeuristicFromFile loads a ruleset from a .mg file.
func NewMangleHeuristicFromFile(path string) (*MangleHeuristic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read heuristic rules %s: %w", path, err)
	}
	return NewMangleHeuristic(string(data))
}

// Choose asserts the alternatives as facts, evaluates the ruleset, and
// reads back the derived preferences.
func (h *MangleHeuristic) Choose(alts []term.Term) (int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	store := factstore.NewSimpleInMemoryStore()
	for i, alt := range alts {
		kind, err := ast.Name(altKind(alt))
		if err != nil {
			return 0, false, fmt.Errorf("bad alternative kind: %w", err)
		}
		store.Add(ast.Atom{
			Predicate: h.altSym,
			Args:      []ast.BaseTerm{ast.Number(int64(i)), kind, ast.Number(termSize(alt))},
		})
	}

	if _, err := mengine.EvalProgramWithStats(h.programInfo, store); err != nil {
		return 0, false, fmt.Errorf("heuristic evaluation failed: %w", err)
	}

	var preferred []int
	err := store.GetFacts(ast.NewQuery(h.preferSym), func(fact ast.Atom) error {
		if len(fact.Args) != 1 {
			return nil
		}
		if c, ok := fact.Args[0].(ast.Constant); ok && c.Type == ast.NumberType {
			preferred = append(preferred, int(c.NumValue))
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("read preferences: %w", err)
	}

	if len(preferred) != 1 {
		return 0, false, nil
	}
	idx := preferred[0]
	if idx < 0 || idx >= len(alts) {
		return 0, false, fmt.Errorf("heuristic preferred index %d of %d alternatives", idx, len(alts))
	}
	return idx, true, nil
}

// altKind maps a term form to the name constant the rules see.
func altKind(t term.Term) string {
	if eval.IsValue(t) {
		switch t.(type) {
		case term.Lit:
			return "/lit"
		case term.Prop:
			return "/prop"
		default:
			return "/abs"
		}
	}
	switch t.(type) {
	case term.Var:
		return "/var"
	case term.App:
		return "/app"
	case term.Modal:
		return "/modal"
	case term.Quant:
		return "/quant"
	case term.Choice:
		return "/choice"
	default:
		return "/other"
	}
}

// termSize counts term nodes, a cheap complexity feature for rules that
// prefer smaller derivations.
func termSize(t term.Term) int64 {
	switch n := t.(type) {
	case term.Abs:
		return 1 + termSize(n.Body)
	case term.App:
		return 1 + termSize(n.Fn) + termSize(n.Arg)
	case term.Modal:
		return 1 + termSize(n.Body)
	case term.Quant:
		return 1 + termSize(n.Body)
	case term.Choice:
		var s int64 = 1
		for _, alt := range n.Alternatives {
			s += termSize(alt)
		}
		return s
	default:
		return 1
	}
}
