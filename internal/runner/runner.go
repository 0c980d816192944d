// Package runner wires the full pipeline for one evaluation run: surface
// parse, elaboration, reduction, search, and journaling. Each run owns all
// of its state, so independent runs may execute in parallel with no shared
// mutable state.
package runner

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"episteme/internal/belief"
	"episteme/internal/config"
	"episteme/internal/elab"
	"episteme/internal/eval"
	"episteme/internal/journal"
	"episteme/internal/oracle"
	"episteme/internal/search"
	"episteme/internal/syntax"
	"episteme/internal/term"
)

// Result is the outcome of a run. The journal is always populated, even
// when the run failed: everything recorded before the failure point is
// valid and replayable.
type Result struct {
	Value       term.Term
	Belief      *belief.Context
	Journal     *journal.Journal
	Steps       int
	OracleCalls int
}

// Runner executes scripts under a fixed configuration. A Runner is safe
// for concurrent use: each call constructs run-local state.
type Runner struct {
	cfg       config.Config
	logger    *zap.Logger
	axioms    belief.AxiomSet
	heuristic search.Heuristic
	oracle    oracle.Client
	store     journal.Store
}

// Option configures a Runner beyond what config.Config covers.
type Option func(*Runner)

// WithOracleClient overrides the HTTP client, mainly for tests.
func WithOracleClient(c oracle.Client) Option {
	return func(r *Runner) { r.oracle = c }
}

// WithJournalStore installs journal persistence.
func WithJournalStore(s journal.Store) Option {
	return func(r *Runner) { r.store = s }
}

// New builds a Runner from configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	axioms, err := belief.Axioms(cfg.Search.Axioms)
	if err != nil {
		return nil, err
	}

	var heuristic search.Heuristic
	if cfg.Search.RulesPath != "" {
		heuristic, err = search.NewMangleHeuristicFromFile(cfg.Search.RulesPath)
	} else {
		heuristic, err = search.NewMangleHeuristic(search.DefaultRules)
	}
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		logger:    logger,
		axioms:    axioms,
		heuristic: heuristic,
	}
	if cfg.Oracle.Endpoint != "" {
		r.oracle = oracle.NewHTTPClientWithConfig(oracle.Config{
			Endpoint: cfg.Oracle.Endpoint,
			Timeout:  cfg.Oracle.Timeout,
		})
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ParseAndElaborate turns source text into an elaborated script. Errors
// keep their package types so the CLI can map them to exit codes.
func (r *Runner) ParseAndElaborate(src string) (*elab.Script, error) {
	forms, err := syntax.Parse(src)
	if err != nil {
		return nil, err
	}
	return elab.Elaborate(forms)
}

// Run executes an elaborated script end to end. The returned Result
// carries the journal even when err is non-nil.
func (r *Runner) Run(ctx context.Context, script *elab.Script) (*Result, error) {
	jnl := journal.New(r.store)
	opts := []search.Option{search.WithHeuristic(r.heuristic)}
	if r.oracle != nil {
		opts = append(opts, search.WithOracle(r.oracle))
	}
	return r.run(ctx, script, jnl, search.New(jnl, r.logger, opts...))
}

// Replay re-executes a script under a recorded journal. No heuristic and
// no oracle are configured: the recorded resolution always wins, which is
// what makes replay independent of the oracle's continued availability.
// After the run, unconsumed entries and any sequence divergence surface
// as ReplayMismatch.
func (r *Runner) Replay(ctx context.Context, script *elab.Script, recorded *journal.Journal) (*Result, error) {
	cursor := recorded.Replay()
	jnl := journal.New(nil)
	res, err := r.run(ctx, script, jnl, search.New(jnl, r.logger, search.WithReplay(cursor)))
	if err != nil {
		return res, err
	}
	if n := cursor.Remaining(); n > 0 {
		return res, &journal.Error{
			Kind: journal.ReplayMismatch,
			Msg:  fmt.Sprintf("replay finished with %d recorded entries unconsumed", n),
		}
	}
	if diff := DiffJournals(recorded, res.Journal); diff != "" {
		return res, &journal.Error{
			Kind: journal.ReplayMismatch,
			Msg:  "replayed choice sequence diverged:\n" + diff,
		}
	}
	return res, nil
}

func (r *Runner) run(ctx context.Context, script *elab.Script, jnl *journal.Journal, ctrl *search.Controller) (*Result, error) {
	bel := belief.NewContext(r.axioms)
	for _, a := range script.Agents {
		bel.Introduce(a)
	}
	for _, assumption := range script.Assumptions {
		bel.Assert(assumption.Agent, assumption.Op, assumption.Prop)
	}

	env := eval.NewEnv(nil)
	ev := eval.New(env, r.cfg.Evaluation.Budget, r.logger)

	// Top-level definitions reduce in the deterministic fragment before
	// the goal runs; a definition that needs search is rejected.
	for _, def := range script.Defs {
		step := ev.ReduceFully(ctx, def.Value, bel)
		switch step.Kind {
		case eval.Stuck:
			return &Result{Journal: jnl, Belief: bel, Steps: ev.Steps()}, step.Err
		case eval.ChoicePoint:
			return &Result{Journal: jnl, Belief: bel, Steps: ev.Steps()},
				&eval.Error{Kind: eval.StuckTerm, Msg: fmt.Sprintf("definition %s requires search", def.Name)}
		}
		env.Define(def.Name, step.Term)
	}

	value, finalBel, err := ctrl.Run(ctx, ev, script.Goal, bel)
	res := &Result{
		Value:       value,
		Belief:      finalBel,
		Journal:     jnl,
		Steps:       ev.Steps(),
		OracleCalls: ctrl.OracleCalls(),
	}
	if res.Belief == nil {
		res.Belief = bel
	}
	if err != nil {
		return res, err
	}
	r.logger.Info("run finished",
		zap.String("value", term.Canonical(value)),
		zap.Int("steps", res.Steps),
		zap.Int("journal_entries", jnl.Len()),
		zap.Int("oracle_calls", res.OracleCalls))
	return res, nil
}

// DiffJournals compares two journals on the fields that define replay
// equivalence: the node hash and chosen index sequence. Sources and
// timestamps may differ between a live run and its replay. An empty
// string means equivalent.
func DiffJournals(a, b *journal.Journal) string {
	type step struct {
		NodeHash string
		Index    int
	}
	project := func(j *journal.Journal) []step {
		out := make([]step, 0, j.Len())
		for _, e := range j.Entries() {
			out = append(out, step{NodeHash: string(e.NodeHash), Index: e.ChosenIndex})
		}
		return out
	}
	return cmp.Diff(project(a), project(b))
}
