// Package search owns every non-deterministic decision of an evaluation
// run. The controller keeps an explicit stack of search nodes, so search
// depth is bounded by memory rather than by the host call stack, and
// resolves each choice point through a fixed policy: recorded journal
// first, then local heuristics, then the oracle, then declared order with
// backtracking.
package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"episteme/internal/belief"
	"episteme/internal/eval"
	"episteme/internal/journal"
	"episteme/internal/oracle"
	"episteme/internal/term"
)

// node is one point in the search tree: the alternatives opened there, the
// belief snapshot they fork from, and which alternatives have been tried.
// The stack itself provides the parent back-links.
type node struct {
	hash  term.Hash
	alts  []term.Term
	bel   *belief.Context
	tried map[int]bool
}

func (n *node) nextUntried() (int, bool) {
	for i := range n.alts {
		if !n.tried[i] {
			return i, true
		}
	}
	return 0, false
}

// Controller drives one run's search. It is not safe for concurrent use;
// each run owns its own controller.
type Controller struct {
	journal   *journal.Journal
	cursor    *journal.Cursor
	heuristic Heuristic
	oracle    oracle.Client
	logger    *zap.Logger

	stack       []*node
	oracleCalls int
}

// Option configures a Controller.
type Option func(*Controller)

// WithHeuristic installs a local heuristic (policy stage 2).
func WithHeuristic(h Heuristic) Option {
	return func(c *Controller) { c.heuristic = h }
}

// WithOracle installs an oracle client (policy stage 3).
func WithOracle(client oracle.Client) Option {
	return func(c *Controller) { c.oracle = client }
}

// WithReplay forces every resolution to consult the recorded journal
// (policy stage 1 always wins). In replay mode neither the heuristic nor
// the oracle is ever invoked.
func WithReplay(cursor *journal.Cursor) Option {
	return func(c *Controller) { c.cursor = cursor }
}

// New creates a controller appending resolutions to j.
func New(j *journal.Journal, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{journal: j, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OracleCalls reports how many times the oracle was consulted. Replay
// determinism demands this stays zero in replay mode.
func (c *Controller) OracleCalls() int { return c.oracleCalls }

// Depth reports the current search stack depth.
func (c *Controller) Depth() int { return len(c.stack) }

// NodeHash identifies a choice point: the content hash of the term under
// evaluation together with the belief snapshot at that point.
func NodeHash(t term.Term, bel *belief.Context) term.Hash {
	buf := append([]byte(term.Canonical(t)), '|')
	buf = append(buf, bel.Snapshot()...)
	return term.HashBytes(buf)
}

// Run reduces goal to a terminal witness, resolving choice points and
// backtracking as needed. It returns the witness and the belief context of
// the successful branch. A branch that gets stuck, or that terminates in
// the boolean false, is a failed derivation; search continues with the
// next untried alternative. Budget exhaustion is global and aborts the
// whole run.
func (c *Controller) Run(ctx context.Context, ev *eval.Evaluator, goal term.Term, bel *belief.Context) (term.Term, *belief.Context, error) {
	cur, curBel := goal, bel
	for {
		step := ev.Reduce(ctx, cur, curBel)
		switch step.Kind {
		case eval.Progress:
			cur = step.Term

		case eval.Final:
			if eval.IsFalse(step.Term) && len(c.stack) > 0 {
				t, b, err := c.backtrack(ctx)
				if err != nil {
					return nil, nil, err
				}
				cur, curBel = t, b
				continue
			}
			return step.Term, curBel, nil

		case eval.Stuck:
			if step.Err.Kind == eval.ReductionBudgetExceeded {
				return nil, nil, step.Err
			}
			if len(c.stack) == 0 {
				return nil, nil, step.Err
			}
			c.logger.Debug("branch failed", zap.String("reason", step.Err.Error()))
			t, b, err := c.backtrack(ctx)
			if err != nil {
				return nil, nil, err
			}
			cur, curBel = t, b

		case eval.ChoicePoint:
			t, b, err := c.open(ctx, cur, curBel, step.Alternatives)
			if err != nil {
				return nil, nil, err
			}
			cur, curBel = t, b
		}
	}
}

// open pushes a fresh search node and resolves its first alternative.
func (c *Controller) open(ctx context.Context, cur term.Term, curBel *belief.Context, alts []term.Term) (term.Term, *belief.Context, error) {
	n := &node{
		hash:  NodeHash(cur, curBel),
		alts:  alts,
		bel:   curBel,
		tried: make(map[int]bool),
	}
	c.stack = append(c.stack, n)
	return c.resolve(ctx, n, true)
}

// resolve picks an alternative for n per the policy. fresh distinguishes
// the first visit (heuristic and oracle may be consulted) from a revisit
// after backtracking (declared order only).
func (c *Controller) resolve(ctx context.Context, n *node, fresh bool) (term.Term, *belief.Context, error) {
	// Stage 1: recorded journal. In replay mode this stage always wins.
	if c.cursor != nil {
		if fresh {
			// The recorded run may have opened this node and abandoned it
			// without committing (an oracle rejection): the next recorded
			// entry then belongs to an ancestor's recovery choice. Follow
			// the recorded run and abandon the node too.
			if h, ok := c.cursor.PeekHash(); ok && h != n.hash {
				c.pop()
				return c.backtrack(ctx)
			}
		}
		entry, ok, err := c.cursor.Next(n.hash)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, replayExhausted(n.hash)
		}
		if entry.ChosenIndex < 0 || entry.ChosenIndex >= len(n.alts) {
			return nil, nil, replayOutOfRange(entry, len(n.alts))
		}
		return c.commit(n, entry.ChosenIndex, entry.Source)
	}

	if fresh {
		// Stage 2: local heuristic, only on a unique confident choice.
		if c.heuristic != nil {
			idx, ok, err := c.heuristic.Choose(n.alts)
			if err != nil {
				c.logger.Warn("heuristic failed, falling through", zap.Error(err))
			} else if ok && !n.tried[idx] {
				return c.commit(n, idx, journal.SourceLocalHeuristic)
			}
		}

		// Stage 3: oracle. Guidance is advisory; reject and timeout pop
		// this node and backtrack rather than aborting the run.
		if c.oracle != nil {
			idx, err := c.consultOracle(ctx, n)
			switch {
			case err == nil:
				if !n.tried[idx] {
					return c.commit(n, idx, journal.SourceOracle)
				}
			case errors.Is(err, oracle.ErrRejected), errors.Is(err, oracle.ErrTimeout):
				c.logger.Debug("oracle declined node", zap.Error(err))
				c.pop()
				return c.backtrack(ctx)
			default:
				c.logger.Warn("oracle unavailable, falling through", zap.Error(err))
			}
		}
	}

	// Stage 4: declared order.
	if idx, ok := n.nextUntried(); ok {
		src := journal.SourceLocalHeuristic
		if len(n.alts) == 1 {
			src = journal.SourceDeterministic
		}
		return c.commit(n, idx, src)
	}
	c.pop()
	return c.backtrack(ctx)
}

// commit journals the decision, forks the belief snapshot for the branch,
// and hands back the committed term. Forking is what keeps sibling
// branches isolated: beliefs added inside this branch never reach the
// node's snapshot.
func (c *Controller) commit(n *node, idx int, src journal.Source) (term.Term, *belief.Context, error) {
	n.tried[idx] = true
	if _, err := c.journal.Append(journal.Entry{
		NodeHash:    n.hash,
		ChosenIndex: idx,
		Source:      src,
	}); err != nil {
		return nil, nil, err
	}
	c.logger.Debug("choice committed",
		zap.String("node", string(n.hash)),
		zap.Int("index", idx),
		zap.String("source", string(src)))
	return n.alts[idx], n.bel.Fork(), nil
}

func (c *Controller) consultOracle(ctx context.Context, n *node) (int, error) {
	c.oracleCalls++
	req := oracle.Request{
		NodeHash: string(n.hash),
		Goal:     term.Canonical(term.Choice{Alternatives: n.alts}),
		Context:  string(n.bel.Snapshot()),
	}
	for _, alt := range n.alts {
		req.Alternatives = append(req.Alternatives, term.Canonical(alt))
	}
	resp, err := c.oracle.Choose(ctx, req)
	if err != nil {
		return 0, err
	}
	if resp.ChosenIndex < 0 || resp.ChosenIndex >= len(n.alts) {
		return 0, searchErrf(OracleRejected, "oracle chose index %d of %d", resp.ChosenIndex, len(n.alts))
	}
	return resp.ChosenIndex, nil
}

// backtrack finds the deepest node with an untried alternative and commits
// to it. Revisits never re-consult the heuristic or the oracle; recovery
// choices follow declared order (or, in replay mode, the recorded
// journal). Exhausting the root yields NoWitnessFound.
func (c *Controller) backtrack(ctx context.Context) (term.Term, *belief.Context, error) {
	for len(c.stack) > 0 {
		n := c.top()
		if c.cursor != nil {
			// Re-resolve only if the recorded run resolved this node
			// again; otherwise the recorded run abandoned it too.
			if h, ok := c.cursor.PeekHash(); ok && h == n.hash {
				return c.resolve(ctx, n, false)
			}
			c.pop()
			continue
		}
		if _, ok := n.nextUntried(); ok {
			return c.resolve(ctx, n, false)
		}
		c.pop()
	}
	if c.cursor != nil && c.cursor.Remaining() > 0 {
		return nil, nil, &journal.Error{
			Kind: journal.ReplayMismatch,
			Msg:  fmt.Sprintf("live search diverged from the recorded derivation with %d entries unconsumed", c.cursor.Remaining()),
		}
	}
	return nil, nil, searchErrf(NoWitnessFound, "all alternatives exhausted")
}

func replayExhausted(h term.Hash) error {
	return &journal.Error{
		Kind: journal.ReplayMismatch,
		Msg:  fmt.Sprintf("live run reached choice point %s beyond the recorded journal", h),
	}
}

func replayOutOfRange(e journal.Entry, alts int) error {
	return &journal.Error{
		Kind: journal.ReplayMismatch,
		Msg:  fmt.Sprintf("recorded entry %d chose index %d but the live node has %d alternatives", e.StepID, e.ChosenIndex, alts),
	}
}

func (c *Controller) top() *node { return c.stack[len(c.stack)-1] }

func (c *Controller) pop() {
	c.stack = c.stack[:len(c.stack)-1]
}
