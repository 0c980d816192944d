// Package belief tracks per-agent epistemic state threaded through
// evaluation. A Context is append-only along one search branch and is
// copied, never aliased, when the search controller forks a branch.
package belief

import (
	"sort"

	"episteme/internal/term"
)

// agentState holds the propositions an agent knows and believes, keyed by
// canonical term form so structurally equal propositions collide as
// intended. Values are the terms themselves, which witness enumeration
// needs back.
type agentState struct {
	knows    map[string]term.Term
	believes map[string]term.Term
}

func newAgentState() *agentState {
	return &agentState{
		knows:    make(map[string]term.Term),
		believes: make(map[string]term.Term),
	}
}

func (s *agentState) clone() *agentState {
	c := newAgentState()
	for k, v := range s.knows {
		c.knows[k] = v
	}
	for k, v := range s.believes {
		c.believes[k] = v
	}
	return c
}

// Context is the belief context for one search branch. It is not safe for
// concurrent use; each evaluation run owns its own Context.
type Context struct {
	agents map[term.Agent]*agentState
	axioms AxiomSet
}

// NewContext returns an empty context governed by the given axiom set.
func NewContext(axioms AxiomSet) *Context {
	return &Context{
		agents: make(map[term.Agent]*agentState),
		axioms: axioms,
	}
}

// Axioms returns the axiom set governing this context.
func (c *Context) Axioms() AxiomSet { return c.axioms }

// Introduce registers an agent. Introducing an agent twice is a no-op.
func (c *Context) Introduce(a term.Agent) {
	if _, ok := c.agents[a]; !ok {
		c.agents[a] = newAgentState()
	}
}

// HasAgent reports whether a has been introduced.
func (c *Context) HasAgent(a term.Agent) bool {
	_, ok := c.agents[a]
	return ok
}

// Agents returns the introduced agents in a stable (syntactic) order.
func (c *Context) Agents() []term.Agent {
	out := make([]term.Agent, 0, len(c.agents))
	for a := range c.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Assert records that agent a holds p under op. The agent is introduced
// implicitly if needed. Assertions are never retracted within a branch.
func (c *Context) Assert(a term.Agent, op term.ModalOp, p term.Term) {
	c.Introduce(a)
	key := term.Canonical(p)
	st := c.agents[a]
	switch op {
	case term.Know:
		st.knows[key] = p
	case term.Believe:
		st.believes[key] = p
	}
}

// Holds reports whether the context directly records p for a under op.
// Knowledge entails belief: a known proposition also counts as believed.
// Axiom-derived entailments beyond that live in AxiomSet.Resolve.
func (c *Context) Holds(a term.Agent, op term.ModalOp, p term.Term) bool {
	st, ok := c.agents[a]
	if !ok {
		return false
	}
	key := term.Canonical(p)
	if _, ok := st.knows[key]; ok {
		return true
	}
	if op == term.Believe {
		_, ok := st.believes[key]
		return ok
	}
	return false
}

// Fork returns a deep copy of the context. The copy shares no mutable
// state with the original, which is what keeps sibling search branches
// isolated from each other.
func (c *Context) Fork() *Context {
	f := NewContext(c.axioms)
	for a, st := range c.agents {
		f.agents[a] = st.clone()
	}
	return f
}

// Snapshot returns a canonical byte rendering of the full context,
// suitable for content hashing alongside a term. Agents and propositions
// appear in sorted order so equal contexts hash equally.
func (c *Context) Snapshot() []byte {
	var buf []byte
	for _, a := range c.Agents() {
		st := c.agents[a]
		buf = append(buf, '[')
		buf = append(buf, string(a)...)
		buf = append(buf, '|')
		buf = appendSortedKeys(buf, st.knows)
		buf = append(buf, '|')
		buf = appendSortedKeys(buf, st.believes)
		buf = append(buf, ']')
	}
	return buf
}

// Propositions returns every proposition recorded anywhere in the
// context, deduplicated, in canonical order. The evaluator enumerates
// these as candidate witnesses for prop-domain quantifiers.
func (c *Context) Propositions() []term.Term {
	seen := make(map[string]term.Term)
	for _, st := range c.agents {
		for k, v := range st.knows {
			seen[k] = v
		}
		for k, v := range st.believes {
			seen[k] = v
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]term.Term, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

func appendSortedKeys(buf []byte, set map[string]term.Term) []byte {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, k...)
	}
	return buf
}
