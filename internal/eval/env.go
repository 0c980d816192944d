package eval

import "episteme/internal/term"

// Env maps variable names to bound value terms. Frames chain upward:
// a child frame shadows its parent and never mutates it, so frames can be
// shared structurally across search branches.
type Env struct {
	parent *Env
	table  map[string]term.Term
}

// NewEnv creates a frame extending parent (parent may be nil for the root).
func NewEnv(parent *Env) *Env {
	return &Env{parent: parent, table: make(map[string]term.Term)}
}

// Define binds name in this frame, shadowing any parent binding. Bindings
// in a frame are installed before the frame is shared; Define must not be
// called on a frame a child already extends.
func (e *Env) Define(name string, v term.Term) {
	e.table[name] = v
}

// Get resolves name through the frame chain.
func (e *Env) Get(name string) (term.Term, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.table[name]; ok {
			return v, true
		}
	}
	return nil, false
}
