package eval

import "episteme/internal/term"

// subst replaces free occurrences of name in t with v. Substituted values
// are closed terms under call-by-value, so no capture is possible; the
// only care needed is stopping at binders that re-bind name.
func subst(t term.Term, name string, v term.Term) term.Term {
	switch n := t.(type) {
	case term.Var:
		if n.Name == name {
			return v
		}
		return n
	case term.Abs:
		if n.Param == name {
			return n
		}
		return term.Abs{Param: n.Param, ParamType: n.ParamType, Body: subst(n.Body, name, v)}
	case term.App:
		return term.App{Fn: subst(n.Fn, name, v), Arg: subst(n.Arg, name, v)}
	case term.Lit, term.Prop:
		return n
	case term.Modal:
		return term.Modal{Op: n.Op, Agent: n.Agent, Body: subst(n.Body, name, v)}
	case term.Quant:
		if n.Var == name {
			return n
		}
		return term.Quant{Kind: n.Kind, Var: n.Var, Domain: n.Domain, Body: subst(n.Body, name, v)}
	case term.Choice:
		alts := make([]term.Term, len(n.Alternatives))
		for i, alt := range n.Alternatives {
			alts[i] = subst(alt, name, v)
		}
		return term.Choice{Alternatives: alts}
	default:
		return t
	}
}
