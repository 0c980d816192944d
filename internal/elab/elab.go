// Package elab converts the front end's AST into typed core terms. The
// elaborator resolves identifiers, checks modal scoping, and produces a
// Judgment for the goal term. It has no side effects: directives such as
// assumptions are returned for the runner to install, not applied here.
package elab

import (
	"strconv"

	"episteme/internal/syntax"
	"episteme/internal/term"
)

// Assumption seeds the belief context before evaluation: Agent holds Prop
// under Op.
type Assumption struct {
	Agent term.Agent
	Op    term.ModalOp
	Prop  term.Term
}

// Def is a top-level definition installed into the evaluation environment
// before the goal runs. Definitions are elaborated in order; later ones may
// refer to earlier ones.
type Def struct {
	Name  string
	Value term.Term
	Type  term.Type
}

// Script is the elaborated form of a whole surface script: the declared
// agents, the top-level definitions, the belief assumptions, and the typed
// goal term.
type Script struct {
	Agents      []term.Agent
	Defs        []Def
	Assumptions []Assumption
	Goal        term.Term
	Judgment    term.Judgment
}

// scope is an immutable-by-convention chain of variable typings. Child
// scopes shadow; they never mutate the parent.
type scope struct {
	parent *scope
	name   string
	typ    term.Type
}

func (s *scope) lookup(name string) (term.Type, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name == name {
			return cur.typ, true
		}
	}
	return nil, false
}

func (s *scope) bind(name string, typ term.Type) *scope {
	return &scope{parent: s, name: name, typ: typ}
}

type elaborator struct {
	agents  map[term.Agent]bool
	globals *scope
}

// Elaborate processes a script's top-level forms. Directive forms (agent,
// assume) may appear in any order before the goal; exactly one goal term
// must remain.
func Elaborate(forms []*syntax.Node) (*Script, error) {
	e := &elaborator{agents: make(map[term.Agent]bool)}
	script := &Script{}

	var goal *syntax.Node
	for _, form := range forms {
		switch form.Head() {
		case "agent":
			if err := e.agentDirective(form, script); err != nil {
				return nil, err
			}
		case "assume":
			if err := e.assumeDirective(form, script); err != nil {
				return nil, err
			}
		case "define":
			if err := e.defineDirective(form, script); err != nil {
				return nil, err
			}
		default:
			if goal != nil {
				return nil, errf(TypeMismatch, form.Pos, "multiple goal terms (previous at %s)", goal.Pos)
			}
			goal = form
		}
	}
	if goal == nil {
		return nil, errf(TypeMismatch, syntax.Pos{Line: 1, Col: 1}, "script has no goal term")
	}

	t, typ, err := e.elabTerm(goal, e.globals)
	if err != nil {
		return nil, err
	}
	script.Goal = t
	script.Judgment = term.Judgment{
		Context: map[string]term.Type{},
		Subject: t,
		Type:    typ,
	}
	return script, nil
}

func (e *elaborator) agentDirective(form *syntax.Node, script *Script) error {
	if len(form.List) != 2 || !form.List[1].IsAtom() {
		return errf(UnknownAgent, form.Pos, "agent directive wants one identifier")
	}
	a := term.Agent(form.List[1].Atom)
	if !e.agents[a] {
		e.agents[a] = true
		script.Agents = append(script.Agents, a)
	}
	return nil
}

func (e *elaborator) assumeDirective(form *syntax.Node, script *Script) error {
	// (assume <agent> know|believe <prop-term>)
	if len(form.List) != 4 || !form.List[1].IsAtom() || !form.List[2].IsAtom() {
		return errf(ModalScopeError, form.Pos, "assume wants (assume agent know|believe prop)")
	}
	a := term.Agent(form.List[1].Atom)
	if !e.agents[a] {
		return errf(UnknownAgent, form.List[1].Pos, "agent %s referenced before introduction", a)
	}
	op, ok := modalOp(form.List[2].Atom)
	if !ok {
		return errf(ModalScopeError, form.List[2].Pos, "want know or believe, got %s", form.List[2].Atom)
	}
	p, typ, err := e.elabTerm(form.List[3], e.globals)
	if err != nil {
		return err
	}
	if !term.Assignable(typ, term.PropType{}) {
		return errf(TypeMismatch, form.List[3].Pos, "assumption must be a proposition, got %s", term.TypeKey(typ))
	}
	script.Assumptions = append(script.Assumptions, Assumption{Agent: a, Op: op, Prop: p})
	return nil
}

func (e *elaborator) defineDirective(form *syntax.Node, script *Script) error {
	// (define <name> <term>)
	if len(form.List) != 3 || !form.List[1].IsAtom() {
		return errf(TypeMismatch, form.Pos, "define wants (define name term)")
	}
	name := form.List[1].Atom
	t, typ, err := e.elabTerm(form.List[2], e.globals)
	if err != nil {
		return err
	}
	e.globals = e.globals.bind(name, typ)
	script.Defs = append(script.Defs, Def{Name: name, Value: t, Type: typ})
	return nil
}

func modalOp(s string) (term.ModalOp, bool) {
	switch s {
	case "know":
		return term.Know, true
	case "believe":
		return term.Believe, true
	}
	return 0, false
}

func (e *elaborator) elabTerm(n *syntax.Node, sc *scope) (term.Term, term.Type, error) {
	if n.IsStr {
		return term.Str(n.Atom), term.StrType{}, nil
	}
	if n.IsAtom() {
		return e.elabAtom(n, sc)
	}
	if len(n.List) == 0 {
		return nil, nil, errf(TypeMismatch, n.Pos, "empty form")
	}

	switch n.Head() {
	case "prop":
		return e.elabProp(n)
	case "lambda":
		return e.elabBinder(n, sc, false)
	case "forall", "exists":
		return e.elabBinder(n, sc, true)
	case "know", "believe":
		return e.elabModal(n, sc)
	case "choice":
		return e.elabChoice(n, sc)
	default:
		return e.elabApp(n, sc)
	}
}

func (e *elaborator) elabAtom(n *syntax.Node, sc *scope) (term.Term, term.Type, error) {
	switch n.Atom {
	case "true":
		return term.Bool(true), term.BoolType{}, nil
	case "false":
		return term.Bool(false), term.BoolType{}, nil
	}
	if v, err := strconv.ParseInt(n.Atom, 10, 64); err == nil {
		return term.Int(v), term.IntType{}, nil
	}
	if typ, ok := sc.lookup(n.Atom); ok {
		return term.Var{Name: n.Atom}, typ, nil
	}
	return nil, nil, errf(UnboundVariable, n.Pos, "%s is not bound", n.Atom)
}

func (e *elaborator) elabProp(n *syntax.Node) (term.Term, term.Type, error) {
	if len(n.List) != 2 || (!n.List[1].IsAtom() && !n.List[1].IsStr) {
		return nil, nil, errf(TypeMismatch, n.Pos, "prop wants one name")
	}
	return term.Prop{Formula: n.List[1].Atom}, term.PropType{}, nil
}

// elabBinder handles lambda/forall/exists, all shaped
// (head (x type) body).
func (e *elaborator) elabBinder(n *syntax.Node, sc *scope, quant bool) (term.Term, term.Type, error) {
	if len(n.List) != 3 {
		return nil, nil, errf(TypeMismatch, n.Pos, "%s wants a binder and a body", n.Head())
	}
	binder := n.List[1]
	if !binder.IsList() || len(binder.List) != 2 || !binder.List[0].IsAtom() {
		return nil, nil, errf(TypeMismatch, binder.Pos, "binder wants (name type)")
	}
	name := binder.List[0].Atom
	domain, err := e.elabType(binder.List[1])
	if err != nil {
		return nil, nil, err
	}

	body, bodyType, err := e.elabTerm(n.List[2], sc.bind(name, domain))
	if err != nil {
		return nil, nil, err
	}

	if quant {
		if !term.Assignable(bodyType, term.PropType{}) {
			return nil, nil, errf(TypeMismatch, n.List[2].Pos,
				"%s over %s needs a proposition body, got %s",
				n.Head(), term.TypeKey(domain), term.TypeKey(bodyType))
		}
		kind := term.Forall
		if n.Head() == "exists" {
			kind = term.Exists
		}
		return term.Quant{Kind: kind, Var: name, Domain: domain, Body: body}, term.PropType{}, nil
	}

	return term.Abs{Param: name, ParamType: domain, Body: body},
		term.ArrowType{Dom: domain, Cod: bodyType}, nil
}

func (e *elaborator) elabModal(n *syntax.Node, sc *scope) (term.Term, term.Type, error) {
	if len(e.agents) == 0 {
		return nil, nil, errf(ModalScopeError, n.Pos, "%s used before any agent introduction", n.Head())
	}
	if len(n.List) != 3 || !n.List[1].IsAtom() {
		return nil, nil, errf(ModalScopeError, n.Pos, "%s wants (agent prop)", n.Head())
	}
	a := term.Agent(n.List[1].Atom)
	if !e.agents[a] {
		return nil, nil, errf(UnknownAgent, n.List[1].Pos, "agent %s referenced before introduction", a)
	}
	op, _ := modalOp(n.Head())
	body, bodyType, err := e.elabTerm(n.List[2], sc)
	if err != nil {
		return nil, nil, err
	}
	if !term.Assignable(bodyType, term.PropType{}) {
		return nil, nil, errf(TypeMismatch, n.List[2].Pos,
			"modal body must be a proposition, got %s", term.TypeKey(bodyType))
	}
	return term.Modal{Op: op, Agent: a, Body: body}, term.PropType{}, nil
}

func (e *elaborator) elabChoice(n *syntax.Node, sc *scope) (term.Term, term.Type, error) {
	if len(n.List) < 2 {
		return nil, nil, errf(TypeMismatch, n.Pos, "choice wants at least one alternative")
	}
	var alts []term.Term
	var altType term.Type
	for _, altNode := range n.List[1:] {
		alt, typ, err := e.elabTerm(altNode, sc)
		if err != nil {
			return nil, nil, err
		}
		if altType == nil {
			altType = typ
		} else if !term.TypesEqual(altType, typ) {
			return nil, nil, errf(TypeMismatch, altNode.Pos,
				"choice alternatives disagree: %s vs %s",
				term.TypeKey(altType), term.TypeKey(typ))
		}
		alts = append(alts, alt)
	}
	return term.Choice{Alternatives: alts}, altType, nil
}

func (e *elaborator) elabApp(n *syntax.Node, sc *scope) (term.Term, term.Type, error) {
	fn, fnType, err := e.elabTerm(n.List[0], sc)
	if err != nil {
		return nil, nil, err
	}
	for _, argNode := range n.List[1:] {
		arrow, ok := fnType.(term.ArrowType)
		if !ok {
			return nil, nil, errf(TypeMismatch, argNode.Pos,
				"applying a non-function of type %s", term.TypeKey(fnType))
		}
		arg, argType, err := e.elabTerm(argNode, sc)
		if err != nil {
			return nil, nil, err
		}
		if !term.TypesEqual(argType, arrow.Dom) {
			return nil, nil, errf(TypeMismatch, argNode.Pos,
				"argument type %s does not match domain %s",
				term.TypeKey(argType), term.TypeKey(arrow.Dom))
		}
		fn = term.App{Fn: fn, Arg: arg}
		fnType = arrow.Cod
	}
	return fn, fnType, nil
}

func (e *elaborator) elabType(n *syntax.Node) (term.Type, error) {
	if n.IsAtom() {
		switch n.Atom {
		case "bool":
			return term.BoolType{}, nil
		case "int":
			return term.IntType{}, nil
		case "str":
			return term.StrType{}, nil
		case "prop":
			return term.PropType{}, nil
		case "agent":
			return term.AgentType{}, nil
		}
		return nil, errf(TypeMismatch, n.Pos, "unknown type %s", n.Atom)
	}
	if n.IsList() && n.Head() == "->" && len(n.List) == 3 {
		dom, err := e.elabType(n.List[1])
		if err != nil {
			return nil, err
		}
		cod, err := e.elabType(n.List[2])
		if err != nil {
			return nil, err
		}
		return term.ArrowType{Dom: dom, Cod: cod}, nil
	}
	return nil, errf(TypeMismatch, n.Pos, "malformed type")
}
