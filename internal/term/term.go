// Package term defines the core calculus: immutable terms, types, and
// judgments produced by elaboration and consumed by the evaluator.
// Terms share subterm structure freely; nothing in this package mutates a
// term after construction.
package term

import (
	"fmt"
	"strings"
)

// ModalOp identifies an epistemic modality.
type ModalOp int

const (
	Know ModalOp = iota
	Believe
)

func (op ModalOp) String() string {
	switch op {
	case Know:
		return "know"
	case Believe:
		return "believe"
	default:
		return fmt.Sprintf("modal(%d)", int(op))
	}
}

// QuantKind identifies a quantifier.
type QuantKind int

const (
	Forall QuantKind = iota
	Exists
)

func (k QuantKind) String() string {
	switch k {
	case Forall:
		return "forall"
	case Exists:
		return "exists"
	default:
		return fmt.Sprintf("quant(%d)", int(k))
	}
}

// Agent names a knower/believer. Agents compare by equality only; any
// ordering applied to them (e.g. for canonical serialization) is purely
// syntactic and carries no semantic weight.
type Agent string

// Term is the closed set of core-calculus term forms. All implementations
// are immutable value types declared in this package.
type Term interface {
	// write appends the canonical serialized form used for hashing and
	// display. The form is unambiguous: every node is parenthesized with
	// its tag.
	write(sb *strings.Builder)

	fmt.Stringer
}

// Var is a resolved variable reference.
type Var struct {
	Name string
}

// Abs is a single-parameter abstraction. Multi-parameter functions are
// curried by the elaborator.
type Abs struct {
	Param string
	// ParamType is the annotated or inferred domain of the parameter.
	ParamType Type
	Body      Term
}

// App is an application of Fn to Arg.
type App struct {
	Fn  Term
	Arg Term
}

// Lit is a literal constant.
type Lit struct {
	Value Literal
}

// Prop is an atomic proposition, identified by its formula text.
type Prop struct {
	Formula string
}

// Modal scopes Body to the epistemic state of Agent.
type Modal struct {
	Op    ModalOp
	Agent Agent
	Body  Term
}

// Quant binds Var over Body with the given domain type.
type Quant struct {
	Kind QuantKind
	Var  string
	// Domain is the type quantified over.
	Domain Type
	Body   Term
}

// Choice marks a search branch point. Alternatives are ordered; the order
// is the declared order used by exhaustive search.
type Choice struct {
	Alternatives []Term
}

// Literal is the payload of a Lit term.
type Literal struct {
	Kind LitKind
	Bool bool
	Int  int64
	Str  string
}

// LitKind discriminates Literal payloads.
type LitKind int

const (
	LitBool LitKind = iota
	LitInt
	LitStr
)

// True and False are the boolean literals modal reduction produces.
var (
	True  = Lit{Value: Literal{Kind: LitBool, Bool: true}}
	False = Lit{Value: Literal{Kind: LitBool, Bool: false}}
)

// Bool constructs a boolean literal term.
func Bool(b bool) Lit { return Lit{Value: Literal{Kind: LitBool, Bool: b}} }

// Int constructs an integer literal term.
func Int(n int64) Lit { return Lit{Value: Literal{Kind: LitInt, Int: n}} }

// Str constructs a string literal term.
func Str(s string) Lit { return Lit{Value: Literal{Kind: LitStr, Str: s}} }

func (l Literal) write(sb *strings.Builder) {
	switch l.Kind {
	case LitBool:
		fmt.Fprintf(sb, "%t", l.Bool)
	case LitInt:
		fmt.Fprintf(sb, "%d", l.Int)
	case LitStr:
		fmt.Fprintf(sb, "%q", l.Str)
	}
}

func (l Literal) String() string {
	var sb strings.Builder
	l.write(&sb)
	return sb.String()
}

func (t Var) write(sb *strings.Builder) {
	sb.WriteString("(var ")
	sb.WriteString(t.Name)
	sb.WriteByte(')')
}

func (t Abs) write(sb *strings.Builder) {
	sb.WriteString("(abs ")
	sb.WriteString(t.Param)
	sb.WriteByte(':')
	sb.WriteString(typeKey(t.ParamType))
	sb.WriteByte(' ')
	t.Body.write(sb)
	sb.WriteByte(')')
}

func (t App) write(sb *strings.Builder) {
	sb.WriteString("(app ")
	t.Fn.write(sb)
	sb.WriteByte(' ')
	t.Arg.write(sb)
	sb.WriteByte(')')
}

func (t Lit) write(sb *strings.Builder) {
	sb.WriteString("(lit ")
	t.Value.write(sb)
	sb.WriteByte(')')
}

func (t Prop) write(sb *strings.Builder) {
	sb.WriteString("(prop ")
	fmt.Fprintf(sb, "%q", t.Formula)
	sb.WriteByte(')')
}

func (t Modal) write(sb *strings.Builder) {
	sb.WriteByte('(')
	sb.WriteString(t.Op.String())
	sb.WriteByte(' ')
	sb.WriteString(string(t.Agent))
	sb.WriteByte(' ')
	t.Body.write(sb)
	sb.WriteByte(')')
}

func (t Quant) write(sb *strings.Builder) {
	sb.WriteByte('(')
	sb.WriteString(t.Kind.String())
	sb.WriteByte(' ')
	sb.WriteString(t.Var)
	sb.WriteByte(':')
	sb.WriteString(typeKey(t.Domain))
	sb.WriteByte(' ')
	t.Body.write(sb)
	sb.WriteByte(')')
}

func (t Choice) write(sb *strings.Builder) {
	sb.WriteString("(choice")
	for _, alt := range t.Alternatives {
		sb.WriteByte(' ')
		alt.write(sb)
	}
	sb.WriteByte(')')
}

func (t Var) String() string    { return canon(t) }
func (t Abs) String() string    { return canon(t) }
func (t App) String() string    { return canon(t) }
func (t Lit) String() string    { return canon(t) }
func (t Prop) String() string   { return canon(t) }
func (t Modal) String() string  { return canon(t) }
func (t Quant) String() string  { return canon(t) }
func (t Choice) String() string { return canon(t) }

func canon(t Term) string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

// Canonical returns the canonical serialized form of t. Two terms are
// structurally equal iff their canonical forms are byte-equal.
func Canonical(t Term) string { return canon(t) }

// Equal reports structural equality of two terms.
func Equal(a, b Term) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return canon(a) == canon(b)
}
