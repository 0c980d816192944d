package term

import "strings"

// Type is the closed set of core types. Like terms, types are immutable
// values and share structure freely.
type Type interface {
	typeKey(sb *strings.Builder)
}

// Base types.
type (
	// BoolType is the type of boolean literals and resolved modalities.
	BoolType struct{}
	// IntType is the type of integer literals.
	IntType struct{}
	// StrType is the type of string literals.
	StrType struct{}
	// PropType is the type of propositions, including modal formulas.
	PropType struct{}
	// AgentType is the type of agent identifiers.
	AgentType struct{}
)

// ArrowType is the function type Dom -> Cod.
type ArrowType struct {
	Dom Type
	Cod Type
}

func (BoolType) typeKey(sb *strings.Builder)  { sb.WriteString("bool") }
func (IntType) typeKey(sb *strings.Builder)   { sb.WriteString("int") }
func (StrType) typeKey(sb *strings.Builder)   { sb.WriteString("str") }
func (PropType) typeKey(sb *strings.Builder)  { sb.WriteString("prop") }
func (AgentType) typeKey(sb *strings.Builder) { sb.WriteString("agent") }

func (t ArrowType) typeKey(sb *strings.Builder) {
	sb.WriteByte('(')
	t.Dom.typeKey(sb)
	sb.WriteString(" -> ")
	t.Cod.typeKey(sb)
	sb.WriteByte(')')
}

func typeKey(t Type) string {
	if t == nil {
		return "_"
	}
	var sb strings.Builder
	t.typeKey(&sb)
	return sb.String()
}

// TypeKey returns the canonical rendering of t, or "_" for nil.
func TypeKey(t Type) string { return typeKey(t) }

// TypesEqual reports structural equality of two types. A nil type is equal
// only to nil.
func TypesEqual(a, b Type) bool { return typeKey(a) == typeKey(b) }

// Assignable reports whether a value of type from may appear where type to
// is expected. Truth values are propositions, so bool is assignable to
// prop; everything else requires structural equality.
func Assignable(from, to Type) bool {
	if TypesEqual(from, to) {
		return true
	}
	_, fromBool := from.(BoolType)
	_, toProp := to.(PropType)
	return fromBool && toProp
}

// Judgment is a typing assertion produced by the elaborator:
// Context |- Term : Type. It is never mutated after creation.
type Judgment struct {
	// Context maps the free variables of Subject to their types. The map
	// is owned by the Judgment; callers must not mutate it.
	Context map[string]Type
	Subject Term
	Type    Type
}

func (j Judgment) String() string {
	var sb strings.Builder
	sb.WriteString("|- ")
	sb.WriteString(canon(j.Subject))
	sb.WriteString(" : ")
	sb.WriteString(typeKey(j.Type))
	return sb.String()
}
