package syntax

import (
	"fmt"
)

// Node is one parsed form. A Node is either an atom (Atom non-empty or
// IsStr set) or a list. The elaborator gives forms their meaning; the
// parser only checks shape.
type Node struct {
	Pos   Pos
	Atom  string
	IsStr bool
	List  []*Node
}

// IsAtom reports whether n is a bare (non-string) atom.
func (n *Node) IsAtom() bool { return !n.IsStr && n.Atom != "" && n.List == nil }

// IsList reports whether n is a list form.
func (n *Node) IsList() bool { return n.List != nil }

// Head returns the leading atom of a list form, or "" if the form has no
// atom head.
func (n *Node) Head() string {
	if n.IsList() && len(n.List) > 0 && n.List[0].IsAtom() {
		return n.List[0].Atom
	}
	return ""
}

func (n *Node) String() string {
	if n.IsStr {
		return fmt.Sprintf("%q", n.Atom)
	}
	if !n.IsList() {
		return n.Atom
	}
	s := "("
	for i, c := range n.List {
		if i > 0 {
			s += " "
		}
		s += c.String()
	}
	return s + ")"
}

// ParseError reports malformed surface syntax.
type ParseError struct {
	Pos Pos
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

type parser struct {
	lex  *lexer
	tok  Token
	prev Pos
}

// Parse parses a whole script into its top-level forms.
func Parse(src string) ([]*Node, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.bump(); err != nil {
		return nil, err
	}
	var forms []*Node
	for p.tok.Type != EOF {
		n, err := p.form()
		if err != nil {
			return nil, err
		}
		forms = append(forms, n)
	}
	return forms, nil
}

func (p *parser) bump() error {
	p.prev = p.tok.Pos
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) form() (*Node, error) {
	switch p.tok.Type {
	case ATOM:
		n := &Node{Pos: p.tok.Pos, Atom: p.tok.Text}
		return n, p.bump()
	case STRING:
		n := &Node{Pos: p.tok.Pos, Atom: p.tok.Text, IsStr: true}
		return n, p.bump()
	case LPAREN:
		open := p.tok.Pos
		if err := p.bump(); err != nil {
			return nil, err
		}
		n := &Node{Pos: open, List: []*Node{}}
		for p.tok.Type != RPAREN {
			if p.tok.Type == EOF {
				return nil, &ParseError{Pos: open, Msg: "unclosed list"}
			}
			child, err := p.form()
			if err != nil {
				return nil, err
			}
			n.List = append(n.List, child)
		}
		return n, p.bump()
	case RPAREN:
		return nil, &ParseError{Pos: p.tok.Pos, Msg: "unexpected )"}
	default:
		return nil, &ParseError{Pos: p.tok.Pos, Msg: fmt.Sprintf("unexpected token %q", p.tok.Text)}
	}
}
