// Package syntax is the resident surface front end: a small
// s-expression-flavored script language that parses to a generic AST the
// elaborator consumes. The full surface grammar of the source ecosystem is
// out of scope; this grammar covers the regression corpus.
package syntax

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the kind of token.
type TokenType int

const (
	EOF TokenType = iota
	LPAREN
	RPAREN
	ATOM
	STRING
)

// Pos is a 1-based source position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

// Token is one lexeme with its source position.
type Token struct {
	Type TokenType
	Text string
	Pos  Pos
}

// LexError reports a malformed lexeme.
type LexError struct {
	Pos Pos
	Msg string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("lex error at %s: %s", e.Pos, e.Msg)
}

type lexer struct {
	src  []rune
	off  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src), line: 1, col: 1}
}

func (l *lexer) pos() Pos { return Pos{Line: l.line, Col: l.col} }

func (l *lexer) peek() rune {
	if l.off >= len(l.src) {
		return 0
	}
	return l.src[l.off]
}

func (l *lexer) advance() rune {
	r := l.src[l.off]
	l.off++
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		r := l.peek()
		if r == ';' {
			// Comment to end of line.
			for l.off < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
			continue
		}
		if !unicode.IsSpace(r) {
			return
		}
		l.advance()
	}
}

func isAtomRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '_', '-', '+', '*', '/', '<', '>', '=', '?', '!', '.', ':':
		return true
	}
	return false
}

func (l *lexer) next() (Token, error) {
	l.skipSpace()
	start := l.pos()
	if l.off >= len(l.src) {
		return Token{Type: EOF, Pos: start}, nil
	}
	switch r := l.peek(); {
	case r == '(':
		l.advance()
		return Token{Type: LPAREN, Text: "(", Pos: start}, nil
	case r == ')':
		l.advance()
		return Token{Type: RPAREN, Text: ")", Pos: start}, nil
	case r == '"':
		return l.lexString(start)
	case isAtomRune(r):
		var sb strings.Builder
		for l.off < len(l.src) && isAtomRune(l.peek()) {
			sb.WriteRune(l.advance())
		}
		return Token{Type: ATOM, Text: sb.String(), Pos: start}, nil
	default:
		return Token{}, &LexError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
	}
}

func (l *lexer) lexString(start Pos) (Token, error) {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.off >= len(l.src) {
			return Token{}, &LexError{Pos: start, Msg: "unterminated string"}
		}
		r := l.advance()
		if r == '"' {
			return Token{Type: STRING, Text: sb.String(), Pos: start}, nil
		}
		if r == '\\' {
			if l.off >= len(l.src) {
				return Token{}, &LexError{Pos: start, Msg: "unterminated string escape"}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '"', '\\':
				sb.WriteRune(esc)
			default:
				return Token{}, &LexError{Pos: start, Msg: fmt.Sprintf("bad escape \\%c", esc)}
			}
			continue
		}
		sb.WriteRune(r)
	}
}
