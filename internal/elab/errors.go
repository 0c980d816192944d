package elab

import (
	"fmt"

	"episteme/internal/syntax"
)

// ErrorKind discriminates elaboration failures.
type ErrorKind int

const (
	UnboundVariable ErrorKind = iota
	UnknownAgent
	ModalScopeError
	TypeMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case UnboundVariable:
		return "unbound variable"
	case UnknownAgent:
		return "unknown agent"
	case ModalScopeError:
		return "modal scope error"
	case TypeMismatch:
		return "type mismatch"
	default:
		return fmt.Sprintf("elaboration error (%d)", int(k))
	}
}

// Error is a fatal elaboration failure with its source location.
type Error struct {
	Kind ErrorKind
	Pos  syntax.Pos
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Msg)
}

func errf(kind ErrorKind, pos syntax.Pos, format string, args ...any) *Error {
	return &Error{Kind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
