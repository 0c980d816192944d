package eval

import "fmt"

// ErrorKind discriminates evaluation failures.
type ErrorKind int

const (
	UnboundVariable ErrorKind = iota
	ReductionBudgetExceeded
	Divergence
	StuckTerm
)

func (k ErrorKind) String() string {
	switch k {
	case UnboundVariable:
		return "unbound variable"
	case ReductionBudgetExceeded:
		return "reduction budget exceeded"
	case Divergence:
		return "divergence"
	case StuckTerm:
		return "stuck term"
	default:
		return fmt.Sprintf("evaluation error (%d)", int(k))
	}
}

// Error is an evaluation failure. Evaluation errors are fatal to the run
// but journal-preserving: the journal written up to the failure point
// remains valid.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func evalErrf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
