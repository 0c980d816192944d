package search

import "fmt"

// ErrorKind discriminates search failures. Oracle timeouts and rejections
// are recovered internally via backtracking; only NoWitnessFound escapes
// once the root's alternatives are exhausted.
type ErrorKind int

const (
	NoWitnessFound ErrorKind = iota
	OracleTimeout
	OracleRejected
)

func (k ErrorKind) String() string {
	switch k {
	case NoWitnessFound:
		return "no witness found"
	case OracleTimeout:
		return "oracle timeout"
	case OracleRejected:
		return "oracle rejected"
	default:
		return fmt.Sprintf("search error (%d)", int(k))
	}
}

// Error is a search failure.
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

func searchErrf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
