package journal

import "fmt"

// ErrorKind discriminates journal failures. Persistence failures are kept
// distinct from replay divergence so regression tooling can separate
// engine bugs from logic bugs.
type ErrorKind int

const (
	IOFailure ErrorKind = iota
	Corrupt
	ReplayMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case IOFailure:
		return "journal io failure"
	case Corrupt:
		return "journal corrupt"
	case ReplayMismatch:
		return "replay mismatch"
	default:
		return fmt.Sprintf("journal error (%d)", int(k))
	}
}

// Error is a journal failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func journalErrf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
