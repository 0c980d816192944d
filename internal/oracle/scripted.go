package oracle

import (
	"context"
	"sync"
)

// Scripted is an in-process Client that answers from a fixed script, for
// tests and offline use. Each call consumes the next scripted answer;
// running past the script returns ErrRejected.
type Scripted struct {
	mu       sync.Mutex
	answers  []ScriptedAnswer
	next     int
	requests []Request
}

// ScriptedAnswer is one canned verdict. Err, when set, wins over Index.
type ScriptedAnswer struct {
	Index int
	Err   error
}

// NewScripted builds a scripted client.
func NewScripted(answers ...ScriptedAnswer) *Scripted {
	return &Scripted{answers: answers}
}

// Choose returns the next scripted answer and records the request.
func (s *Scripted) Choose(ctx context.Context, req Request) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.next >= len(s.answers) {
		return Response{}, ErrRejected
	}
	a := s.answers[s.next]
	s.next++
	if a.Err != nil {
		return Response{}, a.Err
	}
	return Response{ChosenIndex: a.Index}, nil
}

// Calls reports how many times the oracle was consulted.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns the recorded requests in order.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}
