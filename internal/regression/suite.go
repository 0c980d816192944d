// Package regression runs a corpus of interpreter scripts, replaying each
// run's journal to distinguish honest passes from spurious ones. A case
// whose replay recomputes a different derivation than the one recorded —
// even when it lands on the same terminal value — is reported as a
// mismatch, not a pass.
package regression

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"episteme/internal/journal"
	"episteme/internal/runner"
	"episteme/internal/term"
)

// Status classifies one case outcome.
type Status string

const (
	StatusPass     Status = "pass"
	StatusFail     Status = "fail"
	StatusMismatch Status = "mismatch"
)

// CaseResult is the outcome of one corpus case.
type CaseResult struct {
	Name   string
	Status Status
	Value  string
	Err    error
}

// Suite runs a corpus directory. Cases are *.epi scripts; a sibling
// <name>.expect file, when present, holds the expected canonical value.
type Suite struct {
	runner *runner.Runner
	logger *zap.Logger
	jobs   int
}

// NewSuite builds a suite. jobs bounds parallel cases; values below one
// run everything sequentially.
func NewSuite(r *runner.Runner, logger *zap.Logger, jobs int) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobs < 1 {
		jobs = 1
	}
	return &Suite{runner: r, logger: logger, jobs: jobs}
}

// RunDir executes every case under dir. Runs are independent — each owns
// its environment, belief context, and journal — so they execute in
// parallel freely. The error return covers corpus-level failures only;
// per-case failures land in the results.
func (s *Suite) RunDir(ctx context.Context, dir string) ([]CaseResult, error) {
	scripts, err := filepath.Glob(filepath.Join(dir, "*.epi"))
	if err != nil {
		return nil, fmt.Errorf("scan corpus %s: %w", dir, err)
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("corpus %s holds no *.epi cases", dir)
	}
	sort.Strings(scripts)

	results := make([]CaseResult, len(scripts))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.jobs)
	for i, script := range scripts {
		i, script := i, script
		g.Go(func() error {
			res := s.runCase(ctx, script)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Suite) runCase(ctx context.Context, path string) CaseResult {
	name := strings.TrimSuffix(filepath.Base(path), ".epi")
	src, err := os.ReadFile(path)
	if err != nil {
		return CaseResult{Name: name, Status: StatusFail, Err: err}
	}

	script, err := s.runner.ParseAndElaborate(string(src))
	if err != nil {
		return CaseResult{Name: name, Status: StatusFail, Err: err}
	}

	live, err := s.runner.Run(ctx, script)
	if err != nil {
		return CaseResult{Name: name, Status: StatusFail, Err: err}
	}
	value := term.Canonical(live.Value)

	if expected, ok := s.expected(path); ok && expected != value {
		return CaseResult{
			Name:   name,
			Status: StatusFail,
			Value:  value,
			Err:    fmt.Errorf("value %s, want %s", value, expected),
		}
	}

	// Replay against the recorded journal. A divergent derivation is a
	// spurious pass even if the value agrees.
	replayed, err := s.runner.Replay(ctx, script, live.Journal)
	if err != nil {
		var jerr *journal.Error
		if errors.As(err, &jerr) && jerr.Kind == journal.ReplayMismatch {
			return CaseResult{Name: name, Status: StatusMismatch, Value: value, Err: err}
		}
		return CaseResult{Name: name, Status: StatusFail, Value: value, Err: err}
	}
	if !term.Equal(live.Value, replayed.Value) {
		return CaseResult{
			Name:   name,
			Status: StatusMismatch,
			Value:  value,
			Err:    fmt.Errorf("replay value %s, live value %s", term.Canonical(replayed.Value), value),
		}
	}

	s.logger.Debug("case passed", zap.String("case", name), zap.String("value", value))
	return CaseResult{Name: name, Status: StatusPass, Value: value}
}

func (s *Suite) expected(scriptPath string) (string, bool) {
	data, err := os.ReadFile(strings.TrimSuffix(scriptPath, ".epi") + ".expect")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// Summary folds results into per-status counts.
func Summary(results []CaseResult) map[Status]int {
	out := make(map[Status]int)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
