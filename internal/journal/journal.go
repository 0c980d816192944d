// Package journal records every choice-point resolution of an evaluation
// run as an ordered, append-only sequence, and replays such a record so a
// run can be reproduced bit-for-bit without consulting any oracle.
package journal

import (
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"episteme/internal/term"
)

// Source tags who resolved a choice point.
type Source string

const (
	SourceDeterministic  Source = "deterministic"
	SourceLocalHeuristic Source = "local-heuristic"
	SourceOracle         Source = "oracle"
	SourceReplay         Source = "replay"
)

// Entry is one recorded choice-point resolution. StepID is monotonic and
// gapless within a run. Hash chains over the previous entry's hash and
// this entry's content, making the sequence tamper-evident.
type Entry struct {
	StepID      int64     `json:"step_id"`
	NodeHash    term.Hash `json:"node_hash"`
	ChosenIndex int       `json:"chosen_index"`
	Source      Source    `json:"source"`
	Timestamp   time.Time `json:"ts"`
	Hash        term.Hash `json:"hash"`
}

// content returns the hashed portion of the entry: everything except the
// chain hash itself. Timestamps are part of the record and the chain, but
// replay equivalence is judged on NodeHash and ChosenIndex only.
func (e Entry) content() string {
	return fmt.Sprintf("%d|%s|%d|%s|%d", e.StepID, e.NodeHash, e.ChosenIndex, e.Source, e.Timestamp.UnixNano())
}

// Store is the optional persistence behind a Journal. Appends must be
// incremental; loads must return entries in step order.
type Store interface {
	AppendEntry(runID uuid.UUID, e Entry) error
	LoadRun(runID uuid.UUID) ([]Entry, error)
}

// Journal is the in-memory record of one run. It is owned by a single run
// and is not safe for concurrent use.
type Journal struct {
	runID   uuid.UUID
	entries []Entry
	store   Store
	last    term.Hash
}

// New creates an empty journal for a fresh run. store may be nil for
// in-memory-only operation.
func New(store Store) *Journal {
	return &Journal{runID: uuid.New(), store: store}
}

// FromEntries reconstructs a journal from persisted entries, verifying
// the hash chain. A broken chain or a step-id gap is reported as Corrupt.
func FromEntries(runID uuid.UUID, entries []Entry) (*Journal, error) {
	j := &Journal{runID: runID}
	for i, e := range entries {
		if e.StepID != int64(i) {
			return nil, journalErrf(Corrupt, "step id %d at position %d (want gapless)", e.StepID, i)
		}
		want := j.chainHash(e)
		if e.Hash != want {
			return nil, journalErrf(Corrupt, "entry %d hash %s, recomputed %s", e.StepID, e.Hash, want)
		}
		j.entries = append(j.entries, e)
		j.last = e.Hash
	}
	return j, nil
}

// RunID identifies this run in persisted form.
func (j *Journal) RunID() uuid.UUID { return j.runID }

// Len returns the number of recorded entries.
func (j *Journal) Len() int { return len(j.entries) }

// Entries returns the recorded entries in order. The slice is shared;
// callers must not mutate it.
func (j *Journal) Entries() []Entry { return j.entries }

func (j *Journal) chainHash(e Entry) term.Hash {
	return term.HashBytes([]byte(string(j.last) + "|" + e.content()))
}

// Append records a resolution. The journal assigns the step id, the
// timestamp (if unset), and the chain hash. A persistence failure is
// surfaced as IOFailure; the in-memory entry is still retained so the
// run's journal stays internally consistent.
func (j *Journal) Append(e Entry) (Entry, error) {
	e.StepID = int64(len(j.entries))
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Hash = j.chainHash(e)
	j.entries = append(j.entries, e)
	j.last = e.Hash
	if j.store != nil {
		if err := j.store.AppendEntry(j.runID, e); err != nil {
			return e, journalErrf(IOFailure, "persist entry %d: %v", e.StepID, err)
		}
	}
	return e, nil
}

// Cursor walks a recorded journal during replay. Every choice point of
// the replayed run must consume the next entry in order, with a matching
// node hash; any divergence is a ReplayMismatch.
type Cursor struct {
	journal *Journal
	next    int
}

// Replay returns a cursor over the journal's entries.
func (j *Journal) Replay() *Cursor {
	return &Cursor{journal: j}
}

// Next consumes the entry for the choice point identified by nodeHash.
// ok=false means the journal is exhausted (the live run reached a choice
// point the original never did, which is itself a mismatch — callers
// decide, since an exhausted journal during live search is merely a cache
// miss).
func (c *Cursor) Next(nodeHash term.Hash) (Entry, bool, error) {
	if c.next >= len(c.journal.entries) {
		return Entry{}, false, nil
	}
	e := c.journal.entries[c.next]
	if e.NodeHash != nodeHash {
		diff := cmp.Diff(string(e.NodeHash), string(nodeHash))
		return Entry{}, false, journalErrf(ReplayMismatch,
			"choice point %d diverged from the recorded derivation:\n%s", c.next, diff)
	}
	c.next++
	return e, true, nil
}

// PeekHash reports the node hash of the next unconsumed entry without
// consuming it. ok=false when the journal is exhausted. Backtracking uses
// this to skip nodes the recorded run also abandoned without re-resolving.
func (c *Cursor) PeekHash() (term.Hash, bool) {
	if c.next >= len(c.journal.entries) {
		return "", false
	}
	return c.journal.entries[c.next].NodeHash, true
}

// Remaining reports how many recorded entries have not been consumed. A
// finished replay with remaining entries recomputed a shorter derivation
// than the one recorded — a mismatch even when the terminal value agrees.
func (c *Cursor) Remaining() int {
	return len(c.journal.entries) - c.next
}
