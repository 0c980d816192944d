package journal

import (
	"testing"

	"episteme/internal/term"
)

func appendEntries(t *testing.T, j *Journal, hashes ...term.Hash) []Entry {
	t.Helper()
	out := make([]Entry, 0, len(hashes))
	for i, h := range hashes {
		e, err := j.Append(Entry{NodeHash: h, ChosenIndex: i, Source: SourceLocalHeuristic})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestAppendAssignsGaplessStepIDs(t *testing.T) {
	j := New(nil)
	entries := appendEntries(t, j,
		term.HashBytes([]byte("n0")),
		term.HashBytes([]byte("n1")),
		term.HashBytes([]byte("n2")),
	)
	for i, e := range entries {
		if e.StepID != int64(i) {
			t.Errorf("entry %d has step id %d", i, e.StepID)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("entry %d has no timestamp", i)
		}
		if e.Hash == "" {
			t.Errorf("entry %d has no chain hash", i)
		}
	}
	if j.Len() != 3 {
		t.Errorf("Len() = %d, want 3", j.Len())
	}
}

func TestChainHashLinksEntries(t *testing.T) {
	j := New(nil)
	entries := appendEntries(t, j, term.HashBytes([]byte("n0")), term.HashBytes([]byte("n1")))

	// Recomputing the second entry's hash from the first must agree.
	recomputed := term.HashBytes([]byte(string(entries[0].Hash) + "|" + entries[1].content()))
	if entries[1].Hash != recomputed {
		t.Errorf("chain hash %s, recomputed %s", entries[1].Hash, recomputed)
	}
}

func TestFromEntriesRoundTrip(t *testing.T) {
	j := New(nil)
	appendEntries(t, j, term.HashBytes([]byte("n0")), term.HashBytes([]byte("n1")))

	restored, err := FromEntries(j.RunID(), j.Entries())
	if err != nil {
		t.Fatalf("FromEntries: %v", err)
	}
	if restored.Len() != j.Len() {
		t.Errorf("restored %d entries, want %d", restored.Len(), j.Len())
	}
}

func TestFromEntriesDetectsTampering(t *testing.T) {
	j := New(nil)
	appendEntries(t, j, term.HashBytes([]byte("n0")), term.HashBytes([]byte("n1")))

	tampered := make([]Entry, j.Len())
	copy(tampered, j.Entries())
	tampered[0].ChosenIndex = 7

	_, err := FromEntries(j.RunID(), tampered)
	jerr, ok := err.(*Error)
	if !ok || jerr.Kind != Corrupt {
		t.Fatalf("error %v, want Corrupt", err)
	}
}

func TestFromEntriesDetectsGap(t *testing.T) {
	j := New(nil)
	appendEntries(t, j, term.HashBytes([]byte("n0")), term.HashBytes([]byte("n1")))

	gapped := []Entry{j.Entries()[1]}
	_, err := FromEntries(j.RunID(), gapped)
	jerr, ok := err.(*Error)
	if !ok || jerr.Kind != Corrupt {
		t.Fatalf("error %v, want Corrupt", err)
	}
}

func TestCursorWalksInOrder(t *testing.T) {
	j := New(nil)
	h0, h1 := term.HashBytes([]byte("n0")), term.HashBytes([]byte("n1"))
	appendEntries(t, j, h0, h1)

	c := j.Replay()
	if h, ok := c.PeekHash(); !ok || h != h0 {
		t.Fatalf("PeekHash = (%s, %t), want (%s, true)", h, ok, h0)
	}
	e, ok, err := c.Next(h0)
	if err != nil || !ok || e.ChosenIndex != 0 {
		t.Fatalf("Next(h0) = (%+v, %t, %v)", e, ok, err)
	}
	if c.Remaining() != 1 {
		t.Errorf("Remaining() = %d, want 1", c.Remaining())
	}
	e, ok, err = c.Next(h1)
	if err != nil || !ok || e.ChosenIndex != 1 {
		t.Fatalf("Next(h1) = (%+v, %t, %v)", e, ok, err)
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", c.Remaining())
	}
	if _, ok, err := c.Next(h0); ok || err != nil {
		t.Errorf("exhausted cursor returned (%t, %v), want (false, nil)", ok, err)
	}
	if _, ok := c.PeekHash(); ok {
		t.Error("exhausted cursor still peeks a hash")
	}
}

func TestCursorDetectsDivergence(t *testing.T) {
	j := New(nil)
	appendEntries(t, j, term.HashBytes([]byte("n0")))

	c := j.Replay()
	_, _, err := c.Next(term.HashBytes([]byte("different node")))
	jerr, ok := err.(*Error)
	if !ok || jerr.Kind != ReplayMismatch {
		t.Fatalf("error %v, want ReplayMismatch", err)
	}
}
