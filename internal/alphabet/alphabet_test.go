package alphabet

import "testing"

// TestDefaultAlphabetSize verifies the invariant that the canonical
// alphabet must be exactly 79 characters.
func TestDefaultAlphabetSize(t *testing.T) {
	a := Default()
	if a.Len() != Size {
		t.Fatalf("Default() alphabet has %d characters, want %d", a.Len(), Size)
	}
}

// TestNew79RejectsWrongSize covers rejecting alphabets of the wrong size.
func TestNew79RejectsWrongSize(t *testing.T) {
	if _, err := New79("short"); err == nil {
		t.Fatal("expected error for an alphabet shorter than 79 characters")
	}
	if _, err := New79(Canonical + "X"); err == nil {
		t.Fatal("expected error for an alphabet longer than 79 characters")
	}
}

// TestNewRejectsTooFewCharacters covers failing when len(alphabet) < 2.
func TestNewRejectsTooFewCharacters(t *testing.T) {
	if _, err := New("A"); err == nil {
		t.Fatal("expected error for a single-character alphabet")
	}
	if _, err := New(""); err == nil {
		t.Fatal("expected error for an empty alphabet")
	}
}

// TestIndexToCandidateRejectsNegative covers failing when i < 0.
func TestIndexToCandidateRejectsNegative(t *testing.T) {
	a := Default()
	if _, err := a.IndexToCandidate(-1); err == nil {
		t.Fatal("expected error for a negative index")
	}
}

// TestFirstSeventyNineIndices verifies the first 79 indices produce
// length-1 strings in alphabet order.
func TestFirstSeventyNineIndices(t *testing.T) {
	a := Default()
	for i := 0; i < Size; i++ {
		got, err := a.IndexToCandidate(int64(i))
		if err != nil {
			t.Fatalf("IndexToCandidate(%d) failed: %v", i, err)
		}
		want := string(Canonical[i])
		if got != want {
			t.Errorf("IndexToCandidate(%d) = %q, want %q", i, got, want)
		}
	}
}

// TestIndexZeroAndSeventyEightAndSeventyNine covers three boundary
// indices: the start and end of the length-1 range and the first index
// of the length-2 range.
func TestIndexZeroAndSeventyEightAndSeventyNine(t *testing.T) {
	a := Default()

	cases := []struct {
		index int64
		want  string
	}{
		{0, "A"},
		{78, "?"},
		{79, "AA"},
	}
	for _, tc := range cases {
		got, err := a.IndexToCandidate(tc.index)
		if err != nil {
			t.Fatalf("IndexToCandidate(%d) failed: %v", tc.index, err)
		}
		if got != tc.want {
			t.Errorf("IndexToCandidate(%d) = %q, want %q", tc.index, got, tc.want)
		}
	}
}

// TestRoundTrip covers the universal property that decoding then
// re-encoding yields the original index, across both short and
// multi-length ranges.
func TestRoundTrip(t *testing.T) {
	a := Default()
	for i := int64(0); i < 20000; i++ {
		cand, err := a.IndexToCandidate(i)
		if err != nil {
			t.Fatalf("IndexToCandidate(%d) failed: %v", i, err)
		}
		back, err := a.CandidateToIndex(cand)
		if err != nil {
			t.Fatalf("CandidateToIndex(%q) failed: %v", cand, err)
		}
		if back != i {
			t.Errorf("round trip mismatch: index %d -> %q -> %d", i, cand, back)
		}
	}
}

// TestLengthOrdering verifies length-1 candidates are exhausted before
// any length-2 candidate appears.
func TestLengthOrdering(t *testing.T) {
	a := Default()
	for i := int64(0); i < int64(Size); i++ {
		cand, err := a.IndexToCandidate(i)
		if err != nil {
			t.Fatalf("IndexToCandidate(%d) failed: %v", i, err)
		}
		if len(cand) != 1 {
			t.Errorf("IndexToCandidate(%d) = %q has length %d, want 1", i, cand, len(cand))
		}
	}
	cand, err := a.IndexToCandidate(int64(Size))
	if err != nil {
		t.Fatalf("IndexToCandidate(%d) failed: %v", Size, err)
	}
	if len(cand) != 2 {
		t.Errorf("IndexToCandidate(%d) = %q has length %d, want 2", Size, cand, len(cand))
	}
}

// TestCandidateToIndexRejectsUnknownCharacter ensures a candidate
// containing a character outside the alphabet is rejected rather than
// silently mis-decoded.
func TestCandidateToIndexRejectsUnknownCharacter(t *testing.T) {
	a := Default()
	if _, err := a.CandidateToIndex("A B"); err == nil {
		t.Fatal("expected error for a candidate containing a space")
	}
}
