// Package alphabet implements the candidate enumerator: a pure,
// stateless mapping between a non-negative candidate index and the
// password candidate string it denotes.
//
// Candidates are ordered by length first (length 1 before length 2,
// and so on), and lexicographically within a length, using base-79
// arithmetic over the canonical 79-character alphabet. Index 0 maps to
// "A" (the alphabet's first character); index 78 maps to "?" (its
// last); index 79 maps to "AA".
package alphabet

import (
	"errors"
	"fmt"
	"math/bits"
)

// Canonical is the frozen 79-character alphabet used by the system:
// uppercase A-Z, lowercase a-z, digits 0-9, and 17 symbols.
//
// Its length is an invariant: any alphabet of a different size is
// rejected at construction time by New79.
const Canonical = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789@#%^&*()_+-=.,:;?"

// Size is the required length of any alphabet accepted by this package.
const Size = 79

func init() {
	if len(Canonical) != Size {
		panic(fmt.Sprintf("alphabet: canonical alphabet has %d characters, want %d", len(Canonical), Size))
	}
}

// ErrInvalidAlphabetSize is returned when an alphabet's length is not
// exactly Size.
var ErrInvalidAlphabetSize = fmt.Errorf("alphabet: size must be exactly %d", Size)

// ErrNegativeIndex is returned for a candidate index below zero.
var ErrNegativeIndex = errors.New("alphabet: candidate index must be non-negative")

// ErrOverflow is returned when the cumulative count of candidates up to
// some length would exceed what fits in an int64.
var ErrOverflow = errors.New("alphabet: index exceeds the addressable candidate space")

// Alphabet is an immutable, validated ordered character set used to
// enumerate candidates. The zero value is not usable; construct one
// with New.
type Alphabet struct {
	chars []byte
}

// New validates and wraps chars as an Alphabet. chars must have at
// least 2 entries; the system's canonical alphabet additionally
// requires exactly Size entries (see New79), but New accepts any
// alphabet of 2 or more characters for testing and for future
// non-canonical configurations.
func New(chars string) (*Alphabet, error) {
	if len(chars) < 2 {
		return nil, fmt.Errorf("alphabet: need at least 2 characters, got %d", len(chars))
	}
	return &Alphabet{chars: []byte(chars)}, nil
}

// New79 validates chars has exactly Size characters and wraps it. This
// is the constructor the worker CLI and tests use for the production
// alphabet; 79 is the canonical size and mismatches are rejected.
func New79(chars string) (*Alphabet, error) {
	if len(chars) != Size {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAlphabetSize, len(chars))
	}
	return New(chars)
}

// Default returns the canonical 79-character alphabet.
func Default() *Alphabet {
	a, err := New79(Canonical)
	if err != nil {
		// unreachable: init() already validated Canonical's length.
		panic(err)
	}
	return a
}

// Len reports the number of characters in the alphabet.
func (a *Alphabet) Len() int { return len(a.chars) }

// countForLength returns 79^length (more generally base^length), the
// number of distinct candidates of exactly that length, and whether
// the multiplication overflowed an int64.
func countForLength(base int64, length int) (count int64, overflow bool) {
	count = 1
	for i := 0; i < length; i++ {
		hi, lo := bits.Mul64(uint64(count), uint64(base))
		if hi != 0 || lo > uint64(1<<63-1) {
			return 0, true
		}
		count = int64(lo)
	}
	return count, false
}

// IndexToCandidate decodes a non-negative candidate index into its
// candidate string.
//
// The unique length L >= 1 is found such that
//
//	sum_{k=1..L-1} base^k <= i < sum_{k=1..L} base^k
//
// then offset = i - sum_{k=1..L-1} base^k is rendered as a base-base
// number in exactly L digits, most-significant first, each digit
// mapped through the alphabet (digit 0 = alphabet[0]).
func (a *Alphabet) IndexToCandidate(i int64) (string, error) {
	if i < 0 {
		return "", ErrNegativeIndex
	}
	base := int64(len(a.chars))

	remaining := i
	length := 1
	for {
		count, overflow := countForLength(base, length)
		if overflow {
			return "", ErrOverflow
		}
		if remaining < count {
			return a.encode(remaining, length), nil
		}
		remaining -= count
		length++
		if length > 64 {
			// No real candidate space reaches this length; guards
			// against an infinite loop if base == 1 slipped through
			// (New rejects len < 2, so this is unreachable in practice).
			return "", ErrOverflow
		}
	}
}

// encode renders offset as a base-len(alphabet) number in exactly
// length digits, most-significant digit first.
func (a *Alphabet) encode(offset int64, length int) string {
	base := int64(len(a.chars))
	digits := make([]byte, length)
	for pos := length - 1; pos >= 0; pos-- {
		d := offset % base
		digits[pos] = a.chars[d]
		offset /= base
	}
	return string(digits)
}

// CandidateToIndex is the inverse of IndexToCandidate: given a
// candidate string produced by this alphabet, it returns the index
// that decodes to it. It is used by the coordinator's job-splitting
// policy (out of scope here) to partition work, and by tests to assert
// the round-trip property.
func (a *Alphabet) CandidateToIndex(candidate string) (int64, error) {
	if len(candidate) == 0 {
		return 0, errors.New("alphabet: candidate must not be empty")
	}
	base := int64(len(a.chars))

	lookup := make(map[byte]int64, len(a.chars))
	for idx, c := range a.chars {
		lookup[c] = int64(idx)
	}

	var offset int64
	for pos := 0; pos < len(candidate); pos++ {
		d, ok := lookup[candidate[pos]]
		if !ok {
			return 0, fmt.Errorf("alphabet: candidate %q contains a character outside the alphabet", candidate)
		}
		hi, lo := bits.Mul64(uint64(offset), uint64(base))
		if hi != 0 || lo > uint64(1<<63-1)-uint64(d) {
			return 0, ErrOverflow
		}
		offset = int64(lo) + d
	}

	var prefix int64
	for length := 1; length < len(candidate); length++ {
		count, overflow := countForLength(base, length)
		if overflow {
			return 0, ErrOverflow
		}
		prefix += count
	}
	return prefix + offset, nil
}
