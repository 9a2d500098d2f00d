package verifier

import (
	"context"
	"testing"

	"github.com/Asylian21/crackworker/internal/cryptbind"
)

// TestApr1SaltExtraction covers extracting the salt (second
// $-delimited token).
func TestApr1SaltExtraction(t *testing.T) {
	salt, err := apr1Salt("$apr1$saltxxxx$restofhashvalue")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if salt != "saltxxxx" {
		t.Errorf("salt = %q, want %q", salt, "saltxxxx")
	}
}

func TestApr1SaltMalformed(t *testing.T) {
	if _, err := apr1Salt("$apr1$"); err == nil {
		t.Fatal("expected an error for a hash with no salt token")
	}
}

// TestNewSelectsApr1ForApr1Prefix covers strategy selection by
// stored-hash prefix.
func TestNewSelectsApr1ForApr1Prefix(t *testing.T) {
	v, err := New("$apr1$saltxxxx$hash", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := v.(*apr1Verifier); !ok {
		t.Errorf("New returned %T, want *apr1Verifier", v)
	}
}

// TestNewSelectsNativeOtherwise covers the "native otherwise" half of
// strategy selection.
func TestNewSelectsNativeOtherwise(t *testing.T) {
	v, err := New("$6$saltxxxx$hash", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := v.(*nativeVerifier); !ok {
		t.Errorf("New returned %T, want *nativeVerifier", v)
	}
}

// fakeBinding lets tests exercise nativeVerifier.Verify without a real
// crypt(3) library loaded.
type fakeBinding struct {
	fn func(candidate, setting string) (string, bool, error)
}

func (f *fakeBinding) CryptWrap(candidate, setting string, _ *cryptbind.Scratch) (string, bool, error) {
	return f.fn(candidate, setting)
}

func TestNativeVerifierMatchesOnEquality(t *testing.T) {
	storedHash := "$6$saltxxxx$expectedhash"
	binding := &fakeBinding{fn: func(candidate, setting string) (string, bool, error) {
		if candidate == "Cc" {
			return storedHash, true, nil
		}
		return "$6$saltxxxx$somethingelse", true, nil
	}}

	v := &nativeVerifier{storedHash: storedHash, binding: binding, scratch: cryptbind.NewScratch()}

	ok, err := v.Verify(context.Background(), "Cc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected Cc to match")
	}

	ok, err = v.Verify(context.Background(), "zz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected zz not to match")
	}
}
