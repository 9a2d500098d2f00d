// Package verifier wraps a stored crypt(3) hash and answers whether a
// candidate matches it, choosing between two strategies at
// construction time: native crypt for most formats, and an external
// "openssl passwd -apr1" child process for the $apr1$ format that the
// system crypt often lacks.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Asylian21/crackworker/internal/cryptbind"
)

// DefaultAPR1Timeout is the per-call timeout for the openssl child
// process. It is a var rather than a const so cmd/worker can override
// it from the optional TOML config file (internal/config); New always
// reads its current value at verifier-construction time.
var DefaultAPR1Timeout = 5 * time.Second

// apr1Prefix identifies stored hashes that must be verified via the
// external openssl strategy.
const apr1Prefix = "$apr1$"

// Verifier answers whether a candidate string matches an immutable
// stored hash.
type Verifier interface {
	// Verify reports whether candidate matches the stored hash. It
	// never mutates the stored hash or the verifier's configuration.
	Verify(ctx context.Context, candidate string) (bool, error)
}

// New selects a Verifier strategy from storedHash's prefix:
// APR1-via-openssl for "$apr1$..." hashes, native crypt otherwise.

// cryptWrapper is the subset of *cryptbind.Binding's surface
// nativeVerifier needs; it exists so tests can substitute a fake
// without loading a real crypt(3) library.
type cryptWrapper interface {
	CryptWrap(candidate, setting string, scratch *cryptbind.Scratch) (string, bool, error)
}

func New(storedHash string, binding cryptWrapper, scratch *cryptbind.Scratch) (Verifier, error) {
	if strings.HasPrefix(storedHash, apr1Prefix) {
		salt, err := apr1Salt(storedHash)
		if err != nil {
			return nil, err
		}
		return &apr1Verifier{storedHash: storedHash, salt: salt, timeout: DefaultAPR1Timeout}, nil
	}
	return &nativeVerifier{storedHash: storedHash, binding: binding, scratch: scratch}, nil
}

// apr1Salt extracts the second $-delimited token (the salt) from an
// APR1 stored hash, e.g. "$apr1$saltval$hash" -> "saltval".
func apr1Salt(storedHash string) (string, error) {
	parts := strings.Split(storedHash, "$")
	// parts[0] is empty (leading '$'), parts[1] == "apr1", parts[2] is the salt.
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("verifier: malformed apr1 hash %q", storedHash)
	}
	return parts[2], nil
}

// nativeVerifier delegates to the process-wide crypt(3) binding and
// declares a match on exact byte equality with the stored hash.
type nativeVerifier struct {
	storedHash string
	binding    cryptWrapper
	scratch    *cryptbind.Scratch
}

func (v *nativeVerifier) Verify(ctx context.Context, candidate string) (bool, error) {
	result, ok, err := v.binding.CryptWrap(candidate, v.storedHash, v.scratch)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return result == v.storedHash, nil
}

// apr1Verifier shells out to "openssl passwd -apr1" per candidate,
// since the host's native crypt(3) frequently lacks APR1 support.
type apr1Verifier struct {
	storedHash string
	salt       string
	timeout    time.Duration
}

func (v *apr1Verifier) Verify(ctx context.Context, candidate string) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, "openssl", "passwd", "-apr1", "-salt", v.salt, candidate)

	// Put the child in its own process group so a timeout can kill the
	// whole tree, not just the immediate openssl process.
	cmd.SysProcAttr = apr1SysProcAttr()
	// When the deadline fires, signal the whole process group while the
	// child is still alive, so any children openssl spawned go too.
	cmd.Cancel = func() error {
		killProcessGroup(cmd)
		return nil
	}

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	if callCtx.Err() != nil {
		// The context deadline fired and the Cancel hook above killed the
		// process group: a timeout is a non-match.
		return false, nil
	}
	if err != nil {
		// Non-zero exit or spawn failure: non-match, not an error -
		// treats this as "no match for that candidate".
		return false, nil
	}

	output := strings.TrimSpace(stdout.String())
	if output == "" {
		return false, nil
	}
	return output == v.storedHash, nil
}

// ErrMissingOpenssl names the "openssl isn't on PATH" condition. No
// function in this package returns it: Verify reports a missing
// openssl as a non-match (false, nil).
var ErrMissingOpenssl = errors.New("verifier: openssl executable not found on PATH")
