package fsm

import (
	"encoding/hex"

	sha256simd "github.com/minio/sha256-simd"
)

// jobFingerprint derives a short, non-reversible correlation id from a
// job's id and stored hash, SIMD-accelerated since it runs once per
// ASSIGN_WORK and once per checkpoint on the hot path. Verbose protocol
// transcript logging (SPEC_FULL.md SUPPLEMENTED FEATURES #5) uses this
// instead of the stored hash itself, so log lines from the same job
// correlate without ever writing hash material to the log.
func jobFingerprint(jobID, storedHash string) string {
	sum := sha256simd.Sum256([]byte(jobID + "|" + storedHash))
	return hex.EncodeToString(sum[:4])
}
