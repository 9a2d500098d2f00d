//go:build integration
// +build integration

package main

import (
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/Asylian21/crackworker/internal/coordinatormock"
	"github.com/Asylian21/crackworker/internal/protocol"
)

// TestBinaryRejectsInvalidArguments builds the worker binary and
// confirms it exits non-zero on a bad invocation, per spec.md §6's
// exit-code table.
func TestBinaryRejectsInvalidArguments(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "worker-test")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	if err := build.Run(); err != nil {
		t.Skipf("skipping integration test: failed to build binary: %v", err)
	}

	cmd := exec.Command(binaryPath, "only-one-arg")
	if err := cmd.Run(); err == nil {
		t.Error("expected a non-zero exit for an invalid invocation, got nil error")
	}
}

// TestBinaryCompletesAHandshakeAndJob drives a real worker binary
// through the full reverse-connect handshake and one small
// ASSIGN_WORK, using coordinatormock to play the coordinator's side.
func TestBinaryCompletesAHandshakeAndJob(t *testing.T) {
	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "worker-test")

	build := exec.Command("go", "build", "-o", binaryPath, ".")
	if err := build.Run(); err != nil {
		t.Skipf("skipping integration test: failed to build binary: %v", err)
	}

	coord, err := coordinatormock.Start()
	if err != nil {
		t.Fatalf("coordinatormock.Start failed: %v", err)
	}
	defer coord.Close()

	cmd := exec.Command(binaryPath, "127.0.0.1", strconv.Itoa(coord.Port()), "2")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start worker binary: %v", err)
	}
	defer cmd.Process.Kill()

	if _, err := coord.Handshake(); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if err := coord.AssignWork(protocol.AssignWork{
		JobID: "it-1", StoredHash: "$6$saltxxxx$nonexistenthash", StartIndex: 0, Count: 79, CheckpointEvery: 79,
	}); err != nil {
		t.Fatalf("assign work failed: %v", err)
	}

	wr, _, err := coord.ReadUntilWorkResult(5)
	if err != nil {
		t.Fatalf("read until work result failed: %v", err)
	}
	if wr.Found {
		t.Error("expected no match for a hash no 79-candidate slice can produce")
	}

	if err := coord.Stop("integration test complete"); err != nil {
		t.Fatalf("send STOP failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("worker binary did not exit after STOP")
	}
}
