package main

import (
	"testing"

	"github.com/Asylian21/crackworker/internal/fsm"
)

func TestParseArgsMinimal(t *testing.T) {
	verbose, metricsAddr, configPath, positional, err := parseArgs([]string{"coordinator.example", "9000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verbose || metricsAddr != "" || configPath != "" {
		t.Errorf("expected no optional flags set, got verbose=%v metricsAddr=%q configPath=%q", verbose, metricsAddr, configPath)
	}
	if len(positional) != 2 || positional[0] != "coordinator.example" || positional[1] != "9000" {
		t.Errorf("unexpected positional args: %v", positional)
	}
}

func TestParseArgsWithThreadsAndVerbose(t *testing.T) {
	_, _, _, positional, err := parseArgs([]string{"coordinator.example", "9000", "8", "-v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(positional) != 3 || positional[2] != "8" {
		t.Errorf("expected threads positional arg '8', got %v", positional)
	}
}

func TestParseArgsLongVerboseFlag(t *testing.T) {
	verbose, _, _, _, err := parseArgs([]string{"host", "1", "--verbose"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verbose {
		t.Error("expected --verbose to set verbose=true")
	}
}

func TestParseArgsMetricsAddrAndConfig(t *testing.T) {
	_, metricsAddr, configPath, _, err := parseArgs([]string{"host", "1", "--metrics-addr", "127.0.0.1:9090", "--config", "/etc/worker.toml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metricsAddr != "127.0.0.1:9090" {
		t.Errorf("metricsAddr = %q, want 127.0.0.1:9090", metricsAddr)
	}
	if configPath != "/etc/worker.toml" {
		t.Errorf("configPath = %q, want /etc/worker.toml", configPath)
	}
}

func TestParseArgsRejectsMissingFlagValue(t *testing.T) {
	if _, _, _, _, err := parseArgs([]string{"host", "1", "--metrics-addr"}); err == nil {
		t.Error("expected an error for --metrics-addr with no value")
	}
}

func TestParseArgsRejectsTooFewPositional(t *testing.T) {
	if _, _, _, _, err := parseArgs([]string{"host"}); err == nil {
		t.Error("expected an error for a single positional argument")
	}
}

func TestParseArgsRejectsTooManyPositional(t *testing.T) {
	if _, _, _, _, err := parseArgs([]string{"host", "1", "8", "extra"}); err == nil {
		t.Error("expected an error for four positional arguments")
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	if _, _, _, _, err := parseArgs([]string{"host", "1", "--bogus"}); err == nil {
		t.Error("expected an error for an unrecognized flag")
	}
}

func TestRunRejectsInvalidPort(t *testing.T) {
	code := run([]string{"host", "not-a-port"})
	if code != fsm.ExitUsageOrHandshake {
		t.Errorf("exit code = %d, want %d", code, fsm.ExitUsageOrHandshake)
	}
}

func TestRunRejectsInvalidThreads(t *testing.T) {
	code := run([]string{"host", "9000", "zero"})
	if code != fsm.ExitUsageOrHandshake {
		t.Errorf("exit code = %d, want %d", code, fsm.ExitUsageOrHandshake)
	}
}

func TestRunRejectsMissingConfigFile(t *testing.T) {
	code := run([]string{"host", "9000", "--config", "/nonexistent/worker.toml"})
	if code != fsm.ExitUsageOrHandshake {
		t.Errorf("exit code = %d, want %d", code, fsm.ExitUsageOrHandshake)
	}
}
