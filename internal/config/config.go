// Package config loads the worker's optional TOML defaults file. The
// worker's mandatory settings (server host/port, thread count) stay
// purely positional on the command line per spec.md §6; this file
// only ever supplies the handful of settings §6 leaves unspecified.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// File is the decoded shape of the optional worker defaults file.
// Every field is optional; a field missing from the file keeps its
// built-in default. The file itself is only read when --config names
// it, and Load fails if it cannot be read.
type File struct {
	// CryptLibraries overrides the ordered list of shared-library
	// names internal/cryptbind probes, in place of its built-in list.
	CryptLibraries []string `toml:"crypt_libraries"`

	// APR1TimeoutMs overrides the per-call APR1 child-process timeout
	// (default 5000ms, per spec.md §4.3).
	APR1TimeoutMs int `toml:"apr1_timeout_ms"`

	// MetricsAddr, if set, is the default --metrics-addr when the flag
	// isn't passed explicitly.
	MetricsAddr string `toml:"metrics_addr"`

	// LogLevel is the default logrus level name ("debug", "info",
	// "warn", "error") used when -v/--verbose isn't passed.
	LogLevel string `toml:"log_level"`
}

// Default returns the zero-configuration defaults: no library
// overrides, the spec's 5s APR1 timeout, metrics disabled, info-level
// logging.
func Default() File {
	return File{
		APR1TimeoutMs: 5000,
		LogLevel:      "info",
	}
}

// Load decodes path as a TOML worker-defaults file, starting from
// Default() so any field the file omits keeps its built-in value.
func Load(path string) (File, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return File{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// APR1Timeout returns the configured APR1 child-process timeout as a
// time.Duration.
func (f File) APR1Timeout() time.Duration {
	if f.APR1TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(f.APR1TimeoutMs) * time.Millisecond
}
