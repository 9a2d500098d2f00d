// Command worker is the distributed crypt(3) cracker's worker-node
// entry point (spec.md §6): it parses its positional arguments, wires
// up the crypt binding, worker pool and protocol state machine, then
// drives the FSM through its full lifecycle and exits with the
// process's reported exit code.
//
// Usage mirrors the teacher's plain, manually-parsed positional CLI
// (no flag library for the mandatory arguments), with a couple of
// genuinely optional switches spec.md §6 and SPEC_FULL.md's
// supplemental features add on top:
//
//	worker <server_host> <server_port> [threads] [-v|--verbose] [--metrics-addr host:port] [--config path]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/Asylian21/crackworker/internal/alphabet"
	"github.com/Asylian21/crackworker/internal/config"
	"github.com/Asylian21/crackworker/internal/cryptbind"
	"github.com/Asylian21/crackworker/internal/fsm"
	"github.com/Asylian21/crackworker/internal/metrics"
	"github.com/Asylian21/crackworker/internal/pool"
	"github.com/Asylian21/crackworker/internal/verifier"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is main's testable body: it never calls os.Exit itself, so
// tests can assert on the returned code directly.
func run(args []string) int {
	verbose, metricsAddr, configPath, positional, err := parseArgs(args)
	if err != nil {
		printUsage()
		fmt.Fprintln(os.Stderr, err)
		return fsm.ExitUsageOrHandshake
	}

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return fsm.ExitUsageOrHandshake
		}
	}
	verifier.DefaultAPR1Timeout = cfg.APR1Timeout()
	if len(cfg.CryptLibraries) > 0 {
		cryptbind.LibraryNames = cfg.CryptLibraries
	}
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else if lvl, lvlErr := logrus.ParseLevel(cfg.LogLevel); lvlErr == nil {
		logrus.SetLevel(lvl)
	}

	serverHost := positional[0]
	serverPort, err := strconv.Atoi(positional[1])
	if err != nil || serverPort < 1 || serverPort > 65535 {
		printUsage()
		fmt.Fprintf(os.Stderr, "worker: server_port must be an integer in [1, 65535], got %q\n", positional[1])
		return fsm.ExitUsageOrHandshake
	}

	threads := runtime.NumCPU()
	if len(positional) > 2 {
		threads, err = strconv.Atoi(positional[2])
		if err != nil || threads < 1 {
			printUsage()
			fmt.Fprintf(os.Stderr, "worker: threads must be a positive integer, got %q\n", positional[2])
			return fsm.ExitUsageOrHandshake
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			logrus.Info("worker: received shutdown signal, draining current job")
			cancel()
		}
	}()
	defer signal.Stop(sigCh)

	var m *metrics.Metrics
	if metricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := metrics.ListenAndServe(ctx, metricsAddr); err != nil {
				logrus.WithError(err).Warn("worker: metrics listener exited")
			}
		}()
	}

	node, err := fsm.NewNode(fsm.Config{
		ServerHost: serverHost,
		ServerPort: serverPort,
		Threads:    threads,
		Verbose:    verbose,
	}, newVerifierFactory(threads), alphabet.Default())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fsm.ExitUsageOrHandshake
	}
	if m != nil {
		node.OnCheckpoint = func(jobID string, tried int64, perWorkerTried []int64) {
			m.ObserveCheckpoint(tried, perWorkerTried)
		}
	}

	return node.Run(ctx)
}

// newVerifierFactory builds a pool.VerifierFactory bound to the
// process-wide crypt binding, with one persistent Scratch per
// worker-pool slot so the reentrant crypt_ra scratch buffer stays
// owned by the same OS thread for the pool's lifetime, per
// internal/cryptbind's contract.
func newVerifierFactory(threads int) pool.VerifierFactory {
	scratches := make([]*cryptbind.Scratch, threads)
	for i := range scratches {
		scratches[i] = cryptbind.NewScratch()
	}
	return func(storedHash string, slot int) (verifier.Verifier, error) {
		binding, err := cryptbind.Load()
		if err != nil {
			return nil, err
		}
		return verifier.New(storedHash, binding, scratches[slot])
	}
}

// parseArgs splits args into the optional switches and the remaining
// positional arguments (server_host, server_port, [threads]).
func parseArgs(args []string) (verbose bool, metricsAddr, configPath string, positional []string, err error) {
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "-v" || a == "--verbose":
			verbose = true
		case a == "--metrics-addr":
			if i+1 >= len(args) {
				return false, "", "", nil, fmt.Errorf("worker: --metrics-addr requires a value")
			}
			i++
			metricsAddr = args[i]
		case a == "--config":
			if i+1 >= len(args) {
				return false, "", "", nil, fmt.Errorf("worker: --config requires a value")
			}
			i++
			configPath = args[i]
		case len(a) > 0 && a[0] == '-':
			return false, "", "", nil, fmt.Errorf("worker: unrecognized flag %q", a)
		default:
			positional = append(positional, a)
		}
	}
	if len(positional) < 2 || len(positional) > 3 {
		return false, "", "", nil, fmt.Errorf("worker: expected <server_host> <server_port> [threads], got %d positional arguments", len(positional))
	}
	return verbose, metricsAddr, configPath, positional, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: worker <server_host> <server_port> [threads] [-v|--verbose] [--metrics-addr host:port] [--config path]")
}
