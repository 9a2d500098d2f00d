// Package fsm drives one worker node through its full lifecycle: a
// reverse-connect handshake with a coordinator, followed by a
// READ_READY / RUN_ASSIGN loop that streams checkpoints and results
// back over the same connection until a STOP or peer close.
//
// The state table is a plain switch-driven loop in the idiom of a
// small protocol client: no third-party state-machine library is
// used, matching the rest of the pack's preference for explicit
// control flow over generalized FSM frameworks for a fixed, small
// state set (see DESIGN.md).
package fsm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Asylian21/crackworker/internal/alphabet"
	"github.com/Asylian21/crackworker/internal/crackerr"
	"github.com/Asylian21/crackworker/internal/pool"
	"github.com/Asylian21/crackworker/internal/protocol"
	"github.com/sirupsen/logrus"
)

// pollInterval bounds how long POLL waits for an incoming reverse
// connection before re-checking for shutdown.
const pollInterval = 100 * time.Millisecond

// serverHelloDeadline bounds how long ACCEPT_BACK waits for the
// coordinator's SERVER_HELLO after a reverse connection lands.
const serverHelloDeadline = 5 * time.Second

// controlPollInterval bounds each read attempt the control listener
// makes while a job is running, so it can notice job completion
// promptly without busy-looping.
const controlPollInterval = 50 * time.Millisecond

// Config configures one worker node.
type Config struct {
	ServerHost string
	ServerPort int
	Threads    int
	Verbose    bool
}

// Node is one worker node's state machine plus the resources it owns:
// a persistent worker pool and the reverse-connected coordinator
// socket.
type Node struct {
	cfg    Config
	nodeID string

	pool *pool.Pool

	listener   net.Listener
	listenHost string
	listenPort int

	conn net.Conn

	// writeMu serializes writes to conn for the duration of one line.
	writeMu sync.Mutex
	// readMu guards conn's shared receive buffer between the main
	// reader and the concurrent control listener during RUN_ASSIGN.
	readMu sync.Mutex
	reader *protocol.Reader

	state         State
	exitCode      int
	pendingAssign protocol.AssignWork

	// OnCheckpoint, if set, is additionally invoked alongside the
	// CHECKPOINT message sent to the coordinator (cmd/worker uses it to
	// drive metrics).
	OnCheckpoint func(jobID string, tried int64, perWorkerTried []int64)
}

// NewNode validates cfg, builds the node's persistent worker pool, and
// returns a Node ready for Run. newVerifier supplies one Verifier per
// worker-pool slot per job.
func NewNode(cfg Config, newVerifier pool.VerifierFactory, a *alphabet.Alphabet) (*Node, error) {
	if cfg.Threads < 1 {
		return nil, crackerr.New(crackerr.KindConfiguration, "fsm: threads must be >= 1, got %d", cfg.Threads)
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return nil, crackerr.New(crackerr.KindConfiguration, "fsm: server_port must be in [1, 65535], got %d", cfg.ServerPort)
	}
	if cfg.ServerHost == "" {
		return nil, crackerr.New(crackerr.KindConfiguration, "fsm: server_host must not be empty")
	}

	p, err := pool.New(cfg.Threads, newVerifier, a)
	if err != nil {
		return nil, crackerr.Wrap(crackerr.KindConfiguration, err)
	}

	return &Node{
		cfg:    cfg,
		nodeID: defaultNodeID(),
		pool:   p,
	}, nil
}

// Run drives the node through its full lifecycle and returns the
// process exit code once it reaches END.
func (n *Node) Run(ctx context.Context) int {
	defer n.pool.Shutdown()

	n.state = StateInit
	var lastErr error

	for {
		if n.cfg.Verbose {
			logrus.WithField("state", n.state).Info("fsm: entering state")
		}
		switch n.state {
		case StateInit:
			n.state = StateParseArgs

		case StateParseArgs:
			// Validation already happened in NewNode; this state exists
			// to mirror the CLI's documented transition table.
			n.state = StateStartCallback

		case StateStartCallback:
			if err := n.startCallback(); err != nil {
				lastErr = err
				n.state = StateError
				continue
			}
			n.state = StateRegisterWithServer

		case StateRegisterWithServer:
			if err := n.registerWithServer(); err != nil {
				lastErr = err
				n.state = StateError
				continue
			}
			n.state = StatePoll

		case StatePoll:
			accepted, err := n.poll(ctx)
			if err != nil {
				lastErr = err
				n.state = StateError
				continue
			}
			if ctx.Err() != nil {
				n.state = StateEnd
				continue
			}
			if accepted {
				n.state = StateAcceptBack
			}
			// else: stay in POLL

		case StateAcceptBack:
			if err := n.acceptBack(); err != nil {
				lastErr = err
				n.state = StateError
				continue
			}
			n.state = StateReadReady

		case StateReadReady:
			next, err := n.readReady(ctx)
			if err != nil {
				lastErr = err
				n.state = StateError
				continue
			}
			n.state = next

		case StateRunAssign:
			next, err := n.runAssign(ctx, n.pendingAssign)
			if err != nil {
				lastErr = err
				n.state = StateError
				continue
			}
			n.state = next

		case StateEnd:
			n.closeSockets()
			if lastErr == nil {
				return ExitOK
			}
			return n.exitCode

		case StateError:
			logrus.WithError(lastErr).Error("fsm: fatal error")
			n.exitCode = ExitUsageOrHandshake
			n.state = StateEnd
		}
	}
}

func (n *Node) startCallback() error {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return crackerr.Wrap(crackerr.KindTransport, err)
	}
	n.listener = ln
	addr := ln.Addr().(*net.TCPAddr)
	n.listenPort = addr.Port
	n.listenHost = discoverLocalAddress(n.cfg.ServerHost, n.cfg.ServerPort)
	return nil
}

func (n *Node) registerWithServer() error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(n.cfg.ServerHost, fmt.Sprint(n.cfg.ServerPort)), 5*time.Second)
	if err != nil {
		return crackerr.Wrap(crackerr.KindTransport, err)
	}
	defer conn.Close()

	line, err := protocol.Encode(protocol.KindClientRegister, protocol.ClientRegister{
		NodeID:     n.nodeID,
		ListenHost: n.listenHost,
		ListenPort: n.listenPort,
		Threads:    n.cfg.Threads,
	})
	if err != nil {
		return crackerr.Wrap(crackerr.KindProtocol, err)
	}
	if _, err := conn.Write(line); err != nil {
		return crackerr.Wrap(crackerr.KindTransport, err)
	}
	return nil
}

// poll waits up to pollInterval for an incoming reverse connection.
// It returns accepted=true once one lands, without blocking longer
// than pollInterval so the caller can re-check ctx between attempts.
func (n *Node) poll(ctx context.Context) (bool, error) {
	tcpLn, ok := n.listener.(*net.TCPListener)
	if ok {
		_ = tcpLn.SetDeadline(time.Now().Add(pollInterval))
	}
	conn, err := n.listener.Accept()
	if err != nil {
		if isTimeout(err) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, nil
		}
		return false, crackerr.Wrap(crackerr.KindTransport, err)
	}
	n.conn = conn
	n.reader = protocol.NewReader(conn)
	return true, nil
}

func (n *Node) acceptBack() error {
	_ = n.conn.SetReadDeadline(time.Now().Add(serverHelloDeadline))
	env, err := n.reader.ReadEnvelope()
	if err != nil {
		return crackerr.Wrap(crackerr.KindTransport, err)
	}
	if env.Type != protocol.KindServerHello {
		return crackerr.New(crackerr.KindProtocol, "fsm: expected SERVER_HELLO, got %s", env.Type)
	}
	var hello protocol.ServerHello
	if err := protocol.DecodeBody(env, &hello); err != nil {
		return crackerr.Wrap(crackerr.KindProtocol, err)
	}
	_ = n.conn.SetReadDeadline(time.Time{})

	return n.send(protocol.KindClientHelloAck, protocol.ClientHelloAck{NodeID: n.nodeID, OK: true})
}

// readReady polls for one message with a short read deadline so it can
// notice ctx cancellation between jobs, mirroring the poll/pollForStop
// pattern used elsewhere in the FSM. Idle time between jobs would
// otherwise block on conn.Read indefinitely, making a SIGINT/SIGTERM
// that arrives while READ_READY is idle invisible until the next
// message (or peer close) arrives.
func (n *Node) readReady(ctx context.Context) (State, error) {
	for {
		if ctx.Err() != nil {
			return StateEnd, nil
		}

		env, err := n.readLocked(controlPollInterval)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return StateEnd, nil
			}
			var malformed *protocol.MalformedError
			if errors.As(err, &malformed) {
				logrus.WithError(err).Info("fsm: malformed message, ignoring")
				return StateReadReady, nil
			}
			return StateError, crackerr.Wrap(crackerr.KindTransport, err)
		}

		return n.dispatchReadReady(env)
	}
}

// dispatchReadReady interprets one message received in READ_READY.
func (n *Node) dispatchReadReady(env protocol.Envelope) (State, error) {
	switch env.Type {
	case protocol.KindAssignWork:
		var assign protocol.AssignWork
		if err := protocol.DecodeBody(env, &assign); err != nil {
			logrus.WithError(err).Info("fsm: malformed ASSIGN_WORK, ignoring")
			return StateReadReady, nil
		}
		if n.cfg.Verbose {
			logrus.WithFields(logrus.Fields{
				"jobId": assign.JobID, "hash": jobFingerprint(assign.JobID, assign.StoredHash),
				"start": assign.StartIndex, "count": assign.Count,
			}).Info("fsm: received ASSIGN_WORK")
		}
		n.pendingAssign = assign
		return StateRunAssign, nil

	case protocol.KindStop:
		var stop protocol.Stop
		_ = protocol.DecodeBody(env, &stop)
		logrus.WithField("reason", stop.Reason).Info("fsm: received STOP")
		return StateEnd, nil

	default:
		logrus.WithField("type", env.Type).Info("fsm: unexpected message in READ_READY, ignoring")
		return StateReadReady, nil
	}
}

// readLocked reads one envelope under readMu, with the connection's
// read deadline set to now+timeout first so the caller can poll
// ctx/shutdown between attempts instead of blocking forever.
func (n *Node) readLocked(timeout time.Duration) (protocol.Envelope, error) {
	n.readMu.Lock()
	defer n.readMu.Unlock()
	_ = n.conn.SetReadDeadline(time.Now().Add(timeout))
	return n.reader.ReadEnvelope()
}

func (n *Node) send(kind protocol.Kind, body any) error {
	line, err := protocol.Encode(kind, body)
	if err != nil {
		return crackerr.Wrap(crackerr.KindProtocol, err)
	}
	n.writeMu.Lock()
	defer n.writeMu.Unlock()
	_, err = n.conn.Write(line)
	if err != nil {
		return crackerr.Wrap(crackerr.KindTransport, err)
	}
	return nil
}

func (n *Node) closeSockets() {
	if n.conn != nil {
		_ = n.conn.Close()
	}
	if n.listener != nil {
		_ = n.listener.Close()
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
