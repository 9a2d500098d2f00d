// Package coordinatormock is a minimal, test-only stand-in for the
// coordinator side of the wire protocol (spec.md §4.7). It is not a
// scheduler or job-splitting implementation - the coordinator's
// fairness policy remains out of scope per spec.md §1 - it exists
// only so tests can drive a worker node's half of the reverse-connect
// handshake and assert on the CHECKPOINT/WORK_RESULT frames it sends.
package coordinatormock

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Asylian21/crackworker/internal/protocol"
)

// Coordinator accepts a worker's CLIENT_REGISTER on a real TCP
// listener, reverse-connects, and can then send ASSIGN_WORK/STOP and
// collect CHECKPOINT/WORK_RESULT frames.
type Coordinator struct {
	regListener net.Listener
	conn        net.Conn
	reader      *protocol.Reader
}

// Start opens the registration listener a worker will dial into.
// Callers must Close it when done.
func Start() (*Coordinator, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("coordinatormock: listen: %w", err)
	}
	return &Coordinator{regListener: ln}, nil
}

// Close releases the registration listener and any accepted
// connection.
func (c *Coordinator) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	_ = c.regListener.Close()
}

// Port reports the ephemeral port a worker should register against.
func (c *Coordinator) Port() int {
	return c.regListener.Addr().(*net.TCPAddr).Port
}

// Handshake accepts one CLIENT_REGISTER, reverse-connects to the
// listener it reports, and completes the SERVER_HELLO/CLIENT_HELLO_ACK
// exchange. It returns the registration body for callers that want to
// assert on NodeID/Threads.
func (c *Coordinator) Handshake() (protocol.ClientRegister, error) {
	regConn, err := c.regListener.Accept()
	if err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: accept registration: %w", err)
	}
	defer regConn.Close()

	regReader := protocol.NewReader(regConn)
	env, err := regReader.ReadEnvelope()
	if err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: read CLIENT_REGISTER: %w", err)
	}
	if env.Type != protocol.KindClientRegister {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: got %s, want CLIENT_REGISTER", env.Type)
	}
	var reg protocol.ClientRegister
	if err := protocol.DecodeBody(env, &reg); err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: decode CLIENT_REGISTER: %w", err)
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(reg.ListenHost, strconv.Itoa(reg.ListenPort)), 2*time.Second)
	if err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: reverse connect: %w", err)
	}
	c.conn = conn
	c.reader = protocol.NewReader(conn)

	line, err := protocol.Encode(protocol.KindServerHello, protocol.ServerHello{ServerTime: time.Now(), NodeID: reg.NodeID})
	if err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: encode SERVER_HELLO: %w", err)
	}
	if _, err := conn.Write(line); err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: write SERVER_HELLO: %w", err)
	}

	ackEnv, err := c.reader.ReadEnvelope()
	if err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: read CLIENT_HELLO_ACK: %w", err)
	}
	if ackEnv.Type != protocol.KindClientHelloAck {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: got %s, want CLIENT_HELLO_ACK", ackEnv.Type)
	}
	var ack protocol.ClientHelloAck
	if err := protocol.DecodeBody(ackEnv, &ack); err != nil {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: decode CLIENT_HELLO_ACK: %w", err)
	}
	if !ack.OK {
		return protocol.ClientRegister{}, fmt.Errorf("coordinatormock: CLIENT_HELLO_ACK.OK = false")
	}
	return reg, nil
}

// AssignWork sends an ASSIGN_WORK message over the handshaken
// connection.
func (c *Coordinator) AssignWork(assign protocol.AssignWork) error {
	return c.send(protocol.KindAssignWork, assign)
}

// Stop broadcasts a STOP message.
func (c *Coordinator) Stop(reason string) error {
	return c.send(protocol.KindStop, protocol.Stop{Reason: reason})
}

func (c *Coordinator) send(kind protocol.Kind, body any) error {
	line, err := protocol.Encode(kind, body)
	if err != nil {
		return fmt.Errorf("coordinatormock: encode %s: %w", kind, err)
	}
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("coordinatormock: write %s: %w", kind, err)
	}
	return nil
}

// ReadEnvelope reads one raw envelope, for callers that want to
// inspect message order directly (e.g. to assert the first message
// after a job starts is a CHECKPOINT).
func (c *Coordinator) ReadEnvelope() (protocol.Envelope, error) {
	return c.reader.ReadEnvelope()
}

// ReadUntilWorkResult drains CHECKPOINT messages until a WORK_RESULT
// arrives (or maxMessages is exceeded), returning both.
func (c *Coordinator) ReadUntilWorkResult(maxMessages int) (protocol.WorkResult, []protocol.Checkpoint, error) {
	var checkpoints []protocol.Checkpoint
	for i := 0; i < maxMessages; i++ {
		env, err := c.reader.ReadEnvelope()
		if err != nil {
			return protocol.WorkResult{}, checkpoints, fmt.Errorf("coordinatormock: read: %w", err)
		}
		switch env.Type {
		case protocol.KindCheckpoint:
			var cp protocol.Checkpoint
			if err := protocol.DecodeBody(env, &cp); err != nil {
				return protocol.WorkResult{}, checkpoints, fmt.Errorf("coordinatormock: decode CHECKPOINT: %w", err)
			}
			checkpoints = append(checkpoints, cp)
		case protocol.KindWorkResult:
			var wr protocol.WorkResult
			if err := protocol.DecodeBody(env, &wr); err != nil {
				return protocol.WorkResult{}, checkpoints, fmt.Errorf("coordinatormock: decode WORK_RESULT: %w", err)
			}
			return wr, checkpoints, nil
		default:
			return protocol.WorkResult{}, checkpoints, fmt.Errorf("coordinatormock: unexpected message type %s", env.Type)
		}
	}
	return protocol.WorkResult{}, checkpoints, fmt.Errorf("coordinatormock: did not receive WORK_RESULT within %d messages", maxMessages)
}
