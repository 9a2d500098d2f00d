package fsm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Asylian21/crackworker/internal/crackerr"
	"github.com/Asylian21/crackworker/internal/pool"
	"github.com/Asylian21/crackworker/internal/protocol"
	"github.com/sirupsen/logrus"
)

// runAssign executes one ASSIGN_WORK to completion: it starts a
// concurrent control listener that watches the shared connection for
// an out-of-band STOP while the pool runs the slice, streams
// CHECKPOINT messages, and sends exactly one WORK_RESULT unless a
// STOP preempted the job.
func (n *Node) runAssign(parent context.Context, assign protocol.AssignWork) (State, error) {
	jobCtx, cancel := context.WithCancel(parent)
	defer cancel()

	var stopReceived atomic.Bool
	done := make(chan struct{})
	var controlWG sync.WaitGroup
	controlWG.Add(1)
	go func() {
		defer controlWG.Done()
		n.controlListen(jobCtx, cancel, &stopReceived, done)
	}()

	cb := pool.Callbacks{
		OnCheckpoint: func(tried int64, perWorker []int64) {
			n.sendCheckpoint(assign, tried)
			if n.OnCheckpoint != nil {
				n.OnCheckpoint(assign.JobID, tried, perWorker)
			}
			if n.cfg.Verbose {
				logrus.WithFields(logrus.Fields{
					"jobId": assign.JobID, "hash": jobFingerprint(assign.JobID, assign.StoredHash),
					"tried": tried, "perWorker": perWorker,
				}).Info("fsm: checkpoint")
			}
		},
	}

	began := time.Now()
	result, err := n.pool.RunSlice(jobCtx, assign.StoredHash, assign.StartIndex, assign.Count, assign.CheckpointEvery, cb)

	close(done)
	controlWG.Wait()

	if err != nil {
		return StateError, err
	}

	if stopReceived.Load() {
		logrus.WithFields(logrus.Fields{
			"jobId": assign.JobID, "hash": jobFingerprint(assign.JobID, assign.StoredHash),
		}).Info("fsm: STOP preempted job, suppressing WORK_RESULT")
		return StateEnd, nil
	}

	if err := n.sendWorkResult(assign, result, time.Since(began)); err != nil {
		return StateError, err
	}
	if n.cfg.Verbose {
		logrus.WithFields(logrus.Fields{
			"jobId": assign.JobID, "hash": jobFingerprint(assign.JobID, assign.StoredHash),
			"found": result.Found, "tried": result.Tried,
		}).Info("fsm: sent WORK_RESULT")
	}
	return StateReadReady, nil
}

// controlListen polls the shared connection for an out-of-band STOP
// while a job is running. It shares the connection's receive buffer
// with the main reader under readMu, per the receive-buffer sharing
// contract.
func (n *Node) controlListen(jobCtx context.Context, cancelJob context.CancelFunc, stopReceived *atomic.Bool, done <-chan struct{}) {
	for {
		select {
		case <-done:
			// Final non-blocking drain to catch a STOP that arrived
			// between the last worker iteration and the result send.
			n.pollForStop(stopReceived, cancelJob)
			return
		default:
		}

		if n.pollForStop(stopReceived, cancelJob) {
			return
		}
	}
}

// pollForStop attempts one bounded read for a STOP message. It
// returns true if a STOP was observed (and the job cancelled).
func (n *Node) pollForStop(stopReceived *atomic.Bool, cancelJob context.CancelFunc) bool {
	n.readMu.Lock()
	_ = n.conn.SetReadDeadline(time.Now().Add(controlPollInterval))
	env, err := n.reader.ReadEnvelope()
	n.readMu.Unlock()

	if err != nil {
		// Timeouts are expected every poll interval; anything else
		// (peer close, malformed line) is logged and the listener
		// keeps polling - a transport failure here doesn't need to
		// abort the in-flight job, which will finish on its own.
		if !isTimeout(err) {
			var malformed *protocol.MalformedError
			if errors.As(err, &malformed) {
				logrus.WithError(err).Info("fsm: malformed message during RUN_ASSIGN, ignoring")
			} else {
				logrus.WithError(err).Info("fsm: control listener read failed")
			}
		}
		return false
	}

	if env.Type != protocol.KindStop {
		logrus.WithField("type", env.Type).Info("fsm: ignoring message during RUN_ASSIGN")
		return false
	}

	var stop protocol.Stop
	_ = protocol.DecodeBody(env, &stop)
	logrus.WithField("reason", stop.Reason).Info("fsm: STOP received during RUN_ASSIGN")
	stopReceived.Store(true)
	cancelJob()
	return true
}

func (n *Node) sendCheckpoint(assign protocol.AssignWork, tried int64) {
	err := n.send(protocol.KindCheckpoint, protocol.Checkpoint{
		JobID:     assign.JobID,
		Tried:     tried,
		LastIndex: assign.StartIndex + tried - 1,
		Timestamp: time.Now(),
	})
	if err != nil {
		logrus.WithError(err).Warn("fsm: failed to send checkpoint")
	}
}

func (n *Node) sendWorkResult(assign protocol.AssignWork, result pool.SliceResult, elapsed time.Duration) error {
	var password *string
	if result.Found {
		password = &result.Password
	}
	err := n.send(protocol.KindWorkResult, protocol.WorkResult{
		JobID:      assign.JobID,
		Found:      result.Found,
		Password:   password,
		Tried:      result.Tried,
		DurationMs: elapsed.Milliseconds(),
	})
	if err != nil {
		return crackerr.Wrap(crackerr.KindTransport, err)
	}
	return nil
}
