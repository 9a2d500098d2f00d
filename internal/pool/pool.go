// Package pool implements the worker pool, the hardest and most
// concurrency-sensitive component in the system. A persistent set of
// goroutines jointly processes one "job" (a contiguous candidate-index
// range) at a time, publishing ordered-commit progress checkpoints and
// stopping promptly on match or external cancellation.
//
// The concurrency shape is grounded in an atomic-counter batching
// idiom for distributing work across persistent goroutines, here
// generalized from "one infinite loop per goroutine" to "one
// long-lived per-slot goroutine, repeatable jobs, ordered-commit
// bitmap progress" (see DESIGN.md).
package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Asylian21/crackworker/internal/alphabet"
	"github.com/Asylian21/crackworker/internal/crackerr"
	"github.com/Asylian21/crackworker/internal/verifier"
	"github.com/sirupsen/logrus"
)

// MaxCount is the largest slice size accepted by RunSlice: large enough
// to be useful, small enough that the per-index bitmap always fits in
// addressable memory.
const MaxCount = (1 << 31) - 1

// VerifierFactory builds a Verifier for one worker-pool slot, scoped to
// a single job's stored hash. It is called once per slot per job, which
// lets a native-crypt verifier bind to that slot's private crypt_ra
// scratch buffer while an APR1 verifier simply ignores the slot.
type VerifierFactory func(storedHash string, slot int) (verifier.Verifier, error)

// Callbacks are the caller-supplied hooks RunSlice invokes during a job.
type Callbacks struct {
	// OnWorkerStart is called once per slot per job, with that slot's
	// index and a process-unique "thread id" (here, the slot index
	// itself - Go goroutines have no stable OS thread id to report).
	OnWorkerStart func(slot, tid int)
	// OnCheckpoint is called once per milestone crossed, in strictly
	// increasing tried order, serialized by the job's progress mutex.
	OnCheckpoint func(tried int64, perWorkerTried []int64)
}

// SliceResult is what RunSlice returns once every worker has finished
// its part of the job.
type SliceResult struct {
	Found    bool
	Password string
	Tried    int64
	Duration time.Duration
}

// Pool is a fixed-size set of persistent goroutines that run one job
// at a time. Construct with New; call Shutdown when the process is
// exiting to let the goroutines return.
type Pool struct {
	threads     int
	newVerifier VerifierFactory
	alphabet    *alphabet.Alphabet

	mu      sync.Mutex
	version uint64
	wake    chan struct{}
	job     *jobState

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a Pool of exactly threads persistent goroutines. They
// run until Shutdown is called, surviving across any number of
// RunSlice calls.
func New(threads int, newVerifier VerifierFactory, a *alphabet.Alphabet) (*Pool, error) {
	if threads < 1 {
		return nil, crackerr.New(crackerr.KindInvariant, "pool: threads must be >= 1, got %d", threads)
	}
	p := &Pool{
		threads:     threads,
		newVerifier: newVerifier,
		alphabet:    a,
		wake:        make(chan struct{}),
		shutdown:    make(chan struct{}),
	}
	for slot := 0; slot < threads; slot++ {
		go p.workerLoop(slot)
	}
	return p, nil
}

// Shutdown stops all persistent goroutines. The Pool must not be used
// afterwards.
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() { close(p.shutdown) })
}

// Threads reports the fixed number of persistent goroutines.
func (p *Pool) Threads() int { return p.threads }

// RunSlice publishes a job covering the half-open index range
// [start, start+count) and blocks until every worker has finished its
// share.
//
// ctx cancellation is the pool's external stop signal; canceling it
// mid-run makes RunSlice return early with whatever was tried so far.
func (p *Pool) RunSlice(ctx context.Context, storedHash string, start, count int64, checkpointEvery int32, cb Callbacks) (SliceResult, error) {
	if start < 0 {
		return SliceResult{}, crackerr.New(crackerr.KindInvariant, "pool: start must be >= 0, got %d", start)
	}
	if count < 1 || count > MaxCount {
		return SliceResult{}, crackerr.New(crackerr.KindInvariant, "pool: count must be in [1, %d], got %d", MaxCount, count)
	}
	if checkpointEvery < 1 {
		return SliceResult{}, crackerr.New(crackerr.KindInvariant, "pool: checkpointEvery must be >= 1, got %d", checkpointEvery)
	}

	job := newJobState(ctx, p.alphabet, storedHash, start, count, checkpointEvery, p.threads, cb)
	job.latch.Add(p.threads)

	p.mu.Lock()
	p.job = job
	p.version++
	oldWake := p.wake
	p.wake = make(chan struct{})
	p.mu.Unlock()
	close(oldWake)

	began := time.Now()
	job.latch.Wait()
	elapsed := time.Since(began)

	if fatal := job.fatalErr.Load(); fatal != nil && fatal.err != nil {
		return SliceResult{}, fatal.err
	}

	result := SliceResult{
		Tried:    job.totalTried.Load(),
		Duration: elapsed,
	}
	if pw, ok := job.resultPassword.Load().(string); ok {
		result.Found = true
		result.Password = pw
	}
	return result, nil
}

// workerLoop is the body of one persistent slot goroutine: wait for a
// new job version, run the slot's share of it, signal completion,
// repeat.
func (p *Pool) workerLoop(slot int) {
	// Locking the OS thread gives this slot's crypt_ra scratch buffer a
	// stable home for the pool's lifetime: the scratch buffer is owned
	// exclusively by whichever thread allocated it (see DESIGN.md
	// internal/cryptbind entry).
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var lastVersion uint64
	for {
		p.mu.Lock()
		for p.version == lastVersion {
			wake := p.wake
			p.mu.Unlock()
			select {
			case <-wake:
			case <-p.shutdown:
				return
			}
			p.mu.Lock()
		}
		job := p.job
		version := p.version
		p.mu.Unlock()
		lastVersion = version

		p.runSlot(slot, job)
	}
}

// runSlot runs one slot's share of one job to completion (match,
// external stop, or exhaustion) and signals the job's completion
// latch exactly once, even if a verify call panics.
func (p *Pool) runSlot(slot int, job *jobState) {
	defer job.latch.Done()
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"slot": slot, "panic": r}).Error("pool: worker recovered from panic")
		}
	}()

	if job.cb.OnWorkerStart != nil {
		job.cb.OnWorkerStart(slot, slot)
	}

	v, err := p.newVerifier(job.storedHash, slot)
	if err != nil {
		job.setFatal(crackerr.Wrap(crackerr.KindBinding, err))
		return
	}

	for {
		if job.stopFlag.Load() {
			return
		}
		if job.ctx.Err() != nil {
			job.stopFlag.Store(true)
			return
		}

		rel := job.nextRel.Add(1) - 1
		if rel >= job.count {
			return
		}

		idx := job.startIndex + rel
		cand, encErr := job.alphabet.IndexToCandidate(idx)
		if encErr != nil {
			// An index within a validated [start, start+count) range
			// should never fail to encode; treat it like any other
			// verify-time failure.
			logrus.WithFields(logrus.Fields{"rel": rel, "err": encErr}).Warn("pool: candidate encoding failed, marking tried")
			job.markTriedWithoutVerify(slot, rel)
			continue
		}

		ok, verr := v.Verify(job.ctx, cand)
		if verr != nil {
			if ce, isCrack := crackerr.As(verr); isCrack && ce.Kind == crackerr.KindBinding {
				job.setFatal(ce)
				return
			}
			logrus.WithFields(logrus.Fields{"slot": slot, "rel": rel, "err": verr}).Warn("pool: verify failed, treating as non-match")
			job.markTriedWithoutVerify(slot, rel)
			continue
		}

		job.markTried(slot, rel)

		if ok {
			if job.resultSet.CompareAndSwap(false, true) {
				job.resultPassword.Store(cand)
			}
			job.stopFlag.Store(true)
			return
		}
	}
}

// fatalErr boxes an error behind a fixed concrete type so it can live
// in an atomic.Pointer regardless of the dynamic error type stored.
type fatalErr struct{ err error }

// jobState is one job's worker-local state.
type jobState struct {
	ctx             context.Context
	alphabet        *alphabet.Alphabet
	storedHash      string
	startIndex      int64
	count           int64
	checkpointEvery int32
	cb              Callbacks

	nextRel atomic.Int64

	done *bitmap

	progressMu            sync.Mutex
	donePrefix            int64
	lastCheckpointEmitted int64

	perWorkerTried []atomic.Int64
	totalTried     atomic.Int64

	stopFlag       atomic.Bool
	resultSet      atomic.Bool
	resultPassword atomic.Value // string

	fatalErr atomic.Pointer[fatalErr]

	latch sync.WaitGroup
}

func newJobState(ctx context.Context, a *alphabet.Alphabet, storedHash string, start, count int64, checkpointEvery int32, threads int, cb Callbacks) *jobState {
	return &jobState{
		ctx:             ctx,
		alphabet:        a,
		storedHash:      storedHash,
		startIndex:      start,
		count:           count,
		checkpointEvery: checkpointEvery,
		cb:              cb,
		done:            newBitmap(count),
		perWorkerTried:  make([]atomic.Int64, threads),
	}
}

func (job *jobState) setFatal(err *crackerr.Error) {
	job.fatalErr.CompareAndSwap(nil, &fatalErr{err: err})
	job.stopFlag.Store(true)
}

// markTried records that rel has been verified (whether it matched or
// not), advancing progress.
func (job *jobState) markTried(slot int, rel int64) {
	job.perWorkerTried[slot].Add(1)
	job.totalTried.Add(1)
	job.done.Set(rel)
	job.updateProgress()
}

// markTriedWithoutVerify is used on the failure-handling path: the
// verify call itself failed, but the index must still be marked done
// so done_prefix keeps advancing.
func (job *jobState) markTriedWithoutVerify(slot int, rel int64) {
	job.markTried(slot, rel)
}

// updateProgress advances donePrefix while contiguous indices are
// marked done, then emits every checkpoint_every-aligned milestone
// crossed since the last emission, plus the terminal count milestone
// exactly once when the slice fully completes.
func (job *jobState) updateProgress() {
	job.progressMu.Lock()
	defer job.progressMu.Unlock()

	for job.donePrefix < job.count && job.done.Get(job.donePrefix) {
		job.donePrefix++
	}

	k := int64(job.checkpointEvery)
	floorMultiple := (job.donePrefix / k) * k

	var milestones []int64
	for m := job.lastCheckpointEmitted + k; m <= floorMultiple; m += k {
		milestones = append(milestones, m)
	}
	if job.donePrefix == job.count {
		last := job.lastCheckpointEmitted
		if len(milestones) > 0 {
			last = milestones[len(milestones)-1]
		}
		if last < job.count {
			milestones = append(milestones, job.count)
		}
	}
	if len(milestones) == 0 {
		return
	}
	job.lastCheckpointEmitted = milestones[len(milestones)-1]

	if job.cb.OnCheckpoint == nil {
		return
	}
	snapshot := job.snapshotPerWorker()
	for _, m := range milestones {
		job.cb.OnCheckpoint(m, snapshot)
	}
}

func (job *jobState) snapshotPerWorker() []int64 {
	snap := make([]int64, len(job.perWorkerTried))
	for i := range snap {
		snap[i] = job.perWorkerTried[i].Load()
	}
	return snap
}

// bitmap is an atomic, word-packed per-index "tried" flag set. Each
// index is set by exactly one writer (the worker that fetched that
// relative index), so the CAS loop in Set never spins under real
// contention - it exists only to make concurrent sets of different
// bits within the same word safe.
type bitmap struct {
	words []atomic.Uint64
}

func newBitmap(count int64) *bitmap {
	n := (count + 63) / 64
	return &bitmap{words: make([]atomic.Uint64, n)}
}

func (b *bitmap) Set(i int64) {
	word := &b.words[i/64]
	bit := uint64(1) << (uint(i) % 64)
	for {
		old := word.Load()
		if old&bit != 0 {
			return
		}
		if word.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

func (b *bitmap) Get(i int64) bool {
	word := b.words[i/64].Load()
	bit := uint64(1) << (uint(i) % 64)
	return word&bit != 0
}
