// Package executor presents a single Worker as a blocking, thread-safe
// request/response operation with wall-clock timeouts and health tracking
// (spec §4.2). The Pool is the only intended caller.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pyhostd/pyhostd/internal/protocol"
	"github.com/pyhostd/pyhostd/internal/worker"
)

// State is the Executor's place in the Pool's bookkeeping (Data Model §3).
type State int32

const (
	Available State = iota
	InUse
	Unhealthy
	Replacing
)

func (s State) String() string {
	switch s {
	case Available:
		return "AVAILABLE"
	case InUse:
		return "IN_USE"
	case Unhealthy:
		return "UNHEALTHY"
	case Replacing:
		return "REPLACING"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrTimeout           = errors.New("executor: wall-clock deadline exceeded")
	ErrWorkerUnavailable = errors.New("executor: worker unavailable")
	ErrClosed            = errors.New("executor: closed")
)

// Info is a point-in-time, read-only snapshot of an Executor for reporting.
type Info struct {
	ID              string
	Generation      int
	State           State
	HealthScore     int32
	CreatedAt       time.Time
	LastUsedAt      time.Time
	ExecutionCount  int64
	FailureCount    int64
	Restarts        int
}

// Executor wraps one Worker process and mediates requests to it.
type Executor struct {
	id         string
	generation int
	cfg        worker.Config
	logger     *slog.Logger

	mu sync.Mutex // serialises Execute/Ping against the Worker's single stream
	w  *worker.Worker

	state       atomic.Int32
	healthScore atomic.Int32
	createdAt   time.Time

	lastUsedMu sync.RWMutex
	lastUsed   time.Time

	executionCount atomic.Int64
	failureCount   atomic.Int64
	restarts       atomic.Int32

	closed atomic.Bool
}

// New constructs an Executor in the Replacing state; call Start to spawn
// its Worker and make it Available.
func New(id string, generation int, cfg worker.Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{id: id, generation: generation, cfg: cfg, logger: logger, createdAt: time.Now()}
	e.state.Store(int32(Replacing))
	e.healthScore.Store(100)
	return e
}

// Start spawns the Worker and waits for it to answer an initial Ping within
// startupDeadline, per spec §4.2.
func (e *Executor) Start(startupDeadline time.Duration) error {
	w, err := worker.Spawn(e.cfg)
	if err != nil {
		return fmt.Errorf("spawn worker: %w", err)
	}

	e.mu.Lock()
	e.w = w
	e.mu.Unlock()

	go w.DrainStderr(discard{})

	if err := e.pingLocked(startupDeadline); err != nil {
		_ = w.Kill()
		return fmt.Errorf("worker failed startup ping: %w", err)
	}

	e.state.Store(int32(Available))
	e.touch()
	return nil
}

// Execute runs one request against the Worker, enforcing a wall-clock
// deadline strictly greater than the Bridge's own CPU cap (spec §4.2, §5).
func (e *Executor) Execute(ctx context.Context, req protocol.Request, deadline time.Duration) (protocol.Response, error) {
	if e.closed.Load() {
		return protocol.Response{}, ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	resp, err := e.roundTrip(ctx, req, deadline)
	e.executionCount.Add(1)
	if err != nil {
		e.recordFailure(classifyIOFailure(err))
		return resp, err
	}
	if !resp.Success && resp.Error != nil {
		e.recordFailure(resp.Error.Kind)
	} else {
		e.recordSuccess()
	}
	e.touch()
	return resp, nil
}

// Ping issues a lightweight health probe. Callers (the Pool's health sweep)
// must only probe Executors already marked IN_USE for the duration of the
// probe so no borrower can race it (spec §4.3).
func (e *Executor) Ping(deadline time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pingLocked(deadline)
}

func (e *Executor) pingLocked(deadline time.Duration) error {
	req := protocol.Request{ID: uuid.NewString(), Command: protocol.CmdPing}
	resp, err := e.roundTrip(context.Background(), req, deadline)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ping failed: %v", resp.Error)
	}
	return nil
}

// roundTrip performs one send/receive cycle with a wall-clock timeout.
// Caller must hold e.mu.
func (e *Executor) roundTrip(ctx context.Context, req protocol.Request, deadline time.Duration) (protocol.Response, error) {
	if e.w == nil {
		return protocol.Response{}, ErrWorkerUnavailable
	}
	if err := e.w.Send(req); err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}

	type result struct {
		resp protocol.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := e.w.Recv()
		ch <- result{resp, err}
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return protocol.Response{}, fmt.Errorf("%w: %v", ErrWorkerUnavailable, r.err)
		}
		return r.resp, nil
	case <-timer.C:
		return protocol.Response{}, ErrTimeout
	case <-ctx.Done():
		return protocol.Response{}, ctx.Err()
	}
}

// recordSuccess nudges the health score up, capped at 100 (spec §4.2).
func (e *Executor) recordSuccess() {
	for {
		cur := e.healthScore.Load()
		next := cur + 2
		if next > 100 {
			next = 100
		}
		if e.healthScore.CompareAndSwap(cur, next) {
			return
		}
	}
}

// recordFailure deducts health points by failure kind and self-marks
// UNHEALTHY below the threshold (spec §4.2).
func (e *Executor) recordFailure(kind protocol.ErrorKind) {
	e.failureCount.Add(1)
	deduction := int32(10)
	switch kind {
	case protocol.KindTimeout:
		deduction = 20
	case protocol.KindWorkerUnavailable:
		deduction = 30
	case protocol.KindResourceExceeded:
		deduction = 50
	}
	for {
		cur := e.healthScore.Load()
		next := cur - deduction
		if next < 0 {
			next = 0
		}
		if e.healthScore.CompareAndSwap(cur, next) {
			break
		}
	}
	if e.healthScore.Load() < 30 {
		e.state.Store(int32(Unhealthy))
	}
}

func classifyIOFailure(err error) protocol.ErrorKind {
	if errors.Is(err, ErrTimeout) {
		return protocol.KindTimeout
	}
	return protocol.KindWorkerUnavailable
}

func (e *Executor) touch() {
	e.lastUsedMu.Lock()
	e.lastUsed = time.Now()
	e.lastUsedMu.Unlock()
}

// SetState transitions the Executor's bookkeeping state. The Pool is the
// sole owner of these transitions outside of recordFailure's self-demotion.
func (e *Executor) SetState(s State) { e.state.Store(int32(s)) }

// State returns the Executor's current bookkeeping state.
func (e *Executor) State() State { return State(e.state.Load()) }

// HealthScore returns the current 0-100 health score.
func (e *Executor) HealthScore() int32 { return e.healthScore.Load() }

// MarkRestarted increments the restart counter (spec §7: bounded spawn retries).
func (e *Executor) MarkRestarted() { e.restarts.Add(1) }

// Snapshot returns a point-in-time Info for reporting.
func (e *Executor) Snapshot() Info {
	e.lastUsedMu.RLock()
	lastUsed := e.lastUsed
	e.lastUsedMu.RUnlock()
	return Info{
		ID:             e.id,
		Generation:     e.generation,
		State:          e.State(),
		HealthScore:    e.healthScore.Load(),
		CreatedAt:      e.createdAt,
		LastUsedAt:     lastUsed,
		ExecutionCount: e.executionCount.Load(),
		FailureCount:   e.failureCount.Load(),
		Restarts:       int(e.restarts.Load()),
	}
}

// Close sends a shutdown line, waits up to grace for the Worker to exit,
// then force-kills it. Idempotent (spec §4.2).
func (e *Executor) Close(grace time.Duration) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	w := e.w
	e.mu.Unlock()
	if w == nil {
		return nil
	}

	_ = w.Send(protocol.Request{ID: "shutdown", Command: protocol.CmdShutdown})
	_ = w.CloseStdin()

	done := make(chan error, 1)
	go func() { done <- w.Wait() }()

	select {
	case <-done:
	case <-time.After(grace):
		_ = w.Kill()
		<-done
	}
	w.Cleanup()
	return nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
