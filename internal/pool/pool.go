// Package pool manages a fleet of Executors: FIFO borrow/return, periodic
// health sweeps, and replacement of failed workers (spec §4.3).
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pyhostd/pyhostd/internal/executor"
	"github.com/pyhostd/pyhostd/internal/worker"
)

var (
	ErrPoolExhausted = errors.New("pool: borrow timed out waiting for an available executor")
	ErrPoolClosed    = errors.New("pool: closed")
)

// Config controls pool sizing and timeouts (spec §6.5).
type Config struct {
	Size            int
	MinSize         int
	MaxSize         int
	BorrowTimeout   time.Duration
	StartupTimeout  time.Duration
	HealthInterval  time.Duration
	ShutdownGrace   time.Duration
	ProbeDeadline   time.Duration
	WorkerConfig    worker.Config
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 3
	}
	if c.MinSize <= 0 {
		c.MinSize = 2
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.BorrowTimeout <= 0 {
		c.BorrowTimeout = 30 * time.Second
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = 10 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	if c.ProbeDeadline <= 0 {
		c.ProbeDeadline = 2 * time.Second
	}
	return c
}

// Stats is a reporting snapshot of the whole pool (spec §6.4 pool-stats).
type Stats struct {
	Size        int
	Available   int
	InUse       int
	Unhealthy   int
	Waiting     int
	Restarts    int
	Executors   []executor.Info
}

// Pool owns a fixed-to-adaptive fleet of Executors and hands them out to
// callers one at a time, FIFO, under a bounded wait.
type Pool struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	executors []*executor.Executor
	waiters   []chan *executor.Executor
	closed    bool
	nextGen   int

	healthTicker *time.Ticker
	stopHealth   chan struct{}
	wg           sync.WaitGroup
}

// New builds and starts a Pool with Size Executors running, per spec §5.
func New(cfg Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &Pool{cfg: cfg, logger: logger, stopHealth: make(chan struct{})}

	for i := 0; i < cfg.Size; i++ {
		if err := p.spawnOne(); err != nil {
			p.Close()
			return nil, fmt.Errorf("starting executor %d/%d: %w", i+1, cfg.Size, err)
		}
	}

	p.healthTicker = time.NewTicker(cfg.HealthInterval)
	p.wg.Add(1)
	go p.healthLoop()

	return p, nil
}

func (p *Pool) spawnOne() error {
	p.mu.Lock()
	gen := p.nextGen
	p.nextGen++
	p.mu.Unlock()

	id := uuid.NewString()
	ex := executor.New(id, gen, p.cfg.WorkerConfig, p.logger.With("executor", id))
	if err := ex.Start(p.cfg.StartupTimeout); err != nil {
		return err
	}

	p.mu.Lock()
	p.executors = append(p.executors, ex)
	p.mu.Unlock()
	return nil
}

// Borrow hands the caller an Available Executor, waiting FIFO up to
// BorrowTimeout before returning ErrPoolExhausted (spec §4.3).
func (p *Pool) Borrow(ctx context.Context) (*executor.Executor, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	for _, ex := range p.executors {
		if ex.State() == executor.Available {
			ex.SetState(executor.InUse)
			p.mu.Unlock()
			return ex, nil
		}
	}

	ch := make(chan *executor.Executor, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.BorrowTimeout)
	defer timer.Stop()

	select {
	case ex := <-ch:
		if ex == nil {
			return nil, ErrPoolClosed
		}
		return ex, nil
	case <-timer.C:
		p.removeWaiter(ch)
		return nil, ErrPoolExhausted
	case <-ctx.Done():
		p.removeWaiter(ch)
		return nil, ctx.Err()
	}
}

func (p *Pool) removeWaiter(target chan *executor.Executor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ch := range p.waiters {
		if ch == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Return gives an Executor back to the pool. If it has gone UNHEALTHY while
// on loan, it is replaced rather than recycled (spec §4.3).
func (p *Pool) Return(ex *executor.Executor) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		go func() { _ = ex.Close(p.cfg.ShutdownGrace) }()
		return
	}

	if ex.State() == executor.Unhealthy {
		p.mu.Unlock()
		p.replace(ex)
		return
	}

	ex.SetState(executor.Available)
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		ex.SetState(executor.InUse)
		p.mu.Unlock()
		ch <- ex
		return
	}
	p.mu.Unlock()
}

// replace closes the failed Executor and starts a fresh one in its place.
func (p *Pool) replace(dead *executor.Executor) {
	dead.SetState(executor.Replacing)
	go func() {
		_ = dead.Close(p.cfg.ShutdownGrace)

		p.mu.Lock()
		for i, ex := range p.executors {
			if ex == dead {
				p.executors = append(p.executors[:i], p.executors[i+1:]...)
				break
			}
		}
		p.mu.Unlock()

		if err := p.spawnOne(); err != nil {
			p.logger.Error("pool: failed to replace unhealthy executor", "error", err)
			return
		}

		p.mu.Lock()
		if len(p.waiters) > 0 && !p.closed {
			for _, ex := range p.executors {
				if ex.State() == executor.Available {
					ch := p.waiters[0]
					p.waiters = p.waiters[1:]
					ex.SetState(executor.InUse)
					p.mu.Unlock()
					ch <- ex
					return
				}
			}
		}
		p.mu.Unlock()
	}()
}

// healthLoop probes Available executors on a timer and replaces any that
// fail to respond, per spec §4.3. Executors on loan are never probed.
func (p *Pool) healthLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.healthTicker.C:
			p.sweep()
		case <-p.stopHealth:
			return
		}
	}
}

func (p *Pool) sweep() {
	p.mu.Lock()
	candidates := make([]*executor.Executor, 0, len(p.executors))
	for _, ex := range p.executors {
		if ex.State() == executor.Available {
			ex.SetState(executor.InUse) // claim it for the duration of the probe
			candidates = append(candidates, ex)
		}
	}
	p.mu.Unlock()

	for _, ex := range candidates {
		if err := ex.Ping(p.cfg.ProbeDeadline); err != nil {
			p.logger.Warn("pool: health probe failed", "error", err)
			ex.SetState(executor.Unhealthy)
			p.replace(ex)
			continue
		}
		p.Return(ex)
	}
}

// Stats returns a point-in-time view of the pool for the metrics/pool-stats
// endpoint (spec §6.4).
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Size: len(p.executors), Waiting: len(p.waiters)}
	for _, ex := range p.executors {
		info := ex.Snapshot()
		s.Executors = append(s.Executors, info)
		s.Restarts += info.Restarts
		switch info.State {
		case executor.Available:
			s.Available++
		case executor.InUse:
			s.InUse++
		case executor.Unhealthy:
			s.Unhealthy++
		}
	}
	return s
}

// Close drains the pool: every Executor is closed and no child process is
// left orphaned (spec §4.3, §5).
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	executors := p.executors
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	close(p.stopHealth)
	if p.healthTicker != nil {
		p.healthTicker.Stop()
	}
	p.wg.Wait()

	for _, ch := range waiters {
		close(ch)
	}

	var wg sync.WaitGroup
	for _, ex := range executors {
		wg.Add(1)
		go func(e *executor.Executor) {
			defer wg.Done()
			_ = e.Close(p.cfg.ShutdownGrace)
		}(ex)
	}
	wg.Wait()
	return nil
}
