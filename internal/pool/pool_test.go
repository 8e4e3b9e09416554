package pool

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyhostd/pyhostd/internal/worker"
)

// requirePython skips a test when no Python 3 interpreter is on PATH,
// mirroring mrdon-cleared/internal/sandbox/bridge_test.go's requireUV guard.
func requirePython(t *testing.T) string {
	t.Helper()
	for _, candidate := range []string{"python3", "python"} {
		if p, err := exec.LookPath(candidate); err == nil {
			return p
		}
	}
	t.Skip("no python3/python on PATH, skipping pool test")
	return ""
}

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	interp := requirePython(t)
	p, err := New(Config{
		Size:           size,
		BorrowTimeout:  2 * time.Second,
		StartupTimeout: 5 * time.Second,
		HealthInterval: time.Hour, // disable the background sweep for these tests
		ShutdownGrace:  time.Second,
		WorkerConfig:   worker.Config{InterpreterPath: interp},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewSpawnsConfiguredSize(t *testing.T) {
	p := newTestPool(t, 2)
	stats := p.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Available)
}

func TestBorrowAndReturn(t *testing.T) {
	p := newTestPool(t, 1)

	ex, err := p.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stats().Available)

	p.Return(ex)
	assert.Equal(t, 1, p.Stats().Available)
}

func TestBorrowTimesOutWhenExhausted(t *testing.T) {
	p := newTestPool(t, 1)

	ex, err := p.Borrow(context.Background())
	require.NoError(t, err)

	_, err = p.Borrow(context.Background())
	assert.ErrorIs(t, err, ErrPoolExhausted)

	p.Return(ex)
}

func TestBorrowFIFOHandsToWaiterOnReturn(t *testing.T) {
	p := newTestPool(t, 1)

	ex, err := p.Borrow(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.Borrow(context.Background())
		done <- err
	}()

	// Give the waiter time to register before returning the only executor.
	time.Sleep(50 * time.Millisecond)
	p.Return(ex)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never received the returned executor")
	}
}

func TestBorrowAfterCloseReturnsPoolClosed(t *testing.T) {
	p := newTestPool(t, 1)
	require.NoError(t, p.Close())

	_, err := p.Borrow(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newTestPool(t, 1)
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
}

func TestWithDefaultsFillsZeroValues(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 3, cfg.Size)
	assert.Equal(t, 2, cfg.MinSize)
	assert.Equal(t, 10, cfg.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.BorrowTimeout)
	assert.Equal(t, 10*time.Second, cfg.StartupTimeout)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval)
	assert.Equal(t, 2*time.Second, cfg.ShutdownGrace)
	assert.Equal(t, 2*time.Second, cfg.ProbeDeadline)
}
