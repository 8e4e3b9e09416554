package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pyhostd/pyhostd/internal/protocol"
	"github.com/pyhostd/pyhostd/internal/worker"
)

func newTestExecutor() *Executor {
	return New("ex-1", 1, worker.Config{}, nil)
}

func TestNewStartsInReplacingWithFullHealth(t *testing.T) {
	e := newTestExecutor()
	assert.Equal(t, Replacing, e.State())
	assert.EqualValues(t, 100, e.HealthScore())
}

func TestRecordSuccessCapsAtHundred(t *testing.T) {
	e := newTestExecutor()
	for i := 0; i < 10; i++ {
		e.recordSuccess()
	}
	assert.EqualValues(t, 100, e.HealthScore())
}

func TestRecordFailureDeductionsPerKind(t *testing.T) {
	cases := []struct {
		kind   protocol.ErrorKind
		expect int32
	}{
		{protocol.KindTimeout, 80},
		{protocol.KindWorkerUnavailable, 70},
		{protocol.KindResourceExceeded, 50},
		{protocol.KindRuntimeError, 90},
	}
	for _, tc := range cases {
		e := newTestExecutor()
		e.recordFailure(tc.kind)
		assert.Equal(t, tc.expect, e.HealthScore(), "kind %v", tc.kind)
	}
}

func TestRecordFailureSelfMarksUnhealthyBelowThreshold(t *testing.T) {
	e := newTestExecutor()
	e.SetState(Available)

	e.recordFailure(protocol.KindResourceExceeded) // 100 -> 50, still healthy
	assert.Equal(t, Available, e.State())

	e.recordFailure(protocol.KindResourceExceeded) // 50 -> 0, unhealthy
	assert.Equal(t, Unhealthy, e.State())
	assert.EqualValues(t, 0, e.HealthScore())
}

func TestRecordFailureNeverGoesNegative(t *testing.T) {
	e := newTestExecutor()
	for i := 0; i < 5; i++ {
		e.recordFailure(protocol.KindResourceExceeded)
	}
	assert.EqualValues(t, 0, e.HealthScore())
}

func TestClassifyIOFailure(t *testing.T) {
	assert.Equal(t, protocol.KindTimeout, classifyIOFailure(ErrTimeout))
	assert.Equal(t, protocol.KindWorkerUnavailable, classifyIOFailure(ErrWorkerUnavailable))
}

func TestMarkRestartedIncrementsSnapshot(t *testing.T) {
	e := newTestExecutor()
	e.MarkRestarted()
	e.MarkRestarted()
	assert.Equal(t, 2, e.Snapshot().Restarts)
}

func TestExecuteOnUnspawnedWorkerFailsClosed(t *testing.T) {
	e := newTestExecutor()
	// New() does not spawn a worker; e.w is nil until Start() succeeds.
	_, err := e.roundTrip(context.Background(), protocol.Request{Command: protocol.CmdPing}, 0)
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestCloseOnNeverStartedExecutorIsIdempotent(t *testing.T) {
	e := newTestExecutor()
	assert.NoError(t, e.Close(0))
	assert.NoError(t, e.Close(0))
}
