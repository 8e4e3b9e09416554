package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyhostd/pyhostd/internal/protocol"
)

func TestRecordExecutionTracksTotals(t *testing.T) {
	r := NewRecorder()

	r.RecordExecution("script_a", 10*time.Millisecond, OutcomeSuccess, "")
	r.RecordExecution("script_a", 20*time.Millisecond, OutcomeFailure, protocol.KindTimeout)
	r.RecordExecution("script_b", 5*time.Millisecond, OutcomeSuccess, "")

	agg := r.Aggregate()
	assert.EqualValues(t, 3, agg.TotalExecutions)
	assert.EqualValues(t, 2, agg.Successes)
	assert.EqualValues(t, 1, agg.Failures)
	assert.EqualValues(t, 1, agg.FailuresByKind[protocol.KindTimeout])
	require.Contains(t, agg.TopScripts, "script_a")
	assert.EqualValues(t, 1, agg.TopScripts["script_a"].Successes)
	assert.EqualValues(t, 1, agg.TopScripts["script_a"].Failures)
}

func TestRecordExecutionEvictsOldestScriptPastTopK(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < topScripts+5; i++ {
		r.RecordExecution(scriptName(i), time.Millisecond, OutcomeSuccess, "")
		time.Sleep(time.Microsecond)
	}

	agg := r.Aggregate()
	assert.LessOrEqual(t, len(agg.TopScripts), topScripts)
}

func TestTickComputesSuccessRateAndResetsWindow(t *testing.T) {
	r := NewRecorder()
	r.RecordExecution("s", time.Millisecond, OutcomeSuccess, "")
	r.RecordExecution("s", time.Millisecond, OutcomeFailure, protocol.KindRuntimeError)

	snap := r.Tick(3, func() (int, int, int) { return 1, 2, 3 })
	assert.InDelta(t, 0.5, snap.SuccessRate1m, 0.001)
	assert.Equal(t, 1, snap.InUse)
	assert.Equal(t, 2, snap.Available)
	assert.Equal(t, 3, snap.HealthyCount)

	// A second tick with no executions in between reports a clean window.
	snap2 := r.Tick(3, func() (int, int, int) { return 0, 3, 3 })
	assert.InDelta(t, 1.0, snap2.SuccessRate1m, 0.001)
}

func TestTickPercentilesOrderCorrectly(t *testing.T) {
	r := NewRecorder()
	for _, ms := range []int{10, 50, 100, 500, 1000} {
		r.RecordExecution("s", time.Duration(ms)*time.Millisecond, OutcomeSuccess, "")
	}

	snap := r.Tick(1, nil)
	assert.LessOrEqual(t, snap.P50, snap.P95)
	assert.LessOrEqual(t, snap.P95, snap.P99)
}

func TestHistoricalReturnsOldestFirstAcrossWrap(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < snapshotRingSize+10; i++ {
		r.Tick(1, nil)
	}

	hist := r.Historical()
	require.Len(t, hist, snapshotRingSize)
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].Timestamp.Before(hist[i-1].Timestamp))
	}
}

func TestAlertsFireOnUtilisationAndFailureRate(t *testing.T) {
	r := NewRecorder()
	r.RecordExecution("s", time.Millisecond, OutcomeFailure, protocol.KindRuntimeError)

	r.Tick(1, func() (int, int, int) { return 1, 0, 1 })

	alerts := r.Alerts()
	require.NotEmpty(t, alerts)

	var sawUtilisation, sawFailureRate bool
	for _, a := range alerts {
		if a.Rule == "utilisation" {
			sawUtilisation = true
		}
		if a.Rule == "failure_rate" {
			sawFailureRate = true
		}
	}
	assert.True(t, sawUtilisation)
	assert.True(t, sawFailureRate)
}

func scriptName(i int) string {
	return "script_" + string(rune('a'+i%26)) + string(rune('0'+i%10))
}
