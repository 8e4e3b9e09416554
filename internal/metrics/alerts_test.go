package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertTrackerFiresAboveThresholds(t *testing.T) {
	tr := NewAlertTracker()
	tr.Evaluate(0.95, 0.0, 10)

	active := tr.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "utilisation", active[0].Rule)
	assert.Equal(t, SeverityCritical, active[0].Severity)
}

func TestAlertTrackerClearsOnRecovery(t *testing.T) {
	tr := NewAlertTracker()
	tr.Evaluate(0.95, 0.0, 10)
	require.Len(t, tr.Active(), 1)

	tr.Evaluate(0.10, 0.0, 10)
	assert.Empty(t, tr.Active())
}

func TestAlertTrackerDedupesWithinWindow(t *testing.T) {
	tr := NewAlertTracker()
	tr.Evaluate(0.95, 0.0, 10)
	first := tr.Active()[0].FiredAt

	tr.Evaluate(0.96, 0.0, 10)
	second := tr.Active()[0].FiredAt

	assert.Equal(t, first, second, "re-firing within the dedup window must not bump FiredAt")
}

func TestAlertTrackerFailureRateIgnoredWhenNoExecutions(t *testing.T) {
	tr := NewAlertTracker()
	tr.Evaluate(0.0, 0.9, 0)
	assert.Empty(t, tr.Active(), "failure rate alert must not fire with zero executions")
}
