// Package metrics tracks per-execution timing, success/failure counters,
// rolling history, and health alerts (spec §4.5).
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/pyhostd/pyhostd/internal/protocol"
)

// Outcome classifies one completed execution for counting purposes.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

const topScripts = 50
const latencySampleCap = 2000
const snapshotRingSize = 100

// scriptCounter holds per-script counts (spec §4.5: top-K by recent use).
type scriptCounter struct {
	successes  int64
	failures   int64
	lastUsedAt time.Time
}

// Recorder aggregates execution metrics and produces periodic snapshots.
type Recorder struct {
	mu sync.Mutex

	totalExecs    int64
	totalSuccess  int64
	totalFailures int64
	failuresByKind map[protocol.ErrorKind]int64

	perScript map[string]*scriptCounter

	latencies []time.Duration // bounded ring sample for percentile estimation
	latIdx    int
	latMin    time.Duration
	latMax    time.Duration
	latSum    time.Duration
	latCount  int64

	snapshots    []Snapshot
	snapIdx      int
	snapFilled   bool

	alerts   *AlertTracker
	lastMinuteExecs    int64
	lastMinuteFailures int64
}

// Snapshot is a per-minute summary retained in a 100-entry ring (spec §3).
type Snapshot struct {
	Timestamp     time.Time
	InUse         int
	Available     int
	HealthyCount  int
	SuccessRate1m float64
	P50           time.Duration
	P95           time.Duration
	P99           time.Duration
}

// NewRecorder builds an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		failuresByKind: make(map[protocol.ErrorKind]int64),
		perScript:      make(map[string]*scriptCounter),
		latencies:      make([]time.Duration, 0, latencySampleCap),
		alerts:         NewAlertTracker(),
	}
}

// RecordExecution logs one completed execution (spec §4.5).
func (r *Recorder) RecordExecution(scriptName string, duration time.Duration, outcome Outcome, kind protocol.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.totalExecs++
	r.lastMinuteExecs++
	if outcome == OutcomeSuccess {
		r.totalSuccess++
	} else {
		r.totalFailures++
		r.lastMinuteFailures++
		if kind != "" {
			r.failuresByKind[kind]++
		}
	}

	if scriptName != "" {
		sc, ok := r.perScript[scriptName]
		if !ok {
			if len(r.perScript) >= topScripts {
				r.evictOldestScriptLocked()
			}
			sc = &scriptCounter{}
			r.perScript[scriptName] = sc
		}
		sc.lastUsedAt = time.Now()
		if outcome == OutcomeSuccess {
			sc.successes++
		} else {
			sc.failures++
		}
	}

	r.recordLatencyLocked(duration)
}

func (r *Recorder) evictOldestScriptLocked() {
	var oldestName string
	var oldestAt time.Time
	first := true
	for name, sc := range r.perScript {
		if first || sc.lastUsedAt.Before(oldestAt) {
			oldestName, oldestAt, first = name, sc.lastUsedAt, false
		}
	}
	if oldestName != "" {
		delete(r.perScript, oldestName)
	}
}

func (r *Recorder) recordLatencyLocked(d time.Duration) {
	if r.latCount == 0 || d < r.latMin {
		r.latMin = d
	}
	if d > r.latMax {
		r.latMax = d
	}
	r.latSum += d
	r.latCount++

	if len(r.latencies) < latencySampleCap {
		r.latencies = append(r.latencies, d)
	} else {
		r.latencies[r.latIdx] = d
		r.latIdx = (r.latIdx + 1) % latencySampleCap
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// PoolStatsFunc is supplied by the caller (the Pool) so the Recorder can
// stamp pool occupancy into each snapshot without importing internal/pool.
type PoolStatsFunc func() (inUse, available, healthy int)

// Tick produces one per-minute snapshot and evaluates alert rules against
// it (spec §4.5). Intended to be called on a 1-minute ticker.
func (r *Recorder) Tick(poolSize int, statsFn PoolStatsFunc) Snapshot {
	r.mu.Lock()

	sample := make([]time.Duration, len(r.latencies))
	copy(sample, r.latencies)
	sort.Slice(sample, func(i, j int) bool { return sample[i] < sample[j] })

	successRate := 1.0
	if r.lastMinuteExecs > 0 {
		successRate = float64(r.lastMinuteExecs-r.lastMinuteFailures) / float64(r.lastMinuteExecs)
	}

	inUse, available, healthy := 0, 0, 0
	if statsFn != nil {
		inUse, available, healthy = statsFn()
	}

	snap := Snapshot{
		Timestamp:     time.Now().UTC(),
		InUse:         inUse,
		Available:     available,
		HealthyCount:  healthy,
		SuccessRate1m: successRate,
		P50:           percentile(sample, 0.50),
		P95:           percentile(sample, 0.95),
		P99:           percentile(sample, 0.99),
	}

	r.appendSnapshotLocked(snap)

	failureRate := 1.0 - successRate
	execsThisMinute := r.lastMinuteExecs
	r.lastMinuteExecs = 0
	r.lastMinuteFailures = 0
	r.mu.Unlock()

	utilisation := 0.0
	if poolSize > 0 {
		utilisation = float64(inUse) / float64(poolSize)
	}
	r.alerts.Evaluate(utilisation, failureRate, execsThisMinute)

	return snap
}

func (r *Recorder) appendSnapshotLocked(s Snapshot) {
	if len(r.snapshots) < snapshotRingSize {
		r.snapshots = append(r.snapshots, s)
		return
	}
	r.snapshots[r.snapIdx] = s
	r.snapIdx = (r.snapIdx + 1) % snapshotRingSize
	r.snapFilled = true
}

// Historical returns the retained snapshots, oldest first.
func (r *Recorder) Historical() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.snapFilled {
		out := make([]Snapshot, len(r.snapshots))
		copy(out, r.snapshots)
		return out
	}
	out := make([]Snapshot, 0, snapshotRingSize)
	out = append(out, r.snapshots[r.snapIdx:]...)
	out = append(out, r.snapshots[:r.snapIdx]...)
	return out
}

// Aggregate is the flattened view returned by GET /api/v1/metrics.
type Aggregate struct {
	TotalExecutions int64                       `json:"total_executions"`
	Successes       int64                       `json:"successes"`
	Failures        int64                       `json:"failures"`
	FailuresByKind  map[protocol.ErrorKind]int64 `json:"failures_by_kind"`
	LatencyMinMs    float64                      `json:"latency_min_ms"`
	LatencyMaxMs    float64                      `json:"latency_max_ms"`
	LatencyAvgMs    float64                      `json:"latency_avg_ms"`
	TopScripts      map[string]ScriptStats       `json:"top_scripts"`
}

// ScriptStats is the per-script breakdown within Aggregate.
type ScriptStats struct {
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// Aggregate returns the current global + per-script counters.
func (r *Recorder) Aggregate() Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()

	avg := 0.0
	if r.latCount > 0 {
		avg = float64(r.latSum.Milliseconds()) / float64(r.latCount)
	}

	kinds := make(map[protocol.ErrorKind]int64, len(r.failuresByKind))
	for k, v := range r.failuresByKind {
		kinds[k] = v
	}
	scripts := make(map[string]ScriptStats, len(r.perScript))
	for name, sc := range r.perScript {
		scripts[name] = ScriptStats{Successes: sc.successes, Failures: sc.failures}
	}

	return Aggregate{
		TotalExecutions: r.totalExecs,
		Successes:       r.totalSuccess,
		Failures:        r.totalFailures,
		FailuresByKind:  kinds,
		LatencyMinMs:    float64(r.latMin.Milliseconds()),
		LatencyMaxMs:    float64(r.latMax.Milliseconds()),
		LatencyAvgMs:    avg,
		TopScripts:      scripts,
	}
}

// Alerts exposes the tracker's currently active alerts.
func (r *Recorder) Alerts() []Alert { return r.alerts.Active() }
