// Package stats owns the process-lifetime counters, running averages and
// the rolling error log shared by the pipeline and the telemetry reporter.
package stats

import (
	"sync"
	"time"
)

// errorLogCapacity bounds the rolling error log; the reporter renders only
// the most recent few entries.
const errorLogCapacity = 100

// Snapshot is a point-in-time copy of the tracker, safe to render or
// serialize without holding any lock.
type Snapshot struct {
	QueueSize      int           `json:"queue_size"`
	TotalArtifacts int           `json:"total_artifacts"`
	TotalSummaries int           `json:"total_summaries"`
	AvgSummaryTime time.Duration `json:"avg_summary_time_ns"`
	AvgItemTime    time.Duration `json:"avg_item_time_ns"`
	Iteration      int           `json:"iteration"`
	TotalRuntime   time.Duration `json:"total_runtime_ns"`
	Errors         []string      `json:"errors"`
}

// Tracker accumulates pipeline statistics. All methods are safe for
// concurrent use; the tracker is the single owner of its state.
type Tracker struct {
	mu             sync.Mutex
	start          time.Time
	queueSize      int
	totalArtifacts int
	totalSummaries int
	totalItems     int
	avgSummary     time.Duration
	avgItem        time.Duration
	iteration      int
	errs           []string
}

// NewTracker starts a tracker; total runtime is measured from this call.
func NewTracker() *Tracker {
	return &Tracker{start: time.Now()}
}

// RecordArtifact counts one persisted artifact.
func (t *Tracker) RecordArtifact() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalArtifacts++
}

// RecordSummary folds one chunk-summarization latency into the running
// average: new = (old*(n-1) + elapsed) / n.
func (t *Tracker) RecordSummary(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalSummaries++
	n := time.Duration(t.totalSummaries)
	t.avgSummary = (t.avgSummary*(n-1) + elapsed) / n
}

// RecordItem folds one whole-artifact processing latency into the running
// average.
func (t *Tracker) RecordItem(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalItems++
	n := time.Duration(t.totalItems)
	t.avgItem = (t.avgItem*(n-1) + elapsed) / n
}

// SetQueueSize updates the queue-size gauge.
func (t *Tracker) SetQueueSize(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queueSize = n
}

// SetIteration records the harvester's current topic-list pass.
func (t *Tracker) SetIteration(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.iteration = i
}

// LogError appends a message to the rolling error log, evicting the oldest
// entry beyond capacity.
func (t *Tracker) LogError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, msg)
	if len(t.errs) > errorLogCapacity {
		t.errs = t.errs[len(t.errs)-errorLogCapacity:]
	}
}

// Snapshot copies the current state. The Errors slice is freshly
// allocated and holds at most the last n entries; n <= 0 returns all.
func (t *Tracker) Snapshot(n int) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	errs := t.errs
	if n > 0 && len(errs) > n {
		errs = errs[len(errs)-n:]
	}
	out := make([]string, len(errs))
	copy(out, errs)
	return Snapshot{
		QueueSize:      t.queueSize,
		TotalArtifacts: t.totalArtifacts,
		TotalSummaries: t.totalSummaries,
		AvgSummaryTime: t.avgSummary,
		AvgItemTime:    t.avgItem,
		Iteration:      t.iteration,
		TotalRuntime:   time.Since(t.start),
		Errors:         out,
	}
}
