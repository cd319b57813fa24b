package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTracker_RunningAverage(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	for _, d := range []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second} {
		tr.RecordSummary(d)
	}

	snap := tr.Snapshot(0)
	require.Equal(t, 4*time.Second, snap.AvgSummaryTime)
	require.Equal(t, 3, snap.TotalSummaries)
}

func TestTracker_ItemAverage(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.RecordItem(10 * time.Second)
	tr.RecordItem(20 * time.Second)

	require.Equal(t, 15*time.Second, tr.Snapshot(0).AvgItemTime)
}

func TestTracker_CountersAndGauges(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.RecordArtifact()
	tr.RecordArtifact()
	tr.SetQueueSize(7)
	tr.SetIteration(3)

	snap := tr.Snapshot(0)
	require.Equal(t, 2, snap.TotalArtifacts)
	require.Equal(t, 7, snap.QueueSize)
	require.Equal(t, 3, snap.Iteration)
	require.Positive(t, snap.TotalRuntime)
}

func TestTracker_ErrorLogRollsOver(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	for i := 0; i < errorLogCapacity+10; i++ {
		tr.LogError(fmt.Sprintf("error %d", i))
	}

	all := tr.Snapshot(0).Errors
	require.Len(t, all, errorLogCapacity)
	require.Equal(t, "error 10", all[0])

	last := tr.Snapshot(5).Errors
	require.Len(t, last, 5)
	require.Equal(t, fmt.Sprintf("error %d", errorLogCapacity+9), last[4])
}

func TestTracker_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.LogError("first")
	snap := tr.Snapshot(0)
	snap.Errors[0] = "mutated"

	require.Equal(t, "first", tr.Snapshot(0).Errors[0])
}
