// Package telemetry renders the live console dashboard from the shared
// stats tracker.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lscott/condenser/internal/stats"
)

const separatorWidth = 60

// Reporter periodically clears the terminal and prints the rolling
// error log followed by the pipeline counters. It only reads snapshots;
// it never mutates the tracker.
type Reporter struct {
	tracker     *stats.Tracker
	out         io.Writer
	interval    time.Duration
	errorsShown int
}

// New builds a Reporter writing to out every interval, showing at most
// errorsShown recent errors.
func New(tracker *stats.Tracker, out io.Writer, interval time.Duration, errorsShown int) *Reporter {
	if interval <= 0 {
		interval = time.Second
	}
	if errorsShown <= 0 {
		errorsShown = 10
	}
	return &Reporter{
		tracker:     tracker,
		out:         out,
		interval:    interval,
		errorsShown: errorsShown,
	}
}

// Run redraws the dashboard until ctx is cancelled, then draws one final
// frame so the last state stays on screen.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.render()
			return
		case <-ticker.C:
			r.render()
		}
	}
}

func (r *Reporter) render() {
	snap := r.tracker.Snapshot(r.errorsShown)

	var b strings.Builder
	b.WriteString("\033c")
	for _, msg := range snap.Errors {
		b.WriteString(msg)
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("-", separatorWidth))
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Queue Size: %d\n", snap.QueueSize)
	fmt.Fprintf(&b, "Total Items Collected: %d\n", snap.TotalArtifacts)
	fmt.Fprintf(&b, "Total Summaries Created: %d\n", snap.TotalSummaries)
	fmt.Fprintf(&b, "Average Time per Summary: %s\n", roundDur(snap.AvgSummaryTime))
	fmt.Fprintf(&b, "Average Time per Queue Entry: %s\n", roundDur(snap.AvgItemTime))
	fmt.Fprintf(&b, "Iteration Number: %d\n", snap.Iteration)
	fmt.Fprintf(&b, "Total Runtime: %s\n", roundDur(snap.TotalRuntime))

	io.WriteString(r.out, b.String())
}

// roundDur trims durations to a readable precision for the dashboard.
func roundDur(d time.Duration) time.Duration {
	return d.Round(10 * time.Millisecond)
}
