// Package worker consumes queued artifacts and turns each one into
// per-chunk summary files via the text-generation service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lscott/condenser/internal/chunk"
	"github.com/lscott/condenser/internal/metrics"
	"github.com/lscott/condenser/internal/queue"
	"github.com/lscott/condenser/internal/stats"
	"github.com/lscott/condenser/internal/storage"
)

// Generator produces one summary for one prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config sets the chunking geometry and the prompt shape.
type Config struct {
	ContextWindow  int
	Overlap        int
	PromptTemplate string
}

// Worker is the single queue consumer. An artifact is removed from the
// queue before processing; a chunk that fails to summarize is skipped
// rather than retried, so a crash mid-artifact loses at most that one
// entry and never double-processes it.
type Worker struct {
	cfg     Config
	queue   *queue.Queue
	store   *storage.Store
	gen     Generator
	tracker *stats.Tracker
	log     *zap.Logger
}

// New builds a Worker.
func New(cfg Config, q *queue.Queue, store *storage.Store, gen Generator, tracker *stats.Tracker, log *zap.Logger) *Worker {
	return &Worker{
		cfg:     cfg,
		queue:   q,
		store:   store,
		gen:     gen,
		tracker: tracker,
		log:     log,
	}
}

// Run consumes the queue until ctx is cancelled. Dequeue blocks while
// the queue is empty, so the worker idles without polling.
func (w *Worker) Run(ctx context.Context) error {
	for {
		ref, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			if ref == "" {
				return fmt.Errorf("dequeue: %w", err)
			}
			// Dequeue returns the reference even when persisting the
			// shortened queue fails; the item is still ours to process.
			w.log.Warn("queue persist failed after dequeue", zap.Error(err))
		}
		w.process(ctx, ref)
		w.tracker.SetQueueSize(w.queue.Len())
		metrics.SetQueueDepth(w.queue.Len())
		if ctx.Err() != nil {
			return nil
		}
	}
}

// process summarizes one artifact chunk by chunk.
func (w *Worker) process(ctx context.Context, ref string) {
	started := time.Now()

	content, err := w.store.ReadArtifact(ref)
	if err != nil {
		w.tracker.LogError(fmt.Sprintf("Reading %s: %v", ref, err))
		w.log.Error("reading artifact", zap.String("artifact", ref), zap.Error(err))
		return
	}

	chunks := chunk.Split(content, w.cfg.ContextWindow, w.cfg.Overlap)
	w.log.Info("summarizing artifact",
		zap.String("artifact", ref),
		zap.Int("chunks", len(chunks)),
	)

	for i, piece := range chunks {
		if ctx.Err() != nil {
			return
		}
		chunkStart := time.Now()
		summary, err := w.gen.Generate(ctx, fmt.Sprintf(w.cfg.PromptTemplate, piece))
		if err != nil {
			w.tracker.LogError(fmt.Sprintf("Summarizing %s chunk %d/%d: %v", ref, i+1, len(chunks), err))
			w.log.Warn("chunk summarization failed",
				zap.String("artifact", ref),
				zap.Int("chunk", i+1),
				zap.Error(err),
			)
			metrics.ObserveChunkFailure()
			continue
		}
		name := storage.SummaryName(ref, i+1, len(chunks))
		if _, err := w.store.SaveSummary(name, summary); err != nil {
			w.tracker.LogError(fmt.Sprintf("Saving summary %s: %v", name, err))
			w.log.Error("saving summary", zap.String("summary", name), zap.Error(err))
			continue
		}
		elapsed := time.Since(chunkStart)
		w.tracker.RecordSummary(elapsed)
		metrics.ObserveSummary(elapsed)
	}

	w.tracker.RecordItem(time.Since(started))
}
