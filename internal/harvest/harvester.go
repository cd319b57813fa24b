package harvest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lscott/condenser/internal/cache"
	"github.com/lscott/condenser/internal/metrics"
	"github.com/lscott/condenser/internal/pipeline"
	"github.com/lscott/condenser/internal/queue"
	"github.com/lscott/condenser/internal/stats"
	"github.com/lscott/condenser/internal/storage"
)

// Config controls one harvesting run.
type Config struct {
	Topics     []string
	MaxResults int
	Iterations int
	Delay      time.Duration
}

// Harvester walks the configured topics, turning each unseen video
// into a stored artifact and a queue entry. Exhausted API quota ends
// the run; every other failure only skips one candidate.
type Harvester struct {
	cfg     Config
	source  Source
	visited *cache.Cache
	failed  *cache.Cache
	queue   *queue.Queue
	store   *storage.Store
	tracker *stats.Tracker
	limiter *rate.Limiter
	log     *zap.Logger
}

// New builds a Harvester over an already-opened queue and caches.
func New(cfg Config, source Source, visited, failed *cache.Cache, q *queue.Queue, store *storage.Store, tracker *stats.Tracker, log *zap.Logger) *Harvester {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 25
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 1
	}
	every := cfg.Delay
	if every <= 0 {
		every = time.Second
	}
	return &Harvester{
		cfg:     cfg,
		source:  source,
		visited: visited,
		failed:  failed,
		queue:   q,
		store:   store,
		tracker: tracker,
		limiter: rate.NewLimiter(rate.Every(every), 1),
		log:     log,
	}
}

// Run performs the configured number of passes over the topic list.
// Returns nil on completion or cancellation, and the terminal error
// when the API quota runs out.
func (h *Harvester) Run(ctx context.Context) error {
	for iteration := 1; iteration <= h.cfg.Iterations; iteration++ {
		h.tracker.SetIteration(iteration)
		h.log.Info("starting iteration",
			zap.Int("iteration", iteration),
			zap.Int("topics", len(h.cfg.Topics)),
		)
		for _, topic := range h.cfg.Topics {
			if err := h.harvestTopic(ctx, topic); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// harvestTopic searches one topic and processes its candidates in
// shuffled order. Only terminal and cancellation errors propagate.
func (h *Harvester) harvestTopic(ctx context.Context, topic string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}

	ids, err := h.source.Search(ctx, topic, h.cfg.MaxResults)
	if err != nil {
		if pipeline.IsTerminal(err) {
			return err
		}
		h.recordFailure(topic, "", err)
		return nil
	}
	h.log.Info("searched topic", zap.String("topic", topic), zap.Int("results", len(ids)))

	// Shuffling spreads repeat iterations across the result set
	// instead of revisiting the same head every pass.
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	for _, id := range ids {
		if h.visited.Contains(id) || h.failed.Contains(id) {
			continue
		}
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := h.harvestVideo(ctx, id); err != nil {
			if pipeline.IsTerminal(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			h.recordFailure(topic, id, err)
		}
	}
	return nil
}

// harvestVideo resolves one candidate end to end: details, transcript,
// artifact file, queue entry.
func (h *Harvester) harvestVideo(ctx context.Context, id string) error {
	video, err := h.source.Details(ctx, id)
	if err != nil {
		return err
	}

	transcript, err := h.source.Transcript(ctx, id)
	if err != nil {
		return err
	}

	path, err := h.store.SaveArtifact(id+".txt", composeArtifact(video, transcript))
	if err != nil {
		return fmt.Errorf("save artifact for %s: %w", id, err)
	}
	if err := h.queue.Enqueue(ctx, path); err != nil {
		return err
	}
	if err := h.visited.Add(id); err != nil {
		return fmt.Errorf("record visited %s: %w", id, err)
	}

	h.tracker.RecordArtifact()
	h.tracker.SetQueueSize(h.queue.Len())
	metrics.ObserveArtifact("harvest")
	metrics.SetQueueDepth(h.queue.Len())
	h.log.Info("saved transcript artifact",
		zap.String("video_id", id),
		zap.String("title", video.Title),
		zap.String("path", path),
	)
	return nil
}

// recordFailure logs one skipped candidate and caches permanent ones
// so later iterations never retry them.
func (h *Harvester) recordFailure(topic, id string, err error) {
	metrics.ObserveDiscoveryError(pipeline.ClassOf(err).String())
	if id != "" && pipeline.IsPermanent(err) {
		if cacheErr := h.failed.Add(id); cacheErr != nil {
			h.log.Error("recording failed video", zap.String("video_id", id), zap.Error(cacheErr))
		}
	}
	h.tracker.LogError(fmt.Sprintf("Harvesting %q: %v", topic, err))
	h.log.Warn("skipping candidate",
		zap.String("topic", topic),
		zap.String("video_id", id),
		zap.String("class", pipeline.ClassOf(err).String()),
		zap.Error(err),
	)
}

// composeArtifact renders the metadata header followed by the
// transcript body.
func composeArtifact(video Video, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", video.Title)
	fmt.Fprintf(&b, "Description: %s\n", video.Description)
	fmt.Fprintf(&b, "Tags: %s\n", strings.Join(video.Tags, ", "))
	fmt.Fprintf(&b, "Views: %d\n", video.Views)
	fmt.Fprintf(&b, "Likes: %d\n", video.Likes)
	fmt.Fprintf(&b, "Transcript:\n%s\n", transcript)
	return b.String()
}
