// Package main wires together the content ingestion pipeline binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lscott/condenser/internal/api"
	"github.com/lscott/condenser/internal/cache"
	"github.com/lscott/condenser/internal/config"
	"github.com/lscott/condenser/internal/crawler"
	"github.com/lscott/condenser/internal/genai"
	"github.com/lscott/condenser/internal/harvest"
	"github.com/lscott/condenser/internal/logging"
	"github.com/lscott/condenser/internal/pipeline"
	"github.com/lscott/condenser/internal/queue"
	"github.com/lscott/condenser/internal/stats"
	"github.com/lscott/condenser/internal/storage"
	"github.com/lscott/condenser/internal/telemetry"
	"github.com/lscott/condenser/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.With(zap.String("run_id", uuid.NewString()))
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	visited, err := cache.Load(cfg.Cache.VisitedPath)
	if err != nil {
		return fmt.Errorf("load visited cache: %w", err)
	}
	failed, err := cache.Load(cfg.Cache.FailedPath)
	if err != nil {
		return fmt.Errorf("load failed cache: %w", err)
	}
	q, err := queue.Open(cfg.Queue.Path, cfg.Queue.Capacity)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	store, err := storage.New(cfg.Storage.ArtifactDir, cfg.Storage.SummaryDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	tracker := stats.NewTracker()
	tracker.SetQueueSize(q.Len())

	generator := genai.New(genai.Config{
		BaseURL:    cfg.GenAI.BaseURL,
		Model:      cfg.GenAI.Model,
		EmbedModel: cfg.GenAI.EmbedModel,
		Timeout:    time.Duration(cfg.GenAI.TimeoutSeconds) * time.Second,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(tracker, cfg.Telemetry.ErrorsShown, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	reporter := telemetry.New(tracker, os.Stdout, cfg.ReportInterval(), cfg.Telemetry.ErrorsShown)
	go reporter.Run(ctx)

	// The worker gets its own cancellation so the producer can finish,
	// let the queue drain, and only then stop consumption.
	workCtx, stopWork := context.WithCancel(ctx)
	defer stopWork()
	workerDone := make(chan error, 1)
	go func() {
		w := worker.New(worker.Config{
			ContextWindow:  cfg.Summary.ContextWindow,
			Overlap:        cfg.Summary.Overlap,
			PromptTemplate: cfg.Summary.PromptTemplate,
		}, q, store, generator, tracker, logger.Named("worker"))
		workerDone <- w.Run(workCtx)
	}()

	produceErr := produce(ctx, cfg, visited, failed, q, store, tracker, logger)
	if produceErr != nil && pipeline.IsTerminal(produceErr) {
		logger.Warn("source exhausted its quota, draining queue before exit", zap.Error(produceErr))
		produceErr = nil
	}

	drainQueue(ctx, q, logger)
	stopWork()
	if err := <-workerDone; err != nil {
		logger.Error("worker failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown failed", zap.Error(err))
	}

	return produceErr
}

// produce runs the configured source adapter until it finishes or ctx
// is cancelled.
func produce(
	ctx context.Context,
	cfg config.Config,
	visited, failed *cache.Cache,
	q *queue.Queue,
	store *storage.Store,
	tracker *stats.Tracker,
	logger *zap.Logger,
) error {
	switch cfg.Mode {
	case config.ModeCrawl:
		c, err := crawler.New(
			crawler.Config{
				SeedURL:            cfg.Crawler.SeedURL,
				MaxPages:           cfg.Crawler.MaxPages,
				ExcludedSegments:   cfg.Crawler.ExcludedSegments,
				BoilerplatePattern: cfg.Crawler.BoilerplatePattern,
				Delay:              cfg.CrawlDelay(),
				UserAgent:          cfg.Crawler.UserAgent,
				RespectRobots:      cfg.Crawler.RespectRobots,
			},
			crawler.NewCollyFetcher(cfg.Crawler.UserAgent, time.Duration(cfg.Crawler.TimeoutSeconds)*time.Second),
			crawler.NewRobotsEnforcer(cfg.Crawler.RespectRobots, cfg.Crawler.UserAgent, logger.Named("robots")),
			visited, failed, q, store, tracker,
			logger.Named("crawler"),
		)
		if err != nil {
			return fmt.Errorf("build crawler: %w", err)
		}
		return c.Run(ctx)
	case config.ModeHarvest:
		topics, err := loadTopics(cfg.Harvest)
		if err != nil {
			return err
		}
		source := harvest.NewAPISource(harvest.APIConfig{
			BaseURL:           cfg.Harvest.APIBaseURL,
			APIKey:            cfg.Harvest.APIKey,
			TranscriptBaseURL: cfg.Harvest.TranscriptBaseURL,
			Timeout:           time.Duration(cfg.Harvest.TimeoutSeconds) * time.Second,
		})
		h := harvest.New(harvest.Config{
			Topics:     topics,
			MaxResults: cfg.Harvest.MaxResults,
			Iterations: cfg.Harvest.Iterations,
			Delay:      cfg.HarvestDelay(),
		}, source, visited, failed, q, store, tracker, logger.Named("harvest"))
		return h.Run(ctx)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// loadTopics merges the inline topic list with the optional topics
// file, one topic per line.
func loadTopics(cfg config.HarvestConfig) ([]string, error) {
	topics := append([]string(nil), cfg.Topics...)
	if cfg.TopicsFile != "" {
		data, err := os.ReadFile(cfg.TopicsFile)
		if err != nil {
			return nil, fmt.Errorf("read topics file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				topics = append(topics, line)
			}
		}
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics configured")
	}
	return topics, nil
}

// drainQueue waits for the worker to catch up with everything the
// source produced, or for cancellation.
func drainQueue(ctx context.Context, q *queue.Queue, logger *zap.Logger) {
	if q.Len() == 0 {
		return
	}
	logger.Info("waiting for queue to drain", zap.Int("remaining", q.Len()))
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if q.Len() == 0 {
				return
			}
		}
	}
}
