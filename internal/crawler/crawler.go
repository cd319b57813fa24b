// Package crawler implements the domain-crawler source adapter: a
// frontier of normalized same-host URLs drained into persisted text
// artifacts feeding the work queue.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
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

// Config holds the settings for one crawl session.
type Config struct {
	SeedURL            string
	MaxPages           int
	ExcludedSegments   []string
	BoilerplatePattern string
	Delay              time.Duration
	UserAgent          string
	RespectRobots      bool
}

// Crawler walks one domain breadth-unordered from a seed URL.
type Crawler struct {
	cfg         Config
	fetcher     Fetcher
	robots      RobotsPolicy
	visited     *cache.Cache
	failed      *cache.Cache
	queue       *queue.Queue
	store       *storage.Store
	tracker     *stats.Tracker
	limiter     *rate.Limiter
	boilerplate *regexp.Regexp
	seed        *url.URL
	logger      *zap.Logger
}

// New constructs a Crawler. The boilerplate pattern, when set, is applied
// across lines and the matching span is removed from saved content.
func New(
	cfg Config,
	fetcher Fetcher,
	robots RobotsPolicy,
	visited *cache.Cache,
	failed *cache.Cache,
	q *queue.Queue,
	store *storage.Store,
	tracker *stats.Tracker,
	logger *zap.Logger,
) (*Crawler, error) {
	seedNorm, err := NormalizeURL(cfg.SeedURL)
	if err != nil {
		return nil, err
	}
	seed, err := url.Parse(seedNorm)
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}
	var boilerplate *regexp.Regexp
	if cfg.BoilerplatePattern != "" {
		boilerplate, err = regexp.Compile("(?s)" + cfg.BoilerplatePattern)
		if err != nil {
			return nil, fmt.Errorf("compile boilerplate pattern: %w", err)
		}
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &Crawler{
		cfg:         cfg,
		fetcher:     fetcher,
		robots:      robots,
		visited:     visited,
		failed:      failed,
		queue:       q,
		store:       store,
		tracker:     tracker,
		limiter:     rate.NewLimiter(limit, 1),
		boilerplate: boilerplate,
		seed:        seed,
		logger:      logger,
	}, nil
}

// Run crawls until the frontier is empty, the visited cache reaches the
// page cap, or ctx ends. Per-page failures never abort the crawl.
func (c *Crawler) Run(ctx context.Context) error {
	frontier := map[string]struct{}{c.seed.String(): {}}

	for len(frontier) > 0 && c.visited.Len() < c.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		current := popAny(frontier)
		if c.visited.Contains(current) || c.failed.Contains(current) {
			continue
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if !c.robots.Allowed(ctx, current) {
			c.logger.Debug("disallowed by robots", zap.String("url", current))
			continue
		}

		c.logError("Scraping: %s", current)
		links, err := c.visit(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.handleFailure(current, err)
			continue
		}

		for _, link := range links {
			if !SameHost(c.seed, link) || HasExcludedSegment(link, c.cfg.ExcludedSegments) {
				continue
			}
			if c.visited.Contains(link) {
				continue
			}
			frontier[link] = struct{}{}
		}

		if err := c.visited.Add(current); err != nil {
			c.logger.Error("persist visited cache", zap.Error(err))
		}
	}

	c.logError("Scraping complete.")
	c.logger.Info("crawl finished",
		zap.Int("pages_visited", c.visited.Len()),
		zap.Int("frontier_left", len(frontier)),
	)
	return nil
}

// visit fetches, parses and persists one page, returning its outgoing
// links. The artifact reference lands on the queue, which blocks here
// while the queue is at capacity.
func (c *Crawler) visit(ctx context.Context, current string) ([]string, error) {
	page, err := c.fetcher.Fetch(ctx, current)
	if err != nil {
		return nil, classifyFetch(page.StatusCode, err)
	}
	if page.StatusCode != http.StatusOK {
		return nil, classifyFetch(page.StatusCode, fmt.Errorf("status %d", page.StatusCode))
	}

	pageURL, err := url.Parse(current)
	if err != nil {
		return nil, pipeline.Classify(pipeline.ClassUnavailable, err)
	}
	parsed, err := ParsePage(pageURL, page.Body)
	if err != nil {
		return nil, pipeline.Classify(pipeline.ClassUnavailable, err)
	}
	if parsed.Text == "" {
		return parsed.Links, nil
	}

	content := parsed.Text
	if c.boilerplate != nil {
		content = c.boilerplate.ReplaceAllString(content, "")
	}

	name := fmt.Sprintf("%d.txt", c.visited.Len())
	path, err := c.store.SaveArtifact(name, fmt.Sprintf("URL: %s\n\n%s", current, content))
	if err != nil {
		return nil, pipeline.Classify(pipeline.ClassTransient, err)
	}
	c.logError("Saved cleaned content from %s to %s", current, path)

	if err := c.queue.Enqueue(ctx, path); err != nil {
		return nil, pipeline.Classify(pipeline.ClassTransient, err)
	}
	c.tracker.RecordArtifact()
	c.tracker.SetQueueSize(c.queue.Len())
	metrics.ObserveArtifact("crawler")
	metrics.SetQueueDepth(c.queue.Len())
	return parsed.Links, nil
}

func (c *Crawler) handleFailure(current string, err error) {
	class := pipeline.ClassOf(err)
	c.logError("Failed to fetch %s: %v", current, err)
	c.logger.Warn("page failed",
		zap.String("url", current),
		zap.String("class", class.String()),
		zap.Error(err),
	)
	metrics.ObserveDiscoveryError(class.String())
	if pipeline.IsPermanent(err) {
		if cerr := c.failed.Add(current); cerr != nil {
			c.logger.Error("persist failed cache", zap.Error(cerr))
		}
	}
}

func (c *Crawler) logError(format string, args ...any) {
	c.tracker.LogError(fmt.Sprintf(format, args...))
}

// classifyFetch maps a fetch outcome onto the failure taxonomy: network
// errors and retryable statuses stay transient, hard client errors are
// permanent.
func classifyFetch(status int, err error) error {
	switch {
	case status == 0:
		return pipeline.Classify(pipeline.ClassTransient, err)
	case status == http.StatusTooManyRequests:
		return pipeline.Classify(pipeline.ClassRateLimited, err)
	case status == http.StatusRequestTimeout || status >= 500:
		return pipeline.Classify(pipeline.ClassTransient, err)
	case status >= 400:
		return pipeline.Classify(pipeline.ClassUnavailable, err)
	default:
		return pipeline.Classify(pipeline.ClassTransient, err)
	}
}

func popAny(set map[string]struct{}) string {
	for member := range set {
		delete(set, member)
		return member
	}
	return ""
}
