package harvest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lscott/condenser/internal/cache"
	"github.com/lscott/condenser/internal/pipeline"
	"github.com/lscott/condenser/internal/queue"
	"github.com/lscott/condenser/internal/stats"
	"github.com/lscott/condenser/internal/storage"
)

type fakeSource struct {
	results     map[string][]string
	videos      map[string]Video
	transcripts map[string]string

	searchErr      error
	detailsErr     map[string]error
	transcriptErr  map[string]error
	detailCalls    []string
	searchQueries  []string
	transcriptGets []string
}

func (f *fakeSource) Search(_ context.Context, query string, _ int) ([]string, error) {
	f.searchQueries = append(f.searchQueries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]string(nil), f.results[query]...), nil
}

func (f *fakeSource) Details(_ context.Context, id string) (Video, error) {
	f.detailCalls = append(f.detailCalls, id)
	if err := f.detailsErr[id]; err != nil {
		return Video{}, err
	}
	return f.videos[id], nil
}

func (f *fakeSource) Transcript(_ context.Context, id string) (string, error) {
	f.transcriptGets = append(f.transcriptGets, id)
	if err := f.transcriptErr[id]; err != nil {
		return "", err
	}
	return f.transcripts[id], nil
}

type harvestHarness struct {
	harvester *Harvester
	source    *fakeSource
	visited   *cache.Cache
	failed    *cache.Cache
	queue     *queue.Queue
	dataDir   string
}

func newHarness(t *testing.T, cfg Config, source *fakeSource) *harvestHarness {
	t.Helper()
	dir := t.TempDir()

	visited, err := cache.Load(filepath.Join(dir, "visited.json"))
	require.NoError(t, err)
	failed, err := cache.Load(filepath.Join(dir, "failed.json"))
	require.NoError(t, err)
	q, err := queue.Open(filepath.Join(dir, "queue.json"), 100)
	require.NoError(t, err)
	store, err := storage.New(filepath.Join(dir, "text_data"), filepath.Join(dir, "summaries"))
	require.NoError(t, err)

	cfg.Delay = time.Millisecond
	h := New(cfg, source, visited, failed, q, store, stats.NewTracker(), zap.NewNop())
	return &harvestHarness{
		harvester: h,
		source:    source,
		visited:   visited,
		failed:    failed,
		queue:     q,
		dataDir:   dir,
	}
}

func TestRun_SavesArtifactAndEnqueues(t *testing.T) {
	source := &fakeSource{
		results: map[string][]string{"gardening": {"vid1"}},
		videos: map[string]Video{
			"vid1": {
				ID:          "vid1",
				Title:       "Raised Beds",
				Description: "Building raised beds.",
				Tags:        []string{"garden", "diy"},
				Views:       1200,
				Likes:       80,
			},
		},
		transcripts: map[string]string{"vid1": "welcome to the garden\nlet's build a bed"},
	}
	h := newHarness(t, Config{Topics: []string{"gardening"}, MaxResults: 5}, source)

	require.NoError(t, h.harvester.Run(context.Background()))

	path, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(content)
	assert.True(t, strings.HasPrefix(text, "Title: Raised Beds\n"))
	assert.Contains(t, text, "Description: Building raised beds.\n")
	assert.Contains(t, text, "Tags: garden, diy\n")
	assert.Contains(t, text, "Views: 1200\n")
	assert.Contains(t, text, "Likes: 80\n")
	assert.Contains(t, text, "Transcript:\nwelcome to the garden\nlet's build a bed\n")
	assert.Equal(t, "vid1.txt", filepath.Base(path))
	assert.True(t, h.visited.Contains("vid1"))
}

func TestRun_SkipsVisitedAndFailed(t *testing.T) {
	source := &fakeSource{
		results:     map[string][]string{"cooking": {"seen", "broken", "fresh"}},
		videos:      map[string]Video{"fresh": {ID: "fresh", Title: "Fresh"}},
		transcripts: map[string]string{"fresh": "hello"},
	}
	h := newHarness(t, Config{Topics: []string{"cooking"}, MaxResults: 5}, source)
	require.NoError(t, h.visited.Add("seen"))
	require.NoError(t, h.failed.Add("broken"))

	require.NoError(t, h.harvester.Run(context.Background()))

	assert.Equal(t, []string{"fresh"}, source.detailCalls)
	assert.Equal(t, 1, h.queue.Len())
}

func TestRun_MissingTranscriptLandsInFailedCache(t *testing.T) {
	source := &fakeSource{
		results: map[string][]string{"news": {"silent"}},
		videos:  map[string]Video{"silent": {ID: "silent", Title: "Silent"}},
		transcriptErr: map[string]error{
			"silent": pipeline.Classifyf(pipeline.ClassUnavailable, "captions disabled for video silent"),
		},
	}
	h := newHarness(t, Config{Topics: []string{"news"}, MaxResults: 5}, source)

	require.NoError(t, h.harvester.Run(context.Background()))

	assert.True(t, h.failed.Contains("silent"))
	assert.False(t, h.visited.Contains("silent"))
	assert.Equal(t, 0, h.queue.Len())
}

func TestRun_TransientFailureIsNotCached(t *testing.T) {
	source := &fakeSource{
		results: map[string][]string{"news": {"flaky"}},
		detailsErr: map[string]error{
			"flaky": pipeline.Classifyf(pipeline.ClassTransient, "api server error (status 503)"),
		},
	}
	h := newHarness(t, Config{Topics: []string{"news"}, MaxResults: 5}, source)

	require.NoError(t, h.harvester.Run(context.Background()))

	assert.False(t, h.failed.Contains("flaky"))
	assert.False(t, h.visited.Contains("flaky"))
}

func TestRun_QuotaExhaustionStopsTheRun(t *testing.T) {
	source := &fakeSource{
		searchErr: pipeline.Classifyf(pipeline.ClassQuota, "api quota exhausted (quotaExceeded)"),
	}
	h := newHarness(t, Config{Topics: []string{"first", "second"}, MaxResults: 5, Iterations: 3}, source)

	err := h.harvester.Run(context.Background())
	require.Error(t, err)
	assert.True(t, pipeline.IsTerminal(err))
	assert.Equal(t, []string{"first"}, source.searchQueries)
}

func TestRun_IteratesOverTopics(t *testing.T) {
	source := &fakeSource{results: map[string][]string{}}
	h := newHarness(t, Config{Topics: []string{"a", "b"}, MaxResults: 5, Iterations: 2}, source)

	require.NoError(t, h.harvester.Run(context.Background()))

	assert.Equal(t, []string{"a", "b", "a", "b"}, source.searchQueries)
}

func TestComposeArtifact_Layout(t *testing.T) {
	got := composeArtifact(Video{
		Title:       "T",
		Description: "D",
		Tags:        []string{"x", "y"},
		Views:       3,
		Likes:       1,
	}, "line one\nline two")

	want := fmt.Sprintf("Title: %s\nDescription: %s\nTags: %s\nViews: %d\nLikes: %d\nTranscript:\n%s\n",
		"T", "D", "x, y", 3, 1, "line one\nline two")
	assert.Equal(t, want, got)
}
