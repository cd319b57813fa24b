package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lscott/condenser/internal/queue"
	"github.com/lscott/condenser/internal/stats"
	"github.com/lscott/condenser/internal/storage"
)

type fakeGenerator struct {
	failOn  map[string]bool
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	for needle := range g.failOn {
		if strings.Contains(prompt, needle) {
			return "", fmt.Errorf("model unavailable")
		}
	}
	return "summary of: " + prompt, nil
}

type workerHarness struct {
	worker     *Worker
	queue      *queue.Queue
	store      *storage.Store
	tracker    *stats.Tracker
	gen        *fakeGenerator
	summaryDir string
}

func newHarness(t *testing.T, cfg Config, gen *fakeGenerator) *workerHarness {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.Open(filepath.Join(dir, "queue.json"), 100)
	require.NoError(t, err)
	summaryDir := filepath.Join(dir, "summaries")
	store, err := storage.New(filepath.Join(dir, "text_data"), summaryDir)
	require.NoError(t, err)

	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = "Summarize: %s"
	}
	tracker := stats.NewTracker()
	return &workerHarness{
		worker:     New(cfg, q, store, gen, tracker, zap.NewNop()),
		queue:      q,
		store:      store,
		tracker:    tracker,
		gen:        gen,
		summaryDir: summaryDir,
	}
}

func (h *workerHarness) summaryNames(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.summaryDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestProcess_WritesOneSummaryPerChunk(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{ContextWindow: 10, Overlap: 2}, gen)

	// 26 characters with step 8 yields four chunks.
	path, err := h.store.SaveArtifact("item.txt", "abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, err)

	h.worker.process(context.Background(), path)

	assert.Equal(t, []string{
		"item_1_4.txt",
		"item_2_4.txt",
		"item_3_4.txt",
		"item_4_4.txt",
	}, h.summaryNames(t))

	first, err := os.ReadFile(filepath.Join(h.summaryDir, "item_1_4.txt"))
	require.NoError(t, err)
	assert.Equal(t, "summary of: Summarize: abcdefghij", string(first))

	snap := h.tracker.Snapshot(0)
	assert.Equal(t, 4, snap.TotalSummaries)
}

func TestProcess_FailedChunkIsSkippedWithoutPartialFile(t *testing.T) {
	gen := &fakeGenerator{failOn: map[string]bool{"ijklmnop": true}}
	h := newHarness(t, Config{ContextWindow: 10, Overlap: 2}, gen)

	path, err := h.store.SaveArtifact("item.txt", "abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, err)

	h.worker.process(context.Background(), path)

	names := h.summaryNames(t)
	assert.NotContains(t, names, "item_2_4.txt")
	assert.Contains(t, names, "item_1_4.txt")
	assert.Contains(t, names, "item_3_4.txt")
	assert.Contains(t, names, "item_4_4.txt")

	snap := h.tracker.Snapshot(0)
	assert.Equal(t, 3, snap.TotalSummaries)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "chunk 2/4")
}

func TestProcess_MissingArtifactIsAbandoned(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{ContextWindow: 10, Overlap: 2}, gen)

	h.worker.process(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))

	assert.Empty(t, h.summaryNames(t))
	assert.Empty(t, gen.prompts)
	snap := h.tracker.Snapshot(0)
	require.Len(t, snap.Errors, 1)
	assert.Contains(t, snap.Errors[0], "Reading")
}

func TestRun_ConsumesQueueUntilCancelled(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, Config{ContextWindow: 100, Overlap: 10}, gen)

	for i := 0; i < 3; i++ {
		path, err := h.store.SaveArtifact(fmt.Sprintf("a%d.txt", i), "short text")
		require.NoError(t, err)
		require.NoError(t, h.queue.Enqueue(context.Background(), path))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(h.summaryDir)
		return err == nil && h.queue.Len() == 0 && len(entries) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.Equal(t, 0, h.tracker.Snapshot(0).QueueSize)
}
