// Package queue implements the durable bounded work queue between the
// source adapters and the summarization worker. Order is FIFO; the
// backing JSON file is rewritten after every mutation so the queue
// survives restarts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Queue is a bounded FIFO of artifact references. Enqueue blocks while
// the queue is at capacity, which is the pipeline's backpressure
// mechanism; Dequeue blocks while it is empty. A dequeued reference is
// removed from the persisted queue before processing, so a crash
// mid-summarization loses that item's summaries but never its artifact.
type Queue struct {
	mu    sync.Mutex
	path  string
	items []string

	// tokens carries one token per queued item. Channel capacity is the
	// queue bound: sending blocks when full, receiving blocks when empty,
	// both context-aware.
	tokens chan struct{}
}

// Open loads the queue from path, or starts empty if no file exists. If
// the persisted queue is longer than capacity (a cap lowered between
// runs), the bound grows to fit so no entry is dropped.
func Open(path string, capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be > 0, got %d", capacity)
	}
	q := &Queue{path: path}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read queue %s: %w", path, err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &q.items); err != nil {
			return nil, fmt.Errorf("decode queue %s: %w", path, err)
		}
	}
	if len(q.items) > capacity {
		capacity = len(q.items)
	}
	q.tokens = make(chan struct{}, capacity)
	for range q.items {
		q.tokens <- struct{}{}
	}
	return q, nil
}

// Enqueue appends ref and persists. It blocks while the queue is full
// until the worker frees a slot or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, ref string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.tokens <- struct{}{}:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, ref)
	if err := q.persistLocked(); err != nil {
		q.items = q.items[:len(q.items)-1]
		<-q.tokens
		return err
	}
	return nil
}

// Dequeue removes and returns the oldest reference, persisting the
// shortened queue before returning. It blocks while the queue is empty
// until an entry arrives or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.tokens:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	ref := q.items[0]
	q.items = q.items[1:]
	if err := q.persistLocked(); err != nil {
		// Keep the in-memory pop; the next mutation heals the file.
		// Losing a dequeue to disk beats double-processing the item.
		return ref, err
	}
	return ref, nil
}

// Len returns the number of pending references.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) persistLocked() error {
	items := q.items
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o750); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write queue temp: %w", err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		return fmt.Errorf("rename queue: %w", err)
	}
	return nil
}
