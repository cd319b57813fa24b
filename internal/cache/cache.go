// Package cache implements the persisted identity sets consulted before
// any fetch: one for visited/succeeded identities, one for permanent
// failures. Both are JSON arrays on disk, rewritten after every insert.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Cache is a persisted set of opaque identity strings. Membership is
// permanent; there is no eviction.
type Cache struct {
	mu   sync.Mutex
	path string
	set  map[string]struct{}
}

// Load reads the set from path, or starts empty if the file does not
// exist yet.
func Load(path string) (*Cache, error) {
	c := &Cache{path: path, set: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read cache %s: %w", path, err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	for _, id := range ids {
		c.set[id] = struct{}{}
	}
	return c, nil
}

// Contains reports membership.
func (c *Cache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.set[id]
	return ok
}

// Add inserts id and persists the whole set. Inserting an existing id is
// a no-op and touches neither memory nor disk.
func (c *Cache) Add(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.set[id]; ok {
		return nil
	}
	c.set[id] = struct{}{}
	if err := c.persistLocked(); err != nil {
		delete(c.set, id)
		return err
	}
	return nil
}

// Len returns the number of identities in the set.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.set)
}

// persistLocked rewrites the backing file via a temp file and rename so a
// crash mid-write never truncates the set. Caller holds the mutex.
func (c *Cache) persistLocked() error {
	ids := make([]string, 0, len(c.set))
	for id := range c.set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cache temp: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename cache: %w", err)
	}
	return nil
}
