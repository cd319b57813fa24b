// Package storage persists artifacts and summaries on the local
// filesystem, one text file per item.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes artifacts under one directory and summaries under
// another. Files are written once and never mutated.
type Store struct {
	artifactDir string
	summaryDir  string
}

// New creates both directories if needed and verifies they are writable.
func New(artifactDir, summaryDir string) (*Store, error) {
	for _, dir := range []string{artifactDir, summaryDir} {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("storage directory is required")
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
		}
	}
	return &Store{artifactDir: artifactDir, summaryDir: summaryDir}, nil
}

// SaveArtifact writes one discovered item's text and returns its path,
// which is what the queue carries.
func (s *Store) SaveArtifact(name, content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("artifact %s: empty content", name)
	}
	path := filepath.Join(s.artifactDir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}

// ReadArtifact reads a previously saved artifact by the path the queue
// handed out.
func (s *Store) ReadArtifact(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", path, err)
	}
	return string(data), nil
}

// SaveSummary writes one chunk's summary. name encodes the artifact id,
// chunk index and chunk count so summaries can be reassembled.
func (s *Store) SaveSummary(name, content string) (string, error) {
	path := filepath.Join(s.summaryDir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write summary %s: %w", path, err)
	}
	return path, nil
}

// SummaryName builds the canonical summary filename for a chunk of the
// artifact at artifactPath: <artifact-id>_<index>_<count>.txt.
func SummaryName(artifactPath string, index, count int) string {
	base := filepath.Base(artifactPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%d_%d.txt", base, index, count)
}
