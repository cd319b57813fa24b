// Package genai is the client for the external text-generation service.
// The generate endpoint streams newline-delimited JSON fragments; the
// embed endpoint returns a vector in one of two shapes.
package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Config holds the endpoint and model names, set once at startup.
type Config struct {
	BaseURL    string
	Model      string
	EmbedModel string
	Timeout    time.Duration
}

// Client is a stateless client for the generation service.
type Client struct {
	cfg  Config
	http *http.Client
}

// New constructs a Client. A zero timeout defaults to 120s, which covers
// slow generations without letting a hung stream pin the worker forever.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate sends prompt and accumulates the streamed response fragments
// until the service reports done. Malformed lines are skipped, not
// fatal. An empty accumulated response is returned as an error so the
// caller never persists a blank summary.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.cfg.Model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/api/generate",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("new generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request: unexpected status %d", resp.StatusCode)
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag generateLine
		if err := json.Unmarshal(line, &frag); err != nil {
			continue
		}
		out.WriteString(frag.Response)
		if frag.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read generate stream: %w", err)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("generate request: empty response")
	}
	return out.String(), nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding  []float64   `json:"embedding"`
	Embeddings [][]float64 `json:"embeddings"`
}

// Embed returns the embedding vector for input. The service answers with
// either an "embedding" array or an "embeddings" array-of-arrays whose
// first element is used; any other shape is "no result".
func (c *Client) Embed(ctx context.Context, input string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.EmbedModel, Input: input})
	if err != nil {
		return nil, fmt.Errorf("encode embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/api/embed",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("new embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: unexpected status %d", resp.StatusCode)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	switch {
	case len(decoded.Embedding) > 0:
		return decoded.Embedding, nil
	case len(decoded.Embeddings) > 0:
		return decoded.Embeddings[0], nil
	default:
		return nil, fmt.Errorf("embed request: no embedding in response")
	}
}
