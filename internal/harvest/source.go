package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lscott/condenser/internal/pipeline"
)

// Video is the metadata composed into an artifact alongside the
// transcript.
type Video struct {
	ID          string
	Title       string
	Description string
	Tags        []string
	Views       int64
	Likes       int64
}

// Source yields ranked candidates for a query and resolves each
// candidate's metadata and transcript.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Details(ctx context.Context, id string) (Video, error)
	Transcript(ctx context.Context, id string) (string, error)
}

// APIConfig points the HTTP source at the video platform's data and
// caption endpoints.
type APIConfig struct {
	BaseURL           string
	APIKey            string
	TranscriptBaseURL string
	Timeout           time.Duration
}

// APISource implements Source against the platform's v3-style data API
// and its timedtext caption endpoint.
type APISource struct {
	cfg  APIConfig
	http *http.Client
}

// NewAPISource constructs an APISource.
func NewAPISource(cfg APIConfig) *APISource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TranscriptBaseURL == "" {
		cfg.TranscriptBaseURL = cfg.BaseURL
	}
	return &APISource{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiError struct {
	Error struct {
		Code   int    `json:"code"`
		Status string `json:"status"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

// Search returns up to limit video ids ranked by the platform.
func (s *APISource) Search(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(limit))
	params.Set("key", s.cfg.APIKey)

	var decoded searchResponse
	if err := s.getJSON(ctx, s.cfg.BaseURL+"/search?"+params.Encode(), &decoded); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	ids := make([]string, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Tags        []string `json:"tags"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
			LikeCount string `json:"likeCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Details fetches title, description, tags and engagement counters. A
// video the API no longer lists is classified unavailable.
func (s *APISource) Details(ctx context.Context, id string) (Video, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", id)
	params.Set("key", s.cfg.APIKey)

	var decoded videosResponse
	if err := s.getJSON(ctx, s.cfg.BaseURL+"/videos?"+params.Encode(), &decoded); err != nil {
		return Video{}, fmt.Errorf("details %s: %w", id, err)
	}
	if len(decoded.Items) == 0 {
		return Video{}, pipeline.Classifyf(pipeline.ClassUnavailable, "no details found for video %s", id)
	}

	item := decoded.Items[0]
	views, _ := strconv.ParseInt(item.Statistics.ViewCount, 10, 64)
	likes, _ := strconv.ParseInt(item.Statistics.LikeCount, 10, 64)
	return Video{
		ID:          id,
		Title:       item.Snippet.Title,
		Description: item.Snippet.Description,
		Tags:        item.Snippet.Tags,
		Views:       views,
		Likes:       likes,
	}, nil
}

type transcriptResponse struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// Transcript fetches the English caption track. Missing captions are
// classified unavailable so the candidate lands in the failed cache.
func (s *APISource) Transcript(ctx context.Context, id string) (string, error) {
	params := url.Values{}
	params.Set("v", id)
	params.Set("lang", "en")
	params.Set("fmt", "json3")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		strings.TrimRight(s.cfg.TranscriptBaseURL, "/")+"/api/timedtext?"+params.Encode(),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("new transcript request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", pipeline.Classify(pipeline.ClassTransient, fmt.Errorf("fetch transcript %s: %w", id, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", pipeline.Classifyf(pipeline.ClassUnavailable, "captions disabled for video %s", id)
	}
	if resp.StatusCode != http.StatusOK {
		return "", pipeline.Classifyf(pipeline.ClassTransient, "transcript %s: unexpected status %d", id, resp.StatusCode)
	}

	var decoded transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", pipeline.Classify(pipeline.ClassUnavailable, fmt.Errorf("decode transcript %s: %w", id, err))
	}

	var lines []string
	for _, event := range decoded.Events {
		var parts []string
		for _, seg := range event.Segs {
			if seg.UTF8 != "" {
				parts = append(parts, seg.UTF8)
			}
		}
		if line := strings.TrimSpace(strings.Join(parts, "")); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", pipeline.Classifyf(pipeline.ClassUnavailable, "no English transcript available for video %s", id)
	}
	return strings.Join(lines, "\n"), nil
}

// getJSON performs one API GET, mapping platform error envelopes onto
// the failure taxonomy.
func (s *APISource) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return pipeline.Classify(pipeline.ClassTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyAPIStatus(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pipeline.Classify(pipeline.ClassUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classifyAPIStatus reads the error envelope. Exhausted quota is
// terminal for the whole process; anything retryable stays transient.
func classifyAPIStatus(resp *http.Response) error {
	var envelope apiError
	_ = json.NewDecoder(resp.Body).Decode(&envelope)

	reason := ""
	if len(envelope.Error.Errors) > 0 {
		reason = envelope.Error.Errors[0].Reason
	}

	switch {
	case reason == "quotaExceeded" || reason == "dailyLimitExceeded":
		return pipeline.Classifyf(pipeline.ClassQuota, "api quota exhausted (%s)", reason)
	case resp.StatusCode == http.StatusTooManyRequests:
		return pipeline.Classifyf(pipeline.ClassQuota, "api rate limit exhausted (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return pipeline.Classifyf(pipeline.ClassUnavailable, "api access denied (status %d, reason %q)", resp.StatusCode, reason)
	case resp.StatusCode >= 500:
		return pipeline.Classifyf(pipeline.ClassTransient, "api server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return pipeline.Classifyf(pipeline.ClassUnavailable, "api rejected request (status %d, reason %q)", resp.StatusCode, reason)
	default:
		return pipeline.Classifyf(pipeline.ClassTransient, "api unexpected status %d", resp.StatusCode)
	}
}
