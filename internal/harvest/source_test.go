package harvest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lscott/condenser/internal/pipeline"
)

func newTestSource(t *testing.T, handler http.Handler) *APISource {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAPISource(APIConfig{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		TranscriptBaseURL: server.URL,
	})
}

func TestAPISource_Search(t *testing.T) {
	var gotQuery, gotKey string
	source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(`{"items":[
			{"id":{"videoId":"abc"}},
			{"id":{"videoId":"def"}},
			{"id":{}}
		]}`))
	}))

	ids, err := source.Search(context.Background(), "urban beekeeping", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, ids)
	assert.Equal(t, "urban beekeeping", gotQuery)
	assert.Equal(t, "test-key", gotKey)
}

func TestAPISource_SearchQuotaExceededIsTerminal(t *testing.T) {
	source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"errors":[{"reason":"quotaExceeded"}]}}`))
	}))

	_, err := source.Search(context.Background(), "anything", 10)
	require.Error(t, err)
	assert.True(t, pipeline.IsTerminal(err))
}

func TestAPISource_Details(t *testing.T) {
	source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/videos", r.URL.Path)
		require.Equal(t, "abc", r.URL.Query().Get("id"))
		w.Write([]byte(`{"items":[{
			"snippet":{"title":"A Title","description":"A description.","tags":["one","two"]},
			"statistics":{"viewCount":"4321","likeCount":"99"}
		}]}`))
	}))

	video, err := source.Details(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, Video{
		ID:          "abc",
		Title:       "A Title",
		Description: "A description.",
		Tags:        []string{"one", "two"},
		Views:       4321,
		Likes:       99,
	}, video)
}

func TestAPISource_DetailsMissingVideoIsUnavailable(t *testing.T) {
	source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))

	_, err := source.Details(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, pipeline.IsPermanent(err))
}

func TestAPISource_Transcript(t *testing.T) {
	source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/timedtext", r.URL.Path)
		require.Equal(t, "abc", r.URL.Query().Get("v"))
		w.Write([]byte(`{"events":[
			{"segs":[{"utf8":"hello "},{"utf8":"world"}]},
			{"segs":[]},
			{"segs":[{"utf8":"second line"}]}
		]}`))
	}))

	text, err := source.Transcript(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", text)
}

func TestAPISource_TranscriptMissingCaptions(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		_, err := source.Transcript(context.Background(), "abc")
		require.Error(t, err)
		assert.True(t, pipeline.IsPermanent(err))
	})

	t.Run("empty track", func(t *testing.T) {
		source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"events":[]}`))
		}))
		_, err := source.Transcript(context.Background(), "abc")
		require.Error(t, err)
		assert.True(t, pipeline.IsPermanent(err))
	})
}

func TestAPISource_ServerErrorIsTransient(t *testing.T) {
	source := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := source.Search(context.Background(), "anything", 10)
	require.Error(t, err)
	assert.Equal(t, pipeline.ClassTransient, pipeline.ClassOf(err))
	assert.False(t, pipeline.IsTerminal(err))
}
