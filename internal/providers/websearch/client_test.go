package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/retry"
)

var testPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newTestClient(t *testing.T, serverURL string) *Client {
	return NewClient(Config{
		BaseURL:  serverURL,
		APIKey:   "test-key",
		EngineID: "engine",
		Timeout:  2 * time.Second,
		Retry:    testPolicy,
	}, logger.NewTestLogger(t))
}

func TestSearch_ParsesItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "engine", r.URL.Query().Get("cx"))
		assert.Equal(t, "acme news", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("num"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []map[string]string{
				{"title": " Acme raises Series B ", "link": "https://news.test/a", "snippet": "Funding"},
				{"title": "Acme hires CTO", "link": "https://news.test/b", "snippet": "Hiring"},
				{"title": "Extra", "link": "https://news.test/c", "snippet": "Extra"},
			},
		})
	}))
	defer server.Close()

	results, err := newTestClient(t, server.URL).Search(context.Background(), "acme news", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Acme raises Series B", results[0].Title)
	assert.Equal(t, "https://news.test/a", results[0].Link)
}

func TestSearch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"title":"ok","link":"https://x.test","snippet":"s"}]}`))
	}))
	defer server.Close()

	results, err := newTestClient(t, server.URL).Search(context.Background(), "q", 5)

	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSearch_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Search(context.Background(), "q", 5)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSearchProviderFailed))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearch_EmptyItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	results, err := newTestClient(t, server.URL).Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_NotConfigured(t *testing.T) {
	c := NewClient(Config{}, logger.NewNoOpLogger())
	_, err := c.Search(context.Background(), "q", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSearchProviderFailed))
}

func TestSearch_CapsPageSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("num"))
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Search(context.Background(), "q", 50)
	require.NoError(t, err)
}
