// Package websearch calls the Google Custom Search JSON API.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	apperrors "meeting-intel/internal/common/errors"
	commonhttp "meeting-intel/internal/common/http"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/common/retry"
	"meeting-intel/internal/models"
)

const providerName = "web_search"

// maxPageSize is the largest num value the API accepts.
const maxPageSize = 10

type Config struct {
	BaseURL  string
	APIKey   string
	EngineID string
	Timeout  time.Duration
	Retry    retry.Policy
}

// Client implements searchcache.Provider.
type Client struct {
	config  Config
	http    *commonhttp.Client
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		http:   commonhttp.NewClient(cfg.Timeout),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		logger: logger.Component(log, providerName),
	}
}

type apiResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search returns at most maxResults hits for query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if c.config.APIKey == "" || c.config.EngineID == "" {
		return nil, apperrors.NewSearchProviderFailedError(query, fmt.Errorf("web search is not configured"))
	}
	if maxResults <= 0 || maxResults > maxPageSize {
		maxResults = maxPageSize
	}

	start := time.Now()
	results, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) ([]models.SearchResult, error) {
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, query, maxResults)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return out.([]models.SearchResult), nil
	})
	metrics.ProviderCallDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProviderCalls.WithLabelValues(providerName, "error").Inc()
		return nil, apperrors.NewSearchProviderFailedError(query, err)
	}

	metrics.ProviderCalls.WithLabelValues(providerName, "success").Inc()
	c.logger.Debug("web search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(results),
	})
	return results, nil
}

func (c *Client) fetch(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildSearchURL(query, maxResults), nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, retry.ClassifyStatus(resp.StatusCode, string(body))
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode search response: %w", err))
	}

	results := make([]models.SearchResult, 0, len(payload.Items))
	for _, item := range payload.Items {
		results = append(results, models.SearchResult{
			Title:   strings.TrimSpace(item.Title),
			Snippet: strings.TrimSpace(item.Snippet),
			Link:    item.Link,
		})
		if len(results) == maxResults {
			break
		}
	}
	return results, nil
}

func (c *Client) buildSearchURL(query string, maxResults int) string {
	params := url.Values{}
	params.Set("key", c.config.APIKey)
	params.Set("cx", c.config.EngineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", maxResults))

	base := c.config.BaseURL
	if base == "" {
		base = "https://www.googleapis.com/customsearch/v1"
	}
	return base + "?" + params.Encode()
}
