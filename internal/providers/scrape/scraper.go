// Package scrape fetches a web page and reduces it to readable text.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"

	apperrors "meeting-intel/internal/common/errors"
	commonhttp "meeting-intel/internal/common/http"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/common/retry"
)

const providerName = "scrape"

const DefaultMaxContentChars = 8000

// maxBodyBytes bounds what is read from the wire before parsing.
const maxBodyBytes = 5 << 20

// noise is removed before text extraction.
const noise = "script, style, noscript, nav, footer, header, iframe, svg, form"

type Config struct {
	UserAgent       string
	MaxContentChars int
	Timeout         time.Duration
	Retry           retry.Policy
}

// Page is the readable part of a fetched document.
type Page struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

type Scraper struct {
	config  Config
	http    *commonhttp.Client
	breaker *gobreaker.CircuitBreaker
	logger  logger.Logger
}

func New(cfg Config, log logger.Logger) *Scraper {
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = DefaultMaxContentChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Scraper{
		config: cfg,
		http:   commonhttp.NewClientWithUserAgent(cfg.Timeout, cfg.UserAgent),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        providerName,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 10
			},
		}),
		logger: logger.Component(log, providerName),
	}
}

// FetchText downloads rawURL and returns its title and visible text.
func (s *Scraper) FetchText(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, apperrors.NewScrapeFailedError(rawURL, fmt.Errorf("only absolute http(s) URLs can be scraped"))
	}

	start := time.Now()
	page, err := retry.Do(ctx, s.config.Retry, func(ctx context.Context) (*Page, error) {
		out, err := s.breaker.Execute(func() (interface{}, error) {
			return s.fetch(ctx, parsed.String())
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return out.(*Page), nil
	})
	metrics.ProviderCallDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProviderCalls.WithLabelValues(providerName, "error").Inc()
		return nil, apperrors.NewScrapeFailedError(rawURL, err)
	}
	metrics.ProviderCalls.WithLabelValues(providerName, "success").Inc()
	s.logger.Debug("page scraped", map[string]interface{}{
		"url":       page.URL,
		"chars":     len(page.Content),
		"truncated": page.Truncated,
	})
	return page, nil
}

func (s *Scraper) fetch(ctx context.Context, target string) (*Page, error) {
	req, err := commonhttp.NewRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, retry.ClassifyStatus(resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse html: %w", err))
	}

	page := ExtractPage(doc, s.config.MaxContentChars)
	page.URL = target
	return page, nil
}

// ExtractPage reduces doc to its title and whitespace-collapsed body text,
// capped at maxChars runes.
func ExtractPage(doc *goquery.Document, maxChars int) *Page {
	title := collapseWhitespace(doc.Find("title").First().Text())
	if title == "" {
		title = collapseWhitespace(doc.Find("h1").First().Text())
	}

	doc.Find(noise).Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	content := collapseWhitespace(strings.Join(textNodes(root, nil), " "))
	truncated := false
	if maxChars > 0 {
		runes := []rune(content)
		if len(runes) > maxChars {
			content = string(runes[:maxChars])
			truncated = true
		}
	}

	return &Page{Title: title, Content: content, Truncated: truncated}
}

// textNodes collects the text nodes under sel in document order. Joining
// them with a separator keeps adjacent blocks like <p>a</p><p>b</p> apart.
func textNodes(sel *goquery.Selection, parts []string) []string {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			if text := strings.TrimSpace(child.Text()); text != "" {
				parts = append(parts, text)
			}
			return
		}
		parts = textNodes(child, parts)
	})
	return parts
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
