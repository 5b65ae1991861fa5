// Package llm is a client for OpenAI-compatible chat completion APIs with
// function calling.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "meeting-intel/internal/common/errors"
	commonhttp "meeting-intel/internal/common/http"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/metrics"
	"meeting-intel/internal/common/retry"
)

const providerName = "llm"

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Retry       retry.Policy
}

type Client struct {
	config Config
	http   *commonhttp.Client
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		config: cfg,
		http:   commonhttp.NewClient(cfg.Timeout),
		logger: logger.Component(log, providerName),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// Chat sends one completion request. Deadline expiry surfaces as
// LLM_TIMEOUT, everything else as LLM_GENERATION_FAILED.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, apperrors.NewLLMNotConfiguredError()
	}

	body := wireRequest{
		Model:     c.config.Model,
		Messages:  toWireMessages(req.Messages),
		Tools:     toWireTools(req.Tools),
		MaxTokens: req.MaxTokens,
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}
	if req.JSONMode {
		body.ResponseFormat = &wireResponseFormat{Type: "json_object"}
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = c.config.MaxTokens
	}
	if req.Temperature != nil {
		body.Temperature = req.Temperature
	} else if c.config.Temperature > 0 {
		t := c.config.Temperature
		body.Temperature = &t
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewLLMGenerationFailedError(fmt.Errorf("marshal request: %w", err))
	}

	start := time.Now()
	resp, err := retry.Do(ctx, c.config.Retry, func(ctx context.Context) (*wireResponse, error) {
		return c.post(ctx, payload)
	})
	metrics.ProviderCallDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ProviderCalls.WithLabelValues(providerName, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.NewLLMTimeoutError(err)
		}
		return nil, apperrors.NewLLMGenerationFailedError(err)
	}
	if len(resp.Choices) == 0 {
		metrics.ProviderCalls.WithLabelValues(providerName, "error").Inc()
		return nil, apperrors.NewLLMEmptyResponseError()
	}
	metrics.ProviderCalls.WithLabelValues(providerName, "success").Inc()

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    fromWireToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}

	c.logger.Debug("chat completion received", map[string]interface{}{
		"model":        c.config.Model,
		"finishReason": out.FinishReason,
		"toolCalls":    len(out.ToolCalls),
		"totalTokens":  out.Usage.TotalTokens,
	})
	return out, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (*wireResponse, error) {
	req, err := commonhttp.NewRequest(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, retry.ClassifyStatus(resp.StatusCode, string(raw))
	}

	var out wireResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if out.Error != nil {
		return nil, retry.Permanent(fmt.Errorf("api error: %s", out.Error.Message))
	}
	return &out, nil
}
