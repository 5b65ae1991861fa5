package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"
	"meeting-intel/internal/common/retry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client with connection retry and error mapping.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

// ClientConfig holds configuration for the Camunda/Zeebe client.
type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	Retry                  retry.Policy
	Logger                 logger.Logger
}

// DefaultConnectPolicy keeps trying for roughly a minute while the broker
// starts alongside the worker.
var DefaultConnectPolicy = retry.Policy{
	MaxAttempts: 10,
	BaseDelay:   2 * time.Second,
	MaxDelay:    10 * time.Second,
}

// NewClient creates a plaintext client with default settings.
func NewClient(ctx context.Context, address string) (*Client, error) {
	return NewClientWithConfig(ctx, &ClientConfig{
		GatewayAddress:         address,
		UsePlaintextConnection: true,
	})
}

// NewClientWithConfig dials the gateway and waits for a topology response.
// Unreachable brokers are retried under config.Retry.
func NewClientWithConfig(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = 10 * time.Second
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultConnectPolicy
	}
	if config.Logger == nil {
		config.Logger = logger.NewNoOpLogger()
	}

	attempt := 0
	zeebeClient, err := retry.Do(ctx, config.Retry, func(ctx context.Context) (zbc.Client, error) {
		attempt++
		c, err := connect(ctx, config)
		if err == nil {
			return c, nil
		}
		config.Logger.Warn("Zeebe connection attempt failed", map[string]interface{}{
			"gateway": config.GatewayAddress,
			"attempt": attempt,
			"error":   err.Error(),
		})
		if !isRetryableZeebeError(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	})
	if err != nil {
		return nil, mapZeebeError(err, "connect", attempt)
	}

	return &Client{
		client: zeebeClient,
		config: config,
	}, nil
}

func connect(ctx context.Context, config *ClientConfig) (zbc.Client, error) {
	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, config.ConnectionTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, err)
	}
	return zeebeClient, nil
}

// GetClient returns the raw Zeebe client for job worker registration.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck performs a topology request against the broker.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

var retryablePhrases = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"deadline exceeded",
	"unavailable",
	"unreachable",
	"broken pipe",
}

// isRetryableZeebeError checks if the error is transient and should be retried.
func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapZeebeError converts Zeebe errors into standardized application errors.
func mapZeebeError(err error, operation string, attempts int) error {
	msg := err.Error()
	lowerMsg := strings.ToLower(msg)

	enhancedMsg := fmt.Sprintf("Zeebe operation '%s' failed", operation)
	if attempts > 1 {
		enhancedMsg += fmt.Sprintf(" after %d attempts", attempts)
	}

	switch {
	case strings.Contains(lowerMsg, "timeout") ||
		strings.Contains(lowerMsg, "deadline exceeded"):
		return errors.NewTimeoutError("zeebe", fmt.Errorf("%s: %w", enhancedMsg, err))

	case strings.Contains(lowerMsg, "permission denied") ||
		strings.Contains(lowerMsg, "unauthenticated"):
		return errors.NewAuthenticationError(fmt.Sprintf("%s: %s", enhancedMsg, msg))

	default:
		return errors.NewExternalServiceError("zeebe", fmt.Errorf("%s: %w", enhancedMsg, err))
	}
}
