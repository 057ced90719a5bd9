// Package achievements implements the HTTP client for the badge service.
// Completing a challenge with a configured badge grants that badge; grants
// are idempotent so redelivered completion events are harmless.
package achievements

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/fitpulse/challenge-engine/pkg/circuitbreaker"
)

// ClientConfig contains configuration for the achievements client.
type ClientConfig struct {
	// BaseURL is the achievements API base URL.
	BaseURL string

	// APIKey is the bearer token for authentication.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ErrGrantRejected is returned when the service rejects a grant for a
// reason other than the badge already being held.
var ErrGrantRejected = errors.New("achievements: grant rejected")

// Client is the badge service API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new achievements client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "achievements_client")

	onStateChange := func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  logger,
		breaker: circuitbreaker.SideEffectBreaker("achievements", onStateChange),
	}
}

// GrantBadge awards a badge to a user. A conflict response means the user
// already holds the badge and is treated as success.
func (c *Client) GrantBadge(ctx context.Context, userID, badgeID string) error {
	path := fmt.Sprintf("/users/%s/achievements/%s",
		url.PathEscape(userID), url.PathEscape(badgeID))

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		status, body, err := c.post(ctx, path)
		if err != nil {
			return err
		}

		switch {
		case status < 300:
			return nil
		case status == http.StatusConflict:
			// Badge already held.
			c.logger.Debug("badge already granted", "user_id", userID, "badge_id", badgeID)
			return nil
		default:
			return fmt.Errorf("%w: status %d: %s", ErrGrantRejected, status, decodeError(body))
		}
	})
}

// IsHealthy checks if the achievements API is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (c *Client) post(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(nil))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// decodeError pulls a message out of an error body when present.
func decodeError(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return string(body)
}
