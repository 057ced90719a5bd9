// Package feed implements the HTTP client for the activity feed service.
// Completion events become feed posts so followers see them; the feed is a
// best-effort side channel and never blocks the write path.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fitpulse/challenge-engine/pkg/circuitbreaker"
)

// ClientConfig contains configuration for the feed client.
type ClientConfig struct {
	// BaseURL is the feed API base URL.
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

// ErrPostRejected is returned when the service rejects a post.
var ErrPostRejected = errors.New("feed: post rejected")

// PostDTO is the body of POST /posts.
type PostDTO struct {
	UserID        string    `json:"userId,omitempty"`
	TeamID        string    `json:"teamId,omitempty"`
	ChallengeID   string    `json:"challengeId"`
	ChallengeName string    `json:"challengeName"`
	Kind          string    `json:"kind"`
	Points        int       `json:"points,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Client is the activity feed API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new feed client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "feed_client")

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
		breaker: circuitbreaker.SideEffectBreaker("feed", onStateChange),
	}
}

// PublishPost publishes a post to the activity feed.
func (c *Client) PublishPost(ctx context.Context, post PostDTO) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(post)
		if err != nil {
			return fmt.Errorf("marshal post: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.config.BaseURL+"/posts", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("%w: status %d: %s", ErrPostRejected, resp.StatusCode, string(respBody))
		}
		return nil
	})
}

// IsHealthy checks if the feed API is reachable.
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
