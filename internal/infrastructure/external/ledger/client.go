// Package ledger implements the HTTP client for the point ledger service,
// the system of record for user point balances. The challenge engine
// credits balances after progress writes and records a matching
// transaction for audit.
package ledger

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
	"github.com/fitpulse/challenge-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the ledger client.
type ClientConfig struct {
	// BaseURL is the ledger API base URL.
	BaseURL string

	// APIKey is the bearer token for authentication.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger

	// Debug enables request logging.
	Debug bool
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the point ledger API client. Calls run behind a circuit breaker
// so a degraded ledger fails fast instead of stalling progress writes.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new ledger client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "ledger_client")

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
		retrier: retry.LedgerRetrier(),
		breaker: circuitbreaker.LedgerBreaker(onStateChange),
	}
}

// CreditBalance credits points to a user's balance.
func (c *Client) CreditBalance(ctx context.Context, userID string, req CreditBalanceRequestDTO) (*CreditBalanceResponseDTO, error) {
	path := fmt.Sprintf("/users/%s/balance/credit", url.PathEscape(userID))

	var response CreditBalanceResponseDTO
	if err := c.doRequest(ctx, http.MethodPost, path, req, &response); err != nil {
		return nil, fmt.Errorf("credit balance for user %s: %w", userID, err)
	}
	return &response, nil
}

// RecordTransaction records a ledger transaction for a completed credit.
func (c *Client) RecordTransaction(ctx context.Context, req TransactionRequestDTO) (*TransactionResponseDTO, error) {
	var response TransactionResponseDTO
	if err := c.doRequest(ctx, http.MethodPost, "/transactions", req, &response); err != nil {
		return nil, fmt.Errorf("record transaction for user %s: %w", req.UserID, err)
	}
	return &response, nil
}

// IsHealthy checks if the ledger API is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.doSingleRequest(ctx, http.MethodGet, "/health", nil, nil) == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an HTTP request behind the circuit breaker with retries.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			err := c.doSingleRequest(ctx, method, path, body, result)
			if err == nil {
				return nil
			}
			if isRetryable(err) {
				return retry.Retryable(err)
			}
			return retry.Permanent(err)
		})
	})
}

// doSingleRequest performs a single HTTP request.
func (c *Client) doSingleRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	if c.config.Debug {
		c.logger.Debug("ledger api request", "method", method, "path", path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr APIErrorDTO
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
			apiErr.Code = statusAwareCode(apiErr.Code, resp.StatusCode)
			return &apiErr
		}
		return &APIErrorDTO{
			Code:    statusAwareCode("", resp.StatusCode),
			Message: fmt.Sprintf("status %d", resp.StatusCode),
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// statusAwareCode fills in a synthetic code for responses without one so
// retry classification has something to work with.
func statusAwareCode(code string, status int) string {
	if code != "" {
		return code
	}
	if status >= 500 {
		return "SERVER_ERROR"
	}
	if status == http.StatusTooManyRequests {
		return "RATE_LIMITED"
	}
	return "CLIENT_ERROR"
}

// isRetryable classifies an error for the retrier. Client errors are final;
// server errors, rate limits and network failures are worth another attempt.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIErrorDTO
	if errors.As(err, &apiErr) {
		return apiErr.Code == "SERVER_ERROR" || apiErr.Code == "RATE_LIMITED"
	}
	return true
}
