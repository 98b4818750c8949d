package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
)

const completionsPath = "/v1/chat/completions"

// Config is the immutable client configuration, injected at construction.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffCap     time.Duration
}

type Client struct {
	cfg        Config
	log        *logger.Logger
	httpClient *http.Client
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 1 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		log:        log.With("client", "OpenAIClient"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Model() string { return c.cfg.Model }

// CreateChatCompletion issues a completion request with bounded retries.
// Retryable: network failures and {429, 500, 502, 503, 504}. Anything else
// surfaces immediately as a classified terminal error; exhaustion surfaces
// as ServiceUnavailableError.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletion, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req.Stream = false

	var completion *ChatCompletion
	err := c.withRetries(ctx, func(attemptCtx context.Context) error {
		raw, err := c.doOnce(attemptCtx, req)
		if err != nil {
			return err
		}
		parsed, err := parseCompletion(raw)
		if err != nil {
			return err
		}
		completion = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

// doOnce performs a single attempt and returns the raw 2xx body.
func (c *Client) doOnce(ctx context.Context, body any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, &buf)
	if err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ServiceUnavailableError{Message: "transport failure", Cause: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, &ServiceUnavailableError{Message: "reading response body", Cause: readErr}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, resp.Header, raw)
	}
	return raw, nil
}

// withRetries runs fn up to MaxRetries+1 times with exponential backoff.
// A Retry-After value from the upstream is slept in addition to the
// backoff wait.
func (c *Client) withRetries(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := c.cfg.BackoffInitial

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ServiceUnavailableError{Message: "request cancelled", Cause: err}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryableError(ctx, lastErr) {
			return lastErr
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		wait := backoff
		if wait > c.cfg.BackoffCap {
			wait = c.cfg.BackoffCap
		}
		if ra := retryAfterOf(lastErr); ra > 0 {
			wait += ra
		}
		c.log.Warn("OpenAI request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", wait.String(),
			"error", lastErr.Error(),
		)
		if err := sleepCtx(ctx, wait); err != nil {
			return &ServiceUnavailableError{Message: "request cancelled during backoff", Cause: err}
		}
		backoff *= 2
	}

	return &ServiceUnavailableError{Message: "exhausted retries", Cause: lastErr}
}

func retryableError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		// Caller cancelled; retrying would spin on a dead context.
		return false
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var unavailErr *ServiceUnavailableError
	if errors.As(err, &unavailErr) {
		if unavailErr.StatusCode != 0 {
			return retryableStatus(unavailErr.StatusCode)
		}
		var netErr net.Error
		if errors.As(unavailErr.Cause, &netErr) {
			return true
		}
		// Connection refused and friends arrive as url.Error without a
		// net.Error timeout; treat any transport-level failure as transient.
		return unavailErr.Cause != nil
	}
	return false
}

func retryAfterOf(err error) time.Duration {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
