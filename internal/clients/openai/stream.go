package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nutrilog/nutrilog-backend/internal/logger"
)

const streamDonePayload = "[DONE]"

// ChatCompletionStream yields chunks as they arrive. Retryable failures are
// only retried before any bytes have been forwarded; once the stream has
// begun, mid-stream errors surface to the caller as-is.
type ChatCompletionStream struct {
	log     *logger.Logger
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// CreateChatCompletionStream opens a streaming completion. The retry policy
// is identical to CreateChatCompletion and applies to connection
// establishment and non-2xx statuses only.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionStream, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	req.Stream = true

	var stream *ChatCompletionStream
	err := c.withRetries(ctx, func(attemptCtx context.Context) error {
		opened, err := c.openStream(attemptCtx, req)
		if err != nil {
			return err
		}
		stream = opened
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (c *Client) openStream(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionStream, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, &buf)
	if err != nil {
		return nil, &InvalidRequestError{Message: err.Error()}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ServiceUnavailableError{Message: "transport failure", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode, resp.Header, raw)
	}

	return &ChatCompletionStream{
		log:     c.log,
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// Recv returns the next chunk, io.EOF after the terminator frame.
// Malformed frames are dropped with a warning rather than aborting the
// stream.
func (s *ChatCompletionStream) Recv() (*ChatCompletionChunk, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == streamDonePayload {
			s.done = true
			return nil, io.EOF
		}
		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			s.log.Warn("Dropping malformed stream frame", "error", err)
			continue
		}
		return &chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, &DataError{Message: "stream read failed", Cause: err}
	}
	s.done = true
	return nil, io.EOF
}

func (s *ChatCompletionStream) Close() error {
	s.done = true
	return s.body.Close()
}
