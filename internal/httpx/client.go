// Package httpx provides a small retrying JSON HTTP client shared by every
// upstream fetcher (readings, permits, geocoding, embeddings).
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/riverwatch/riverwatch/internal/model"
)

// Client wraps http.Client with bounded exponential-backoff retry on
// transient failures (5xx, connection errors) and immediate failure on
// terminal ones (4xx).
type Client struct {
	http    *http.Client
	retries int
	backoff time.Duration
}

// New builds a Client. timeout bounds each individual attempt; retries is
// the number of additional attempts after the first; backoff is the base
// delay before jitter and doubling.
func New(timeout time.Duration, retries int, backoff time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}
	return &Client{http: &http.Client{Timeout: timeout}, retries: retries, backoff: backoff}
}

// DoJSON performs an HTTP request and decodes a JSON response body into
// out. Returns model.ErrTerminalUpstream for 4xx responses (no retry) and
// model.ErrTransientUpstream if every attempt failed with a 5xx or
// connection-level error.
func (c *Client) DoJSON(ctx context.Context, stage, method, url string, headers map[string]string, out any) error {
	body, err := c.do(ctx, stage, method, url, headers)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.ErrTerminalUpstream{Stage: stage, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// DoRaw performs an HTTP request and returns the raw response body, for
// callers that decode CSV or another non-JSON payload themselves.
func (c *Client) DoRaw(ctx context.Context, stage, method, url string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, stage, method, url, headers)
}

func (c *Client) do(ctx context.Context, stage, method, url string, headers map[string]string) ([]byte, error) {
	var lastErr error
	attempts := c.retries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return nil, model.ErrTerminalUpstream{Stage: stage, Err: err}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = model.ErrTransientUpstream{Stage: stage, Err: err}
		} else {
			body, readErr := readAndClose(resp.Body)
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				if readErr != nil {
					return nil, model.ErrTerminalUpstream{Stage: stage, Err: readErr}
				}
				return body, nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return nil, model.ErrTerminalUpstream{Stage: stage, Err: fmt.Errorf("%s: %s", resp.Status, trunc(body))}
			default:
				lastErr = model.ErrTransientUpstream{Stage: stage, Err: fmt.Errorf("%s: %s", resp.Status, trunc(body))}
			}
		}

		if attempt < attempts-1 {
			if !sleepWithJitter(ctx, c.backoff*time.Duration(1<<attempt)) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// PostJSON performs a JSON POST and decodes the JSON response, used by the
// embedding and LLM clients.
func (c *Client) PostJSON(ctx context.Context, stage, url string, headers map[string]string, payload any, out any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return model.ErrTerminalUpstream{Stage: stage, Err: err}
	}

	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return model.ErrTerminalUpstream{Stage: stage, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = model.ErrTransientUpstream{Stage: stage, Err: err}
		} else {
			body, readErr := readAndClose(resp.Body)
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				if readErr != nil {
					return model.ErrTerminalUpstream{Stage: stage, Err: readErr}
				}
				if out == nil {
					return nil
				}
				if err := json.Unmarshal(body, out); err != nil {
					return model.ErrTerminalUpstream{Stage: stage, Err: fmt.Errorf("decode response: %w", err)}
				}
				return nil
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return model.ErrTerminalUpstream{Stage: stage, Err: fmt.Errorf("%s: %s", resp.Status, trunc(body))}
			default:
				lastErr = model.ErrTransientUpstream{Stage: stage, Err: fmt.Errorf("%s: %s", resp.Status, trunc(body))}
			}
		}

		if attempt < attempts-1 {
			if !sleepWithJitter(ctx, c.backoff*time.Duration(1<<attempt)) {
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func readAndClose(r io.ReadCloser) ([]byte, error) {
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, 8<<20))
}

func trunc(b []byte) string {
	const max = 4096
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}

func sleepWithJitter(ctx context.Context, d time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	timer := time.NewTimer(d + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
